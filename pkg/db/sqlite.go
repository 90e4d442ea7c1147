package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLite wraps an embedded database file.
type SQLite struct {
	DB     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens (creating when needed) the database at path. ":memory:"
// opens a private in-memory database.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	pragmas := []string{"foreign_keys(1)", "busy_timeout(5000)"}
	if path != ":memory:" {
		pragmas = append(pragmas, "journal_mode(WAL)")
	}
	dsn := path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers; SQLite allows a single writer and
	// an in-memory database exists only on its own connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("opened sqlite database", "path", path)

	return &SQLite{DB: conn, path: path, logger: logger}, nil
}

// RunMigrations applies the embedded SQLite migrations.
func (s *SQLite) RunMigrations(ctx context.Context) error {
	return migrate(ctx, goose.DialectSQLite3, s.DB, "migrations/sqlite", s.logger)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.DB.Close()
}
