package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database      DatabaseConfig
	Import        ImportConfig
	Storage       StorageConfig
	Observability ObservabilityConfig
	Log           LogConfig
}

// DatabaseConfig selects and configures the transaction store.
type DatabaseConfig struct {
	Driver          string // "postgres" or "sqlite"
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	SQLitePath      string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ImportConfig tunes the import pipeline.
type ImportConfig struct {
	ChunkSize          int
	DayFirst           bool
	Currency           string
	ExpandInstallments bool
	MaxNotes           int
}

// StorageConfig configures raw upload archiving.
type StorageConfig struct {
	Type              string // "none", "local" or "s3"
	LocalPath         string
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Endpoint        string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	TracingEnabled bool
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads configuration from environment variables, after loading a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnvAsInt("POSTGRES_PORT", 5432),
			User:            getEnv("POSTGRES_USER", "postgres"),
			Password:        getEnv("POSTGRES_PASSWORD", "postgres"),
			Database:        getEnv("POSTGRES_DB", "ledger"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			SQLitePath:      getEnv("SQLITE_PATH", "./data/ledger.db"),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 10*time.Minute),
		},
		Import: ImportConfig{
			ChunkSize:          getEnvAsInt("IMPORT_CHUNK_SIZE", 250),
			DayFirst:           getEnvAsBool("IMPORT_DAY_FIRST", true),
			Currency:           strings.ToUpper(getEnv("IMPORT_CURRENCY", "BRL")),
			ExpandInstallments: getEnvAsBool("IMPORT_EXPAND_INSTALLMENTS", true),
			MaxNotes:           getEnvAsInt("IMPORT_MAX_NOTES", 50),
		},
		Storage: StorageConfig{
			Type:              strings.ToLower(getEnv("STORAGE_TYPE", "none")),
			LocalPath:         getEnv("STORAGE_LOCAL_PATH", "./uploads"),
			S3Bucket:          getEnv("STORAGE_S3_BUCKET", ""),
			S3Region:          getEnv("STORAGE_S3_REGION", ""),
			S3AccessKeyID:     getEnv("STORAGE_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("STORAGE_S3_SECRET_ACCESS_KEY", ""),
			S3Endpoint:        getEnv("STORAGE_S3_ENDPOINT", ""),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			TracingEnabled: getEnvAsBool("TRACING_ENABLED", false),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail late at first use.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	if c.Import.ChunkSize <= 0 {
		return errors.New("IMPORT_CHUNK_SIZE must be positive")
	}

	switch c.Storage.Type {
	case "none", "local":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return errors.New("STORAGE_S3_BUCKET is required when STORAGE_TYPE=s3")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE %q", c.Storage.Type)
	}

	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
