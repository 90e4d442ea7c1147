// Package storage archives raw uploaded statement files on the local
// filesystem or in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a file id is unknown for the user.
var ErrNotFound = errors.New("file not found")

// FileInfo contains metadata about a stored file
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"` // Internal storage path
	CreatedAt   time.Time `json:"created_at"`
}

// Storage defines the interface for file storage operations
type Storage interface {
	// Upload stores a file and returns its metadata
	Upload(ctx context.Context, userID uuid.UUID, filename string, contentType string, r io.Reader) (*FileInfo, error)

	// Download retrieves a file by its ID
	Download(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error)

	// Delete removes a file by its ID
	Delete(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) error

	// GetInfo returns metadata for a file without downloading
	GetInfo(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (*FileInfo, error)
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeNone  StorageType = "none"
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// Config holds storage configuration
type Config struct {
	Type StorageType

	// Local storage config
	LocalPath string

	// S3 storage config
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Endpoint        string // For S3-compatible services (MinIO, etc.)
}

// New creates a new Storage implementation based on configuration. It
// returns nil, nil when archiving is disabled.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeS3:
		s, err := NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StorageTypeLocal:
		s, err := NewLocalStorage(cfg.LocalPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StorageTypeNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
