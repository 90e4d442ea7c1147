package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// LocalStorage implements Storage using the local filesystem. Each file is
// kept as <base>/<user>/<id>.<name> next to a <id>.json metadata record.
type LocalStorage struct {
	basePath string
}

var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Upload stores a file and returns its metadata
func (s *LocalStorage) Upload(ctx context.Context, userID uuid.UUID, filename string, contentType string, r io.Reader) (*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userDir := s.userDir(userID)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create user directory: %w", err)
	}

	fileID := uuid.New()
	info := &FileInfo{
		ID:          fileID,
		Name:        filename,
		ContentType: contentType,
		Path:        fileID.String() + "." + sanitizeFilename(filepath.Base(filename)),
		CreatedAt:   time.Now().UTC(),
	}
	filePath := filepath.Join(userDir, info.Path)

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	size, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	info.Size = size

	data, err := json.Marshal(info)
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(userID, fileID), data, 0o644); err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	return info, nil
}

// Download retrieves a file by its ID
func (s *LocalStorage) Download(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error) {
	info, err := s.GetInfo(ctx, userID, fileID)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.userDir(userID), info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, info, nil
}

// Delete removes a file by its ID
func (s *LocalStorage) Delete(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) error {
	info, err := s.GetInfo(ctx, userID, fileID)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.userDir(userID), info.Path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := os.Remove(s.metaPath(userID, fileID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

// GetInfo returns metadata for a file without downloading
func (s *LocalStorage) GetInfo(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.metaPath(userID, fileID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", fileID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &info, nil
}

func (s *LocalStorage) userDir(userID uuid.UUID) string {
	return filepath.Join(s.basePath, userID.String())
}

func (s *LocalStorage) metaPath(userID, fileID uuid.UUID) string {
	return filepath.Join(s.userDir(userID), fileID.String()+".json")
}
