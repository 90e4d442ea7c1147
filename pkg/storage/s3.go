package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const (
	metaFilename  = "filename"
	metaCreatedAt = "created-at"
)

// S3Storage implements Storage using Amazon S3 or S3-compatible services.
// Objects are keyed <user>/<id>; the original name travels as object metadata.
type S3Storage struct {
	client *s3.Client
	bucket string
}

var _ Storage = (*S3Storage)(nil)

// NewS3Storage creates a new S3 storage instance. Static credentials are used
// when configured, otherwise the default AWS credential chain applies.
func NewS3Storage(ctx context.Context, cfg Config) (*S3Storage, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("S3 bucket is required")
	}
	if cfg.S3Region == "" {
		return nil, errors.New("S3 region is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true // Required for MinIO
		}
	})

	return &S3Storage{client: client, bucket: cfg.S3Bucket}, nil
}

// Upload stores a file and returns its metadata
func (s *S3Storage) Upload(ctx context.Context, userID uuid.UUID, filename string, contentType string, r io.Reader) (*FileInfo, error) {
	// Statements are already in memory; a seekable body lets the SDK sign it.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	fileID := uuid.New()
	info := &FileInfo{
		ID:          fileID,
		Name:        filename,
		Size:        int64(len(data)),
		ContentType: contentType,
		Path:        objectKey(userID, fileID),
		CreatedAt:   time.Now().UTC(),
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(info.Path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(info.Size),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			metaFilename:  sanitizeFilename(filename),
			metaCreatedAt: info.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put object: %w", err)
	}
	return info, nil
}

// Download retrieves a file by its ID
func (s *S3Storage) Download(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error) {
	key := objectKey(userID, fileID)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil, fmt.Errorf("%s: %w", fileID, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get object: %w", err)
	}

	info := fileInfo(fileID, key, out.Metadata, out.ContentType, out.ContentLength, out.LastModified)
	return out.Body, info, nil
}

// Delete removes a file by its ID
func (s *S3Storage) Delete(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) error {
	if _, err := s.GetInfo(ctx, userID, fileID); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(userID, fileID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// GetInfo returns metadata for a file without downloading
func (s *S3Storage) GetInfo(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (*FileInfo, error) {
	key := objectKey(userID, fileID)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%s: %w", fileID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to head object: %w", err)
	}
	return fileInfo(fileID, key, out.Metadata, out.ContentType, out.ContentLength, out.LastModified), nil
}

func objectKey(userID, fileID uuid.UUID) string {
	return userID.String() + "/" + fileID.String()
}

func fileInfo(fileID uuid.UUID, key string, meta map[string]string, contentType *string, size *int64, modified *time.Time) *FileInfo {
	info := &FileInfo{
		ID:          fileID,
		Name:        meta[metaFilename],
		Size:        aws.ToInt64(size),
		ContentType: aws.ToString(contentType),
		Path:        key,
	}
	if created, err := time.Parse(time.RFC3339Nano, meta[metaCreatedAt]); err == nil {
		info.CreatedAt = created
	} else if modified != nil {
		info.CreatedAt = *modified
	}
	return info
}
