// Package snapshot uploads copies of the local store to S3-compatible
// storage. When no bucket is configured the NoopUploader is used and the
// till keeps its data on the device only.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/till/internal/config"
)

// ErrNotConfigured is returned when backup storage is not configured.
var ErrNotConfigured = errors.New("backup storage not configured")

// Uploader uploads local store backups.
type Uploader interface {
	// Upload stores the file at filePath as the backup of terminalID taken
	// at takenAt and returns the object key.
	Upload(ctx context.Context, terminalID, filePath string, takenAt time.Time) (string, error)

	// Enabled reports whether uploads go anywhere.
	Enabled() bool
}

// s3Client defines the minimal minio.Client operations used by S3Uploader.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string, metadata map[string]string) error
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) FPutObject(ctx context.Context, bucket, objectName, filePath string, metadata map[string]string) error {
	_, err := w.client.FPutObject(ctx, bucket, objectName, filePath, minio.PutObjectOptions{
		ContentType:  "application/vnd.sqlite3",
		UserMetadata: metadata,
	})
	return err
}

// S3Uploader uploads backups to S3-compatible storage.
type S3Uploader struct {
	client s3Client
	bucket string
}

// Upload uploads the backup file.
func (u *S3Uploader) Upload(ctx context.Context, terminalID, filePath string, takenAt time.Time) (string, error) {
	key := objectKey(terminalID, takenAt)
	meta := map[string]string{
		"terminal": terminalID,
		"taken-at": takenAt.UTC().Format(time.RFC3339),
	}
	if err := u.client.FPutObject(ctx, u.bucket, key, filePath, meta); err != nil {
		return "", fmt.Errorf("upload backup to S3: %w", err)
	}
	return key, nil
}

func (u *S3Uploader) Enabled() bool { return true }

// NoopUploader is used when backup storage is not configured.
type NoopUploader struct{}

// Upload returns ErrNotConfigured.
func (u *NoopUploader) Upload(ctx context.Context, terminalID, filePath string, takenAt time.Time) (string, error) {
	return "", ErrNotConfigured
}

func (u *NoopUploader) Enabled() bool { return false }

// NewUploader creates the appropriate Uploader based on configuration.
// Returns NoopUploader when bucket is empty, S3Uploader otherwise.
func NewUploader(cfg config.BackupConfig) (Uploader, error) {
	if !cfg.Enabled() {
		return &NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
	}, nil
}

// objectKey returns the object key for a backup.
// Convention: {terminal_id}/backups/{YYYYMMDDTHHMMSSZ}.db
func objectKey(terminalID string, takenAt time.Time) string {
	return terminalID + "/backups/" + takenAt.UTC().Format("20060102T150405Z") + ".db"
}
