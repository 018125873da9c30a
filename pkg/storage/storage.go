// Package storage keeps export artifacts on the local filesystem or in a
// Google Cloud Storage bucket.
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

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("stored file not found")

// FileInfo contains metadata about a stored file
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Key         string    `json:"key"` // backend object key
	CreatedAt   time.Time `json:"created_at"`
}

// Storage defines the interface for file storage operations
type Storage interface {
	// Upload stores a file under the user's prefix and returns its metadata
	Upload(ctx context.Context, userID string, filename string, contentType string, r io.Reader) (*FileInfo, error)

	// Open returns a reader for a stored key
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeGCS   StorageType = "gcs"
)

// Config holds storage configuration
type Config struct {
	Type      StorageType
	LocalPath string
	GCSBucket string
	GCSPrefix string
}

// New creates a Storage implementation based on configuration
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeGCS:
		return NewGCSStorage(ctx, cfg.GCSBucket, cfg.GCSPrefix)
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// objectKey builds "<user>/<id>_<name>".
func objectKey(userID string, fileID uuid.UUID, filename string) string {
	return sanitizeFilename(userID) + "/" + fileID.String() + "_" + sanitizeFilename(filename)
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
	name = replacer.Replace(strings.TrimSpace(name))
	if name == "" {
		return "file"
	}
	return name
}
