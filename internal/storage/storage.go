// Package storage provides scratch file handling for conversions and
// optional publishing of finished videos to S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for scratch files and published output.
type Storage interface {
	// SaveTemp writes data to a new, uniquely named file in dir and returns
	// its path. The pattern follows os.CreateTemp: the last "*" is replaced
	// by a random string. An empty dir means the storage's own temp dir.
	SaveTemp(ctx context.Context, dir, pattern string, data io.Reader) (path string, err error)

	// CleanupTemp permanently removes the specified files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Dispose permanently removes one file.
	Dispose(ctx context.Context, path string) error

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
