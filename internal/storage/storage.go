// Package storage provides temporary file handling for uploads and
// screenshots, plus optional archiving of delivered screenshots to S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary and archived file storage.
type Storage interface {
	// SaveTemp saves data to a new, uniquely named temporary file and returns
	// its path. The extension of name, if any, is kept on the created file.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// Files that are already gone are not an error.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
