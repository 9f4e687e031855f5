// Package storage defines the Backend interface for content storage.
package storage

import (
	"context"
	"io"
)

// Backend is the read side of a content store.
// Implementations handle raw object I/O (S3, local filesystem, SMB mounts).
type Backend interface {
	// GetObject retrieves an object by key with optional range support.
	// If offset=0 and length=0, the entire object is returned.
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("s3", "local", "smb").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
