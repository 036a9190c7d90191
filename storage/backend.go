// Package storage holds the byte-level adapters the log layer is built on: a local
// directory, an in-process map, an S3-compatible bucket and a cloud blob container.
// Keys are "/"-separated; adapters never interpret them beyond prefix matching.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/CefBoud/monkafs/types"
)

var (
	// ErrObjectNotFound is returned by Read for a missing key
	ErrObjectNotFound = errors.New("object not found")

	// ErrStorageClosed is returned when operations are performed on a closed backend
	ErrStorageClosed = errors.New("storage backend is closed")
)

// Backend is the capability surface the admin, producer and consumer rely on.
type Backend interface {
	// List returns every key starting with prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)

	// ListDirs returns the distinct "directories" directly below prefix, sorted and each
	// ending in "/". prefix is empty or ends in "/". Keys directly below prefix are skipped.
	ListDirs(ctx context.Context, prefix string) ([]string, error)

	// Read returns the full content of key or ErrObjectNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write creates or replaces key with data as a whole; it never appends.
	Write(ctx context.Context, key string, data []byte) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases resources held by the backend.
	Close() error
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg types.Configuration) (Backend, error) {
	switch cfg.Backend {
	case types.BackendLocal:
		return NewLocal(cfg.Local.RootDir)
	case types.BackendMemory:
		return NewMemory(), nil
	case types.BackendS3:
		return NewS3(ctx, cfg.S3)
	case types.BackendAzureBlob:
		return NewAzureBlob(ctx, cfg.AzureBlob)
	}
	return nil, fmt.Errorf("%w: unknown backend %q", types.ErrInvalidConfig, cfg.Backend)
}
