// Package blobstore abstracts the object stores that graph backup
// archives are written to and restored from.
//
// Archives are written and read as streams; none of the backends need
// random access. Implementations must be safe for concurrent use.
//
// Built-in implementations:
//
//   - Memory: in-process map, for tests
//   - Local: local filesystem directory
//   - minio.Store: MinIO and any S3-compatible object storage
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when an object does not exist. Implementations
// return errors satisfying errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("blobstore: object not found")

// Store is a named-object store for backup archives.
type Store interface {
	// Put writes the object under name, replacing any previous content.
	Put(ctx context.Context, name string, r io.Reader) error

	// Get opens the object for reading. The caller closes the returned
	// reader.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object returns
	// ErrNotFound.
	Delete(ctx context.Context, name string) error

	// List returns the names of all objects with the given prefix, in
	// lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)
}
