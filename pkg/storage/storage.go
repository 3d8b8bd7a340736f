// Package storage defines the FileStore interface for reading, writing and
// listing files. It abstracts the underlying backend so that callers can
// swap between local disk and S3-compatible object stores without changing
// application code.
//
// The primary use case within voicegate is loading enrolled voiceprint
// files at startup: a speaker directory may live on local disk next to the
// gateway or under an object-store prefix shared by several instances.
package storage

import (
	"context"
	"io"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// The caller must close the returned ReadCloser when done.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing.
	// If the file already exists it is truncated.
	// Parent directories are created automatically.
	// The caller must close the returned WriteCloser to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file.
	// If the file does not exist, Delete returns nil (idempotent).
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths of all files under the given prefix,
	// in lexicographic order. A missing prefix yields an empty list.
	List(ctx context.Context, prefix string) ([]string, error)
}
