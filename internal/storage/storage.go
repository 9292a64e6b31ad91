// Package storage provides object storage access behind a two-operation
// contract. Paths are slash-delimited logical strings; each backend maps them
// to its own addressing scheme.
package storage

import (
	"context"
	"io"
)

// Storage downloads and uploads opaque byte streams by logical path.
type Storage interface {
	// Download returns a readable stream for the object at remotePath.
	// The caller owns the returned reader and must close it.
	Download(ctx context.Context, remotePath string) (io.ReadCloser, error)
	// Upload writes the stream to remotePath, replacing any existing object.
	Upload(ctx context.Context, remotePath string, data io.Reader) error
}
