// Package store holds the durable backends the attendance and roster state is
// written to. Every backend stores opaque JSON documents under a short key and
// replaces a document wholesale on each save.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when nothing was saved under the key yet.
var ErrNotFound = errors.New("store: key not found")

// Blob is a key/value backend for whole JSON documents.
type Blob interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Ping(ctx context.Context) error
	Close() error
}
