// Package storage defines where scan artifacts (checkpoints and reports)
// are written. Implementations live in the local, memory and gcs
// subpackages so the scanner never depends on a concrete backend.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned by GetObject when nothing is stored at path.
var ErrNotFound = errors.New("object not found")

// ArtifactStore writes and reads named objects and returns a URI for each
// write.
type ArtifactStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// NopStore discards writes and never finds anything. It backs dry runs.
type NopStore struct{}

// PutObject drains nothing and returns an empty URI.
func (NopStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", nil
}

// GetObject always reports ErrNotFound.
func (NopStore) GetObject(context.Context, string) ([]byte, error) {
	return nil, ErrNotFound
}

// WithPrefix places every object of store under prefix. An empty prefix
// returns store unchanged.
func WithPrefix(store ArtifactStore, prefix string) ArtifactStore {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return store
	}
	return prefixed{store: store, prefix: prefix}
}

type prefixed struct {
	store  ArtifactStore
	prefix string
}

func (p prefixed) PutObject(ctx context.Context, name string, contentType string, data io.Reader) (string, error) {
	return p.store.PutObject(ctx, path.Join(p.prefix, name), contentType, data) //nolint:wrapcheck
}

func (p prefixed) GetObject(ctx context.Context, name string) ([]byte, error) {
	return p.store.GetObject(ctx, path.Join(p.prefix, name)) //nolint:wrapcheck
}
