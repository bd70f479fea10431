package transport

import (
	"context"
	"errors"
)

var ErrObjectNotFound = errors.New("object not found")

// Bucket is a flat key/value store addressed by slash keys that mirror the
// local layout (files/.., indexes/.., refs/..).
type Bucket interface {
	// List returns every key under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}
