// Package kv provides the string key-value stores that back persisted
// reader state.
package kv

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned by stores with a size limit when a write
// would exceed it.
var ErrQuotaExceeded = errors.New("kv: storage quota exceeded")

// Store is a flat string key-value store.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	Close() error
}
