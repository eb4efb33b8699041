package storage

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by Get when nothing is stored under a key
	ErrKeyNotFound = errors.New("key not found")

	// ErrStoreClosed is returned when using a closed store or queue
	ErrStoreClosed = errors.New("store is closed")
)

// Logical keys used by the application
const (
	SessionStateKey = "detectionState"
	HistoryKey      = "history"
	SettingsKey     = "appSettings"
)

// KeyValueStore is the device-local key-value storage the app persists to.
// Values are opaque serialized blobs.
type KeyValueStore interface {
	// Get returns the value stored under key or ErrKeyNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the value stored under key
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Close releases backend resources
	Close() error
}
