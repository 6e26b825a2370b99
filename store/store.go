package store

import (
	"github.com/pkg/errors"
)

// ErrNotFound indicates the key is not present in the store. It is
// not an I/O failure; those are returned as distinct errors carrying
// the underlying cause.
var ErrNotFound = errors.New("key not in store")

// Client is a durable mapping from string keys to opaque values. The
// store never interprets values; expiry of lock leases, for example,
// is the reader's business.
//
// Implementations do not retry: retry policy belongs to the callers
// (the lock and the coordinator).
type Client interface {
	// Get returns the value at key, or ErrNotFound.
	Get(key string) ([]byte, error)
	// Set upserts the value at key.
	Set(key string, value []byte) error
	// SetNX inserts value at key only if the key is absent, as a
	// single atomic operation at the backend. It reports whether
	// this call performed the insert; an existing row is left
	// untouched.
	SetNX(key string, value []byte) (bool, error)
	// Delete removes the given keys. Missing keys are not an
	// error, and deleting nothing is a no-op.
	Delete(keys ...string) error
	// Ping checks the backend is reachable.
	Ping() error
}
