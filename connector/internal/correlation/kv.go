// Package correlation remembers which subscriber created an interactive Slack
// artifact so the remote callback, which only carries a message timestamp or
// view id, can be routed back to it.
package correlation

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by KV.Get for a missing or expired key.
var ErrNotFound = errors.New("correlation: key not found")

// SetOptions controls a KV write.
type SetOptions struct {
	// TTL expires the key; zero keeps it until deleted.
	TTL time.Duration

	// IfAbsent only writes when the key does not exist.
	IfAbsent bool
}

// KV is the minimal key/value contract behind the correlation store.
type KV interface {
	// Set writes value and reports whether the write happened. It is always
	// true unless IfAbsent was requested and the key already existed.
	Set(ctx context.Context, key string, value []byte, opts SetOptions) (bool, error)

	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete is a no-op for a missing key.
	Delete(ctx context.Context, key string) error

	// CompareAndSet stores token under key when the key is absent or already
	// holds token, refreshing ttl. It returns false when another token holds
	// the key. Calls are atomic with respect to each other.
	CompareAndSet(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
