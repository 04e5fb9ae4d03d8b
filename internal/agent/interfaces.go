package agent

import (
	"context"
	"time"
)

// KVStore is the durable key-value primitive backing credential and
// session persistence. Get returns (nil, nil) when the key is absent.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque identifiers (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
