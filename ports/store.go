package ports

import (
	"context"
	"time"
)

// Store is a string key/value store with per-key expiry.
// Get and Take return core.ErrKeyNotFound for absent or expired keys.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// Take returns the value and removes the key in one step.
	Take(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
