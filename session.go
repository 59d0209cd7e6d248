package credgate

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/ports"
)

const sessionKeyPrefix = "session_token:"

// SessionCache keeps the latest session token per identity.
// The server owns token validity; the cache only remembers the last token seen.
type SessionCache struct {
	store  ports.Store
	logger log.Logger
}

// NewSessionCache creates a cache on top of store
func NewSessionCache(store ports.Store) *SessionCache {
	return &SessionCache{
		store:  store,
		logger: log.Root(),
	}
}

func sessionKey(identity string) string {
	return sessionKeyPrefix + strings.ToLower(identity)
}

// Get returns the cached token for identity, if any. A failing store reads as
// absent so the caller falls back to signing.
func (c *SessionCache) Get(ctx context.Context, identity string) (string, bool) {
	token, err := c.store.Get(ctx, sessionKey(identity))
	if err != nil {
		if !errors.Is(err, core.ErrKeyNotFound) {
			c.logger.Warn("Failed to read session token", "identity", identity, "err", err)
		}
		return "", false
	}
	return token, token != ""
}

// Set overwrites the token for identity. The server decides expiry.
func (c *SessionCache) Set(ctx context.Context, identity, token string) error {
	return c.store.Set(ctx, sessionKey(identity), token, 0)
}

// Clear discards the token for identity
func (c *SessionCache) Clear(ctx context.Context, identity string) error {
	return c.store.Delete(ctx, sessionKey(identity))
}
