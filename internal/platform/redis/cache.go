package redis

import (
	"context"
	"log/slog"
	"time"
)

// allowedValue is the only payload the check cache ever stores. Negative
// verdicts are never cached, so presence of the key is the whole answer.
const allowedValue = "1"

// CheckCache answers repeated authorization checks without a store round
// trip. All failures are swallowed after logging: a broken cache must never
// make Check return a wrong answer, only a slower one.
type CheckCache struct {
	client *Client
	logger *slog.Logger
}

// NewCheckCache wraps a connected client as a consent check cache.
func NewCheckCache(client *Client, logger *slog.Logger) *CheckCache {
	return &CheckCache{client: client, logger: logger}
}

// GetAllowed reports a cached positive verdict for the key, if any.
func (c *CheckCache) GetAllowed(ctx context.Context, key string) (bool, bool) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return false, false
	}
	return value == allowedValue, true
}

// SetAllowed caches a positive verdict for the key with the given TTL.
func (c *CheckCache) SetAllowed(ctx context.Context, key string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, key, allowedValue, ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "check cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops any cached verdict for the key. Called on every consent
// transition so the cache can never outlive the decision it mirrors.
func (c *CheckCache) Invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.WarnContext(ctx, "check cache invalidation failed", "key", key, "error", err)
	}
}
