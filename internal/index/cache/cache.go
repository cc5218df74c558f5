// Package cache keeps recent ledger verification outcomes in Redis so hot
// reads do not hammer the ledger. A cache entry says "this property was
// confirmed against the ledger at transaction X"; it is only trusted while the
// index row still carries the same transaction id.
package cache

import (
	"context"
	"time"

	"landledger/internal/platform/redis"
)

const keyPrefix = "landledger:verified:"

// VerificationCache is a TTL cache of verified (propertyID, transactionID)
// pairs. A nil receiver is a no-op so callers need no nil checks when Redis is
// not configured.
type VerificationCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *VerificationCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &VerificationCache{client: client, ttl: ttl}
}

// Get returns the transaction id recorded for the property, or "" on a miss.
// Cache errors are reported as misses; the ledger is always a safe fallback.
func (c *VerificationCache) Get(ctx context.Context, propertyID string) string {
	if c == nil {
		return ""
	}
	txID, err := c.client.Get(ctx, keyPrefix+propertyID).Result()
	if err != nil {
		return ""
	}
	return txID
}

// Put records a verified transaction id for the property.
func (c *VerificationCache) Put(ctx context.Context, propertyID, transactionID string) {
	if c == nil || transactionID == "" {
		return
	}
	c.client.Set(ctx, keyPrefix+propertyID, transactionID, c.ttl)
}

// Invalidate drops the cached entry, used after writes so a stale verification
// cannot mask a fresh transfer.
func (c *VerificationCache) Invalidate(ctx context.Context, propertyID string) {
	if c == nil {
		return
	}
	c.client.Del(ctx, keyPrefix+propertyID)
}
