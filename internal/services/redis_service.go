package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"entitlement-api/internal/database"
)

// entitlementCacheTTL keeps decisions hot without letting a stale FULL
// outlive a revocation for long.
const entitlementCacheTTL = 60 * time.Second

// EntitlementCache caches entitlement decisions in Redis. A cache miss or a
// Redis outage just falls through to the database.
type EntitlementCache struct{}

// NewEntitlementCache creates an entitlement cache backed by the shared
// Redis client.
func NewEntitlementCache() *EntitlementCache {
	return &EntitlementCache{}
}

func (c *EntitlementCache) key(userID, productID string) string {
	return fmt.Sprintf("entitlement:%s:%s", userID, productID)
}

// Get returns a cached decision, or nil on miss. Redis trouble is treated
// the same as a miss.
func (c *EntitlementCache) Get(ctx context.Context, userID, productID string) *EntitlementDecision {
	raw, err := database.GetCache(ctx, c.key(userID, productID))
	if err != nil {
		return nil
	}

	var decision EntitlementDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return nil
	}
	return &decision
}

// Set stores a decision with the cache TTL.
func (c *EntitlementCache) Set(ctx context.Context, userID, productID string, decision *EntitlementDecision) {
	raw, err := json.Marshal(decision)
	if err != nil {
		return
	}
	_ = database.SetCache(ctx, c.key(userID, productID), string(raw), entitlementCacheTTL)
}

// Invalidate drops the cached decision, called on grant writes.
func (c *EntitlementCache) Invalidate(ctx context.Context, userID, productID string) {
	_ = database.DeleteCache(ctx, c.key(userID, productID))
}

// ClaimEventFastPath is the Redis SETNX dedupe in front of the durable
// webhook ledger. Returns false when this event id was already claimed
// recently. Degrades to true (defer to the ledger) when Redis is down.
func ClaimEventFastPath(ctx context.Context, provider, eventID string) bool {
	key := fmt.Sprintf("webhook_event:%s:%s", provider, eventID)
	ok, err := database.SetCacheNX(ctx, key, time.Now().Unix(), 24*time.Hour)
	if err != nil {
		return true
	}
	return ok
}

// ReleaseEventFastPath drops the fast-path claim after a processing failure
// so the provider's retry is not rejected by the cache.
func ReleaseEventFastPath(ctx context.Context, provider, eventID string) {
	key := fmt.Sprintf("webhook_event:%s:%s", provider, eventID)
	_ = database.DeleteCache(ctx, key)
}
