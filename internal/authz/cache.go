package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const generationKey = "authz:gen"

// Cache stores resolved permission sets in Redis under a generation
// counter. Bumping the counter after any role, permission or assignment
// mutation invalidates every cached set at once; stale generations simply
// expire with their TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached set for a user, if present. Redis failures
// degrade to a miss.
func (c *Cache) Get(ctx context.Context, userID int64) ([]string, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.key(ctx, userID)).Bytes()
	if err != nil {
		return nil, false
	}
	perms := []string{}
	if err := json.Unmarshal(raw, &perms); err != nil {
		return nil, false
	}
	return perms, true
}

// Set stores the resolved set for a user.
func (c *Cache) Set(ctx context.Context, userID int64, perms []string) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(ctx, userID), raw, c.ttl).Err()
}

// Bump advances the generation counter, invalidating all cached sets.
func (c *Cache) Bump(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Incr(ctx, generationKey).Err()
}

func (c *Cache) key(ctx context.Context, userID int64) string {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil {
		gen = 0
	}
	return fmt.Sprintf("authz:g%d:user:%d", gen, userID)
}
