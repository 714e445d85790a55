// Package rediscache is a balance.Cache backed by Redis. Values are the
// JSON encoded balance with a TTL, so a missed invalidation heals itself.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/id"
)

var _ balance.Cache = (*Cache)(nil)

// Client is the subset of redis.Cmdable the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache stores balances under "<prefix><child id>".
type Cache struct {
	client Client
	prefix string
	ttl    time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix sets the key prefix. Default "starledger:balance:".
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// WithTTL sets the expiry of cached balances. Default 10 minutes.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// New creates a Cache over client, usually a *redis.Client.
func New(client Client, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		prefix: "starledger:balance:",
		ttl:    10 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(childID id.MemberID) string {
	return c.prefix + childID.String()
}

// Get returns the cached balance. A missing key is (nil, false, nil).
func (c *Cache) Get(ctx context.Context, childID id.MemberID) (*balance.Balance, bool, error) {
	raw, err := c.client.Get(ctx, c.key(childID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("rediscache: get %s: %w", childID, err)
	}

	var b balance.Balance
	if err := json.Unmarshal(raw, &b); err != nil {
		// a corrupt entry is a miss; the next Put overwrites it
		return nil, false, nil //nolint:nilerr // treated as a miss
	}
	return &b, true, nil
}

func (c *Cache) Put(ctx context.Context, b *balance.Balance) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("rediscache: encode %s: %w", b.ChildID, err)
	}
	if err := c.client.Set(ctx, c.key(b.ChildID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set %s: %w", b.ChildID, err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, childID id.MemberID) error {
	if err := c.client.Del(ctx, c.key(childID)).Err(); err != nil {
		return fmt.Errorf("rediscache: del %s: %w", childID, err)
	}
	return nil
}
