// Package token owns the access-token lifecycle: minting, validation,
// renewal, revocation, and the write-behind usage counter that keeps
// per-request validation from costing one durable write each.
package token

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/secretforge/secretforge-core/pkg/clients/redis"
)

// counterKeyPrefix namespaces usage-counter keys in the shared cache.
const counterKeyPrefix = "token:uses:"

// counterKeyTTL bounds how long an idle counter key lives in the cache.
// Long enough to outlast any renewal window in practice; tokens validated
// regularly keep refreshing it through Increment.
const counterKeyTTL = 30 * 24 * time.Hour

// Cache is the subset of cache operations the usage counter performs. It
// is satisfied by [*redis.Client]; a nil Cache puts the counter in
// in-process mode, which is correct for a single replica and for tests.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
}

var _ Cache = (*redis.Client)(nil)

// UsageCounter is the write-behind use counter for access tokens. Counts
// live in a shared cache (or in process when no cache is configured) and
// are periodically reconciled into the durable token row by a [Flusher].
//
// The cache is read-preferred: once a token's counter is primed, the
// cached count supersedes the durable row for limit checks, so a burst of
// concurrent validations converges on the correct total even though each
// request independently read a stale durable value.
type UsageCounter struct {
	cache Cache

	mu    sync.Mutex
	local map[string]int64
	dirty map[string]struct{}
}

// NewUsageCounter creates a usage counter over the given cache. Pass nil
// to count in process.
func NewUsageCounter(cache Cache) *UsageCounter {
	return &UsageCounter{
		cache: cache,
		local: make(map[string]int64),
		dirty: make(map[string]struct{}),
	}
}

func counterKey(tokenID string) string {
	return counterKeyPrefix + tokenID
}

// CachedUses returns the cached use count for a token. The second return
// reports whether the counter is primed; when false the caller must fall
// back to the durable row's count.
func (c *UsageCounter) CachedUses(ctx context.Context, tokenID string) (int64, bool, error) {
	if c.cache == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		count, ok := c.local[tokenID]
		return count, ok, nil
	}

	val, err := c.cache.Get(ctx, counterKey(tokenID))
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// A corrupt counter value is unusable; treat as unprimed so the
		// durable row wins.
		return 0, false, nil
	}
	return count, true, nil
}

// Increment primes the counter from the durable count if needed, bumps it,
// and marks the token for the next flush. SetNX does the priming so that
// concurrent replicas never reset an already-live counter; the returned
// value is the count after this increment.
func (c *UsageCounter) Increment(ctx context.Context, tokenID string, durableUses int64) (int64, error) {
	if c.cache == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.local[tokenID]; !ok {
			c.local[tokenID] = durableUses
		}
		c.local[tokenID]++
		c.dirty[tokenID] = struct{}{}
		return c.local[tokenID], nil
	}

	key := counterKey(tokenID)
	if _, err := c.cache.SetNX(ctx, key, durableUses, counterKeyTTL); err != nil {
		return 0, err
	}
	count, err := c.cache.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	// INCR clears no TTL, but keep the key from idling out under steady
	// traffic.
	if _, err := c.cache.Expire(ctx, key, counterKeyTTL); err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.dirty[tokenID] = struct{}{}
	c.mu.Unlock()
	return count, nil
}

// Forget drops a token's counter state. Called when the token row is
// deleted.
func (c *UsageCounter) Forget(ctx context.Context, tokenID string) error {
	c.mu.Lock()
	delete(c.local, tokenID)
	delete(c.dirty, tokenID)
	c.mu.Unlock()

	if c.cache == nil {
		return nil
	}
	_, err := c.cache.Del(ctx, counterKey(tokenID))
	return err
}

// takeDirty returns the set of token ids with unflushed increments and
// clears it. Tokens whose flush fails are re-marked by the flusher.
func (c *UsageCounter) takeDirty() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.dirty) == 0 {
		return nil
	}
	ids := make([]string, 0, len(c.dirty))
	for id := range c.dirty {
		ids = append(ids, id)
	}
	c.dirty = make(map[string]struct{})
	return ids
}

// remark re-queues a token for the next flush after a failed attempt.
func (c *UsageCounter) remark(tokenID string) {
	c.mu.Lock()
	c.dirty[tokenID] = struct{}{}
	c.mu.Unlock()
}
