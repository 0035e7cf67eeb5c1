package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/stellar-map/internal/domain/completion"
)

var _ completion.Cache = (*CompletionCache)(nil)

// completedMarker keeps a loaded but empty completion set distinguishable
// from a missing one.
const completedMarker = "~"

// addIfLoaded adds a member only to a set that has already been loaded.
var addIfLoaded = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("SADD", KEYS[1], ARGV[1])
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// CompletionCache implements completion.Cache with one Redis set per learner.
type CompletionCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewCompletionCache creates a CompletionCache. A non-positive ttl uses TTLCompleted.
func NewCompletionCache(cache *Cache, ttl time.Duration) *CompletionCache {
	if ttl <= 0 {
		ttl = TTLCompleted
	}
	return &CompletionCache{cache: cache, ttl: ttl}
}

// Load returns the learner's completed node ids. The bool is false when the
// learner is not cached.
func (c *CompletionCache) Load(ctx context.Context, learnerID string) ([]string, bool, error) {
	members, err := c.cache.SMembers(ctx, c.cache.CompletedKey(learnerID))
	if err != nil {
		return nil, false, err
	}
	if len(members) == 0 {
		return nil, false, nil
	}
	ids := make([]string, 0, len(members)-1)
	for _, m := range members {
		if m != completedMarker {
			ids = append(ids, m)
		}
	}
	return ids, true, nil
}

// Store replaces the learner's cached set with nodeIDs.
func (c *CompletionCache) Store(ctx context.Context, learnerID string, nodeIDs []string) error {
	key := c.cache.CompletedKey(learnerID)
	members := make([]interface{}, 0, len(nodeIDs)+1)
	members = append(members, completedMarker)
	for _, id := range nodeIDs {
		members = append(members, id)
	}

	pipe := c.cache.Client().TxPipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return unavailable("Store", err)
}

// Add records one more completion. A learner whose set was never loaded is
// left uncached so the next Load falls through to the store.
func (c *CompletionCache) Add(ctx context.Context, learnerID, nodeID string) error {
	err := addIfLoaded.Run(ctx, c.cache.Client(), []string{c.cache.CompletedKey(learnerID)}, nodeID, c.ttl.Milliseconds()).Err()
	if errors.Is(err, redis.Nil) {
		err = nil
	}
	return unavailable("Add", err)
}

// Contains reports whether nodeID is in the learner's cached set. The
// second result is false when the learner is not cached.
func (c *CompletionCache) Contains(ctx context.Context, learnerID, nodeID string) (bool, bool, error) {
	key := c.cache.CompletedKey(learnerID)
	pipe := c.cache.Client().Pipeline()
	loaded := pipe.Exists(ctx, key)
	member := pipe.SIsMember(ctx, key, nodeID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, false, unavailable("Contains", err)
	}
	if loaded.Val() == 0 {
		return false, false, nil
	}
	return member.Val(), true, nil
}

// Invalidate drops the learner's cached set.
func (c *CompletionCache) Invalidate(ctx context.Context, learnerID string) error {
	return c.cache.Delete(ctx, c.cache.CompletedKey(learnerID))
}
