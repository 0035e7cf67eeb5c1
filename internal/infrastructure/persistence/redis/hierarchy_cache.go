package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
)

var _ hierarchy.TreeCache = (*HierarchyCache)(nil)

// HierarchyCache implements hierarchy.TreeCache.
type HierarchyCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewHierarchyCache creates a HierarchyCache. A non-positive ttl uses TTLHierarchy.
func NewHierarchyCache(cache *Cache, ttl time.Duration) *HierarchyCache {
	if ttl <= 0 {
		ttl = TTLHierarchy
	}
	return &HierarchyCache{cache: cache, ttl: ttl}
}

// Get returns the cached tree for core and tier. The bool is false on a miss.
func (h *HierarchyCache) Get(ctx context.Context, core visibility.Core, tier visibility.Tier) (hierarchy.Grouped, bool, error) {
	var out hierarchy.Grouped
	err := h.cache.Get(ctx, h.cache.HierarchyKey(string(core), tier.String()), &out)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return hierarchy.Grouped{}, false, nil
		}
		return hierarchy.Grouped{}, false, err
	}
	return out, true, nil
}

// Set stores a grouped tree for core and tier.
func (h *HierarchyCache) Set(ctx context.Context, core visibility.Core, tier visibility.Tier, v hierarchy.Grouped) error {
	return h.cache.Set(ctx, h.cache.HierarchyKey(string(core), tier.String()), v, h.ttl)
}

// Invalidate drops every cached tier of core. An empty core drops all cores.
func (h *HierarchyCache) Invalidate(ctx context.Context, core visibility.Core) error {
	_, err := h.cache.DeleteMatching(ctx, h.cache.HierarchyPattern(string(core)))
	return err
}
