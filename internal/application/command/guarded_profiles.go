package command

import (
	"context"

	"github.com/alem-hub/stellar-map/internal/domain/completion"
	"github.com/alem-hub/stellar-map/pkg/circuitbreaker"
)

// GuardedProfileStore routes profile reads and writes through a circuit
// breaker so an unavailable profile store fails fast.
type GuardedProfileStore struct {
	inner   completion.ProfileStore
	breaker *circuitbreaker.CircuitBreaker
}

var _ completion.ProfileStore = (*GuardedProfileStore)(nil)

// NewGuardedProfileStore wraps inner with breaker.
func NewGuardedProfileStore(inner completion.ProfileStore, breaker *circuitbreaker.CircuitBreaker) *GuardedProfileStore {
	return &GuardedProfileStore{inner: inner, breaker: breaker}
}

// GetExperience implements completion.ProfileStore.
func (g *GuardedProfileStore) GetExperience(ctx context.Context, learnerID string) (int64, error) {
	var xp int64
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := g.inner.GetExperience(ctx, learnerID)
		xp = v
		return err
	})
	return xp, err
}

// AddExperience implements completion.ProfileStore.
func (g *GuardedProfileStore) AddExperience(ctx context.Context, learnerID string, delta int64, reason, nodeID string) (int64, error) {
	var total int64
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := g.inner.AddExperience(ctx, learnerID, delta, reason, nodeID)
		total = v
		return err
	})
	return total, err
}
