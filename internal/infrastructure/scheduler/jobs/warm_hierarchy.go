package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/stellar-map/internal/application/query"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM HIERARCHY JOB
// ══════════════════════════════════════════════════════════════════════════════

// WarmHierarchyJobName is the registered name of the warm job.
const WarmHierarchyJobName = "warm_hierarchy"

// MapLoader is the query the warm job runs.
type MapLoader interface {
	Handle(ctx context.Context, q query.GetStellarMapQuery) (*query.GetStellarMapResult, error)
}

// WarmHierarchyJob loads the map of every core at every tier so the tree
// cache is filled before learners ask for it.
type WarmHierarchyJob struct {
	classifier *visibility.Classifier
	loader     MapLoader
	log        *logger.Logger
	timeout    time.Duration
}

// NewWarmHierarchyJob creates the job.
func NewWarmHierarchyJob(classifier *visibility.Classifier, loader MapLoader, log *logger.Logger, timeout time.Duration) *WarmHierarchyJob {
	if log == nil {
		log = logger.Nop()
	}
	return &WarmHierarchyJob{
		classifier: classifier,
		loader:     loader,
		log:        log.With(logger.Component(WarmHierarchyJobName)),
		timeout:    timeout,
	}
}

// Name returns the job name.
func (j *WarmHierarchyJob) Name() string {
	return WarmHierarchyJobName
}

// Description returns a human-readable description.
func (j *WarmHierarchyJob) Description() string {
	return "Loads every core and tier into the hierarchy cache"
}

// Run loads each (core, tier) pair at the tier's entry threshold. A failing
// pair is logged; the first failure is returned after all pairs ran.
func (j *WarmHierarchyJob) Run(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	var firstErr error
	warmed := 0
	for _, core := range j.classifier.Cores() {
		th, _ := j.classifier.Thresholds(core)
		for _, tier := range visibility.Tiers {
			if err := ctx.Err(); err != nil {
				return err
			}
			xp := th.For(tier)
			if _, err := j.loader.Handle(ctx, query.GetStellarMapQuery{Core: string(core), XP: &xp}); err != nil {
				j.log.Warn("warm failed", logger.Core(string(core)), logger.Tier(tier.String()), logger.Err(err))
				if firstErr == nil {
					firstErr = fmt.Errorf("warm %s/%s: %w", core, tier, err)
				}
				continue
			}
			warmed++
		}
	}

	j.log.Debug("hierarchy cache warmed", logger.Int("entries", warmed))
	return firstErr
}
