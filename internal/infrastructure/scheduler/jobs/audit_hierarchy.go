// Package jobs contains the Stellar Map's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alem-hub/stellar-map/internal/application/query"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT HIERARCHY JOB
// ══════════════════════════════════════════════════════════════════════════════

// HierarchyValidator is the query the audit job runs.
type HierarchyValidator interface {
	Handle(ctx context.Context, q query.ValidateHierarchyQuery) (*query.ValidateHierarchyResult, error)
}

// AuditHierarchyJob validates every core's stored content on a schedule and
// publishes one HierarchyAudited event per core.
type AuditHierarchyJob struct {
	validator HierarchyValidator
	publisher shared.EventPublisher
	log       *logger.Logger
	config    AuditHierarchyConfig

	lastRunStats atomic.Pointer[AuditStats]
}

// AuditHierarchyConfig contains configuration for the audit job.
type AuditHierarchyConfig struct {
	// Timeout is the maximum duration for one run.
	Timeout time.Duration

	// FailOnErrors makes a run fail when any core has error-level issues.
	FailOnErrors bool
}

// DefaultAuditHierarchyConfig returns the default configuration.
func DefaultAuditHierarchyConfig() AuditHierarchyConfig {
	return AuditHierarchyConfig{Timeout: 2 * time.Minute}
}

// AuditStats summarizes the last run.
type AuditStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Cores       int
	Accepted    int
	Rejected    int
	Issues      map[string]int
}

// NewAuditHierarchyJob creates the job. publisher may be nil.
func NewAuditHierarchyJob(validator HierarchyValidator, publisher shared.EventPublisher, log *logger.Logger, config AuditHierarchyConfig) *AuditHierarchyJob {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditHierarchyJob{
		validator: validator,
		publisher: publisher,
		log:       log.With(logger.Component("audit_hierarchy")),
		config:    config,
	}
}

// Name returns the job name.
func (j *AuditHierarchyJob) Name() string {
	return "audit_hierarchy"
}

// Description returns a human-readable description.
func (j *AuditHierarchyJob) Description() string {
	return "Validates families, constellations and nodes of every core"
}

// Run executes the audit.
func (j *AuditHierarchyJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	stats := &AuditStats{StartedAt: time.Now(), Issues: make(map[string]int)}

	res, err := j.validator.Handle(ctx, query.ValidateHierarchyQuery{})
	if err != nil {
		return fmt.Errorf("validate hierarchy: %w", err)
	}

	for _, c := range res.Cores {
		summary := c.Report.Summary()
		stats.Cores++
		stats.Accepted += c.Report.Accepted
		stats.Rejected += c.Report.Rejected
		for kind, n := range summary {
			stats.Issues[kind] += n
		}

		if j.publisher != nil {
			if err := j.publisher.Publish(shared.NewHierarchyAuditedEvent(string(c.Core), c.Report.Accepted, summary)); err != nil {
				j.log.Warn("event publish failed", logger.Core(string(c.Core)), logger.Err(err))
			}
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastRunStats.Store(stats)

	j.log.Info("audit completed",
		logger.Int("cores", stats.Cores),
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected),
		logger.Any("issues", stats.Issues),
		logger.Latency(stats.Duration),
	)

	if j.config.FailOnErrors && res.HasErrors() {
		return fmt.Errorf("hierarchy has %d rejected records", stats.Rejected)
	}
	return nil
}

// LastRunStats returns statistics from the last completed run.
func (j *AuditHierarchyJob) LastRunStats() *AuditStats {
	return j.lastRunStats.Load()
}
