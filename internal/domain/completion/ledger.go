// Package completion records first-time completion of content nodes and
// issues the node's reward exactly once per learner.
package completion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/stellar-map/internal/domain/shared"
)

// Record marks that a learner finished a node. At most one exists per
// (learner, node) pair.
type Record struct {
	ID          uuid.UUID `json:"id"`
	LearnerID   string    `json:"learner_id"`
	NodeID      string    `json:"node_id"`
	Reward      int64     `json:"reward"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store persists completion records behind a uniqueness constraint on
// (learner, node).
type Store interface {
	// Find returns shared.ErrCompletionNotFound when no record exists.
	Find(ctx context.Context, learnerID, nodeID string) (*Record, error)

	// Insert returns shared.ErrCompletionExists when the pair is already recorded.
	Insert(ctx context.Context, rec Record) error

	ListByLearner(ctx context.Context, learnerID string) ([]Record, error)
}

// ProfileStore holds learners' running experience totals.
type ProfileStore interface {
	GetExperience(ctx context.Context, learnerID string) (int64, error)

	// AddExperience increments the learner's total and returns the new value.
	AddExperience(ctx context.Context, learnerID string, delta int64, reason, nodeID string) (int64, error)
}

// Cache keeps per-learner sets of completed node ids in front of a Store.
type Cache interface {
	// Load reports false when the learner is not cached.
	Load(ctx context.Context, learnerID string) ([]string, bool, error)
	Store(ctx context.Context, learnerID string, nodeIDs []string) error

	// Add records one completion for a learner that is already cached.
	Add(ctx context.Context, learnerID, nodeID string) error
}

// Result is the outcome of Complete.
type Result struct {
	// Granted is true only for the call that created the record.
	Granted bool   `json:"granted"`
	Record  Record `json:"record"`

	// RewardApplied and NewTotal are meaningful only when Granted.
	RewardApplied bool  `json:"reward_applied"`
	NewTotal      int64 `json:"new_total"`
}

// Ledger is the single write path for completion records.
type Ledger struct {
	store    Store
	profiles ProfileStore
	now      func() time.Time
	newID    func() uuid.UUID
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(l *Ledger) { l.newID = fn }
}

// NewLedger creates a Ledger.
func NewLedger(store Store, profiles ProfileStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		profiles: profiles,
		now:      time.Now,
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RewardReason is recorded in the experience history for completion rewards.
const RewardReason = "node_completion"

// Complete records that learnerID finished nodeID and applies reward once.
//
// An existing record yields Granted=false with that record and no error. If
// the insert loses a race to a concurrent call, the winner's record is
// returned the same way. When the reward cannot be applied after the record
// was written, the returned Result has Granted=true and RewardApplied=false,
// and the error wraps shared.ErrRewardFailed; the record is kept.
func (l *Ledger) Complete(ctx context.Context, learnerID, nodeID string, reward int64) (Result, error) {
	learnerID = strings.TrimSpace(learnerID)
	nodeID = strings.TrimSpace(nodeID)
	if learnerID == "" || nodeID == "" {
		return Result{}, shared.NewDomainError("completion", "Complete", shared.ErrInvalidInput,
			"learner id and node id are required")
	}
	if reward < 0 {
		return Result{}, shared.ErrInvalidReward
	}

	existing, err := l.store.Find(ctx, learnerID, nodeID)
	switch {
	case err == nil:
		return Result{Granted: false, Record: *existing}, nil
	case !shared.IsNotFound(err):
		return Result{}, shared.WrapError("completion", "Complete", shared.ErrExternalService,
			"check existing completion", err)
	}

	rec := Record{
		ID:          l.newID(),
		LearnerID:   learnerID,
		NodeID:      nodeID,
		Reward:      reward,
		CompletedAt: l.now().UTC(),
	}

	if err := l.store.Insert(ctx, rec); err != nil {
		if !shared.IsAlreadyExists(err) {
			return Result{}, shared.WrapError("completion", "Complete", shared.ErrExternalService,
				"insert completion", err)
		}
		winner, findErr := l.store.Find(ctx, learnerID, nodeID)
		if findErr != nil {
			return Result{}, shared.WrapError("completion", "Complete", shared.ErrExternalService,
				"read concurrent completion", errors.Join(err, findErr))
		}
		return Result{Granted: false, Record: *winner}, nil
	}

	total, err := l.profiles.AddExperience(ctx, learnerID, reward, RewardReason, nodeID)
	if err != nil {
		return Result{Granted: true, Record: rec}, shared.WrapError("completion", "Complete",
			shared.ErrExternalService, "apply reward", errors.Join(shared.ErrRewardFailed, err))
	}

	return Result{Granted: true, Record: rec, RewardApplied: true, NewTotal: total}, nil
}

// ManualRewardReason is recorded when an owed reward is applied by hand.
const ManualRewardReason = "node_completion_replay"

// ApplyOwedReward applies the reward of an existing completion record. It is
// for completions reported as RewardFailed; the ledger cannot tell whether
// the reward was already applied, so the caller must. A missing record is
// shared.ErrCompletionNotFound.
func (l *Ledger) ApplyOwedReward(ctx context.Context, learnerID, nodeID string) (Record, int64, error) {
	rec, err := l.store.Find(ctx, strings.TrimSpace(learnerID), strings.TrimSpace(nodeID))
	if err != nil {
		if shared.IsNotFound(err) {
			return Record{}, 0, err
		}
		return Record{}, 0, shared.WrapError("completion", "ApplyOwedReward", shared.ErrExternalService,
			"find completion", err)
	}

	total, err := l.profiles.AddExperience(ctx, rec.LearnerID, rec.Reward, ManualRewardReason, rec.NodeID)
	if err != nil {
		return *rec, 0, shared.WrapError("completion", "ApplyOwedReward", shared.ErrExternalService,
			"apply reward", errors.Join(shared.ErrRewardFailed, err))
	}
	return *rec, total, nil
}

// IsCompleted reports whether learnerID has completed nodeID.
func (l *Ledger) IsCompleted(ctx context.Context, learnerID, nodeID string) (bool, error) {
	_, err := l.store.Find(ctx, learnerID, nodeID)
	switch {
	case err == nil:
		return true, nil
	case shared.IsNotFound(err):
		return false, nil
	default:
		return false, shared.WrapError("completion", "IsCompleted", shared.ErrExternalService,
			"check completion", err)
	}
}

// Completed returns the ids of every node learnerID has completed.
func (l *Ledger) Completed(ctx context.Context, learnerID string) ([]string, error) {
	recs, err := l.store.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, shared.WrapError("completion", "Completed", shared.ErrExternalService,
			"list completions", err)
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.NodeID)
	}
	return ids, nil
}
