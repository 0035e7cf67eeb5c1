package completion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/stellar-map/internal/domain/shared"
)

type memStore struct {
	mu       sync.Mutex
	records  map[[2]string]Record
	findMiss int // forces the next N Find calls to miss, simulating a race window
	findErr  error
	inserted int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[[2]string]Record)}
}

func (s *memStore) Find(_ context.Context, learnerID, nodeID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.findMiss > 0 {
		s.findMiss--
		return nil, shared.ErrCompletionNotFound
	}
	r, ok := s.records[[2]string{learnerID, nodeID}]
	if !ok {
		return nil, shared.ErrCompletionNotFound
	}
	return &r, nil
}

func (s *memStore) Insert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{rec.LearnerID, rec.NodeID}
	if _, ok := s.records[key]; ok {
		return shared.ErrCompletionExists
	}
	s.records[key] = rec
	s.inserted++
	return nil
}

func (s *memStore) ListByLearner(_ context.Context, learnerID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for k, r := range s.records {
		if k[0] == learnerID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memProfiles struct {
	mu    sync.Mutex
	xp    map[string]int64
	calls int
	err   error
}

func newMemProfiles() *memProfiles {
	return &memProfiles{xp: make(map[string]int64)}
}

func (p *memProfiles) GetExperience(_ context.Context, learnerID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.xp[learnerID], nil
}

func (p *memProfiles) AddExperience(_ context.Context, learnerID string, delta int64, _, _ string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	p.xp[learnerID] += delta
	return p.xp[learnerID], nil
}

func fixedLedger(store Store, profiles ProfileStore) *Ledger {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewLedger(store, profiles, WithClock(func() time.Time { return at }))
}

func TestCompleteGrantsOnce(t *testing.T) {
	store, profiles := newMemStore(), newMemProfiles()
	ledger := fixedLedger(store, profiles)
	ctx := context.Background()

	first, err := ledger.Complete(ctx, "learner", "node", 50)
	require.NoError(t, err)
	assert.True(t, first.Granted)
	assert.True(t, first.RewardApplied)
	assert.EqualValues(t, 50, first.NewTotal)
	assert.NotEqual(t, uuid.Nil, first.Record.ID)

	second, err := ledger.Complete(ctx, "learner", "node", 50)
	require.NoError(t, err)
	assert.False(t, second.Granted)
	assert.Equal(t, first.Record, second.Record)

	assert.Equal(t, 1, store.inserted)
	assert.Equal(t, 1, profiles.calls)
	assert.EqualValues(t, 50, profiles.xp["learner"])
}

func TestCompleteConcurrentCallsGrantOnce(t *testing.T) {
	store, profiles := newMemStore(), newMemProfiles()
	ledger := NewLedger(store, profiles)

	const workers = 16
	results := make([]Result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := ledger.Complete(context.Background(), "learner", "node", 75)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, r := range results {
		if r.Granted {
			granted++
		}
	}
	assert.Equal(t, 1, granted)
	assert.Equal(t, 1, store.inserted)
	assert.EqualValues(t, 75, profiles.xp["learner"])
	assert.Equal(t, 1, profiles.calls)
}

func TestCompleteLostRaceFallsBackToExisting(t *testing.T) {
	store, profiles := newMemStore(), newMemProfiles()
	winner := Record{ID: uuid.New(), LearnerID: "learner", NodeID: "node", Reward: 50}
	store.records[[2]string{"learner", "node"}] = winner
	store.findMiss = 1

	res, err := NewLedger(store, profiles).Complete(context.Background(), "learner", "node", 50)

	require.NoError(t, err)
	assert.False(t, res.Granted)
	assert.Equal(t, winner.ID, res.Record.ID)
	assert.Zero(t, profiles.calls)
}

func TestCompleteRewardFailureKeepsRecord(t *testing.T) {
	store, profiles := newMemStore(), newMemProfiles()
	profiles.err = errors.New("profile db down")
	ledger := NewLedger(store, profiles)

	res, err := ledger.Complete(context.Background(), "learner", "node", 50)

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrRewardFailed)
	assert.True(t, shared.IsExternalService(err))
	assert.True(t, res.Granted)
	assert.False(t, res.RewardApplied)

	done, err := ledger.IsCompleted(context.Background(), "learner", "node")
	require.NoError(t, err)
	assert.True(t, done)

	again, err := ledger.Complete(context.Background(), "learner", "node", 50)
	require.NoError(t, err)
	assert.False(t, again.Granted)
}

func TestCompleteLookupFailureIsReported(t *testing.T) {
	store, profiles := newMemStore(), newMemProfiles()
	store.findErr = errors.New("timeout")

	_, err := NewLedger(store, profiles).Complete(context.Background(), "learner", "node", 50)

	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	assert.Zero(t, store.inserted)
}

func TestCompleteValidatesInput(t *testing.T) {
	ledger := NewLedger(newMemStore(), newMemProfiles())
	ctx := context.Background()

	_, err := ledger.Complete(ctx, "", "node", 10)
	assert.True(t, shared.IsValidation(err))

	_, err = ledger.Complete(ctx, "learner", "node", -1)
	assert.ErrorIs(t, err, shared.ErrInvalidReward)
}

func TestCompletedListsNodeIDs(t *testing.T) {
	store, profiles := newMemStore(), newMemProfiles()
	ledger := NewLedger(store, profiles)
	ctx := context.Background()

	_, err := ledger.Complete(ctx, "learner", "a", 1)
	require.NoError(t, err)
	_, err = ledger.Complete(ctx, "learner", "b", 1)
	require.NoError(t, err)
	_, err = ledger.Complete(ctx, "other", "c", 1)
	require.NoError(t, err)

	ids, err := ledger.Completed(ctx, "learner")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestApplyOwedReward(t *testing.T) {
	store, profiles := newMemStore(), newMemProfiles()
	profiles.err = errors.New("profile db down")
	ledger := fixedLedger(store, profiles)
	ctx := context.Background()

	_, err := ledger.Complete(ctx, "learner", "node", 80)
	require.ErrorIs(t, err, shared.ErrRewardFailed)

	_, _, err = ledger.ApplyOwedReward(ctx, "learner", "node")
	assert.ErrorIs(t, err, shared.ErrRewardFailed)

	profiles.err = nil
	rec, total, err := ledger.ApplyOwedReward(ctx, "learner", "node")
	require.NoError(t, err)
	assert.EqualValues(t, 80, rec.Reward)
	assert.EqualValues(t, 80, total)

	_, _, err = ledger.ApplyOwedReward(ctx, "learner", "other")
	assert.ErrorIs(t, err, shared.ErrCompletionNotFound)
}
