package command_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/stellar-map/internal/application/command"
	"github.com/alem-hub/stellar-map/internal/domain/completion"
	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/pkg/circuitbreaker"
	"github.com/alem-hub/stellar-map/pkg/retry"
)

type completeFixture struct {
	records   *fakeCompletions
	profiles  *fakeProfiles
	cache     *fakeCompletionCache
	nodes     *fakeNodes
	publisher *recordingPublisher
	handler   *command.CompleteNodeHandler
}

func newCompleteFixture() *completeFixture {
	f := &completeFixture{
		records:   &fakeCompletions{},
		profiles:  &fakeProfiles{},
		cache:     &fakeCompletionCache{},
		nodes:     &fakeNodes{nodes: map[string]hierarchy.RawNode{"n7": {ID: "n7", Title: "Pipes", XPReward: 120}}},
		publisher: &recordingPublisher{},
	}
	ledger := completion.NewLedger(f.records, f.profiles)
	fastRetry := retry.StoreRetrier(retry.WithInitialDelay(time.Millisecond), retry.WithMaxDelay(time.Millisecond))
	f.handler = command.NewCompleteNodeHandler(ledger, f.cache, f.publisher, fastRetry, nil,
		command.CompleteOptions{Nodes: f.nodes})
	return f
}

func TestCompleteNodeGrantsOnce(t *testing.T) {
	f := newCompleteFixture()
	ctx := context.Background()
	require.NoError(t, f.cache.Store(ctx, "ada", nil))

	res, err := f.handler.Handle(ctx, command.CompleteNodeCommand{LearnerID: "ada", NodeID: "n1"})
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.True(t, res.RewardApplied)
	assert.Equal(t, hierarchy.DefaultReward, res.Reward)
	assert.Equal(t, hierarchy.DefaultReward, res.NewTotal)
	assert.Equal(t, []string{"n1"}, f.cache.sets["ada"])

	res, err = f.handler.Handle(ctx, command.CompleteNodeCommand{LearnerID: "ada", NodeID: "n1", Reward: 500})
	require.NoError(t, err)
	assert.False(t, res.Granted)
	assert.EqualValues(t, 50, res.Reward, "original record is returned")
	assert.Equal(t, 1, f.profiles.adds)

	assert.Equal(t, []shared.EventType{shared.EventCompletionGranted, shared.EventCompletionRepeat}, f.publisher.types())
}

func TestCompleteNodeCustomReward(t *testing.T) {
	f := newCompleteFixture()

	res, err := f.handler.Handle(context.Background(), command.CompleteNodeCommand{LearnerID: "ada", NodeID: "n1", Reward: 120, CorrelationID: "c-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 120, res.NewTotal)

	require.Len(t, f.publisher.events, 1)
	granted, ok := f.publisher.events[0].(shared.CompletionGrantedEvent)
	require.True(t, ok)
	assert.Equal(t, "ada", granted.AggregateID())
	assert.Equal(t, "c-1", granted.CorrelationID)
	assert.EqualValues(t, 120, granted.Reward)
}

func TestCompleteNodeUsesStoredReward(t *testing.T) {
	f := newCompleteFixture()
	f.nodes.fails = 1

	res, err := f.handler.Handle(context.Background(), command.CompleteNodeCommand{LearnerID: "ada", NodeID: "n7"})
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.EqualValues(t, 120, res.Reward)
	assert.EqualValues(t, 120, res.NewTotal)
	assert.Equal(t, 2, f.nodes.lookups)

	res, err = f.handler.Handle(context.Background(), command.CompleteNodeCommand{LearnerID: "bob", NodeID: "n7", Reward: 30})
	require.NoError(t, err)
	assert.EqualValues(t, 30, res.Reward, "explicit reward wins")
	assert.Equal(t, 2, f.nodes.lookups)
}

func TestCompleteNodeDefaultRewardOption(t *testing.T) {
	f := newCompleteFixture()
	ledger := completion.NewLedger(f.records, f.profiles)
	handler := command.NewCompleteNodeHandler(ledger, nil, nil, nil, nil,
		command.CompleteOptions{Nodes: f.nodes, DefaultReward: 75})

	res, err := handler.Handle(context.Background(), command.CompleteNodeCommand{LearnerID: "ada", NodeID: "unlisted"})
	require.NoError(t, err)
	assert.EqualValues(t, 75, res.Reward)

	f.nodes.nodes["n8"] = hierarchy.RawNode{ID: "n8"}
	res, err = handler.Handle(context.Background(), command.CompleteNodeCommand{LearnerID: "ada", NodeID: "n8"})
	require.NoError(t, err)
	assert.EqualValues(t, 75, res.Reward, "a node without xp_reward gets the default")
}

func TestCompleteNodeLookupFailureGrantsNothing(t *testing.T) {
	f := newCompleteFixture()
	f.nodes.fails = 10

	_, err := f.handler.Handle(context.Background(), command.CompleteNodeCommand{LearnerID: "ada", NodeID: "n7"})
	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	assert.Zero(t, f.records.finds)
	assert.Zero(t, f.profiles.adds)
}

func TestCompleteNodeRewardFailureKeepsRecord(t *testing.T) {
	f := newCompleteFixture()
	f.profiles.addErr = errStoreDown

	res, err := f.handler.Handle(context.Background(), command.CompleteNodeCommand{LearnerID: "ada", NodeID: "n1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrRewardFailed)
	require.NotNil(t, res)
	assert.True(t, res.Granted)
	assert.False(t, res.RewardApplied)

	assert.Equal(t, 1, f.profiles.adds, "reward failures are not retried")
	assert.Len(t, f.records.records, 1)
	assert.Equal(t, []shared.EventType{shared.EventRewardFailed}, f.publisher.types())
}

func TestCompleteNodeRetriesTransientStoreFailure(t *testing.T) {
	f := newCompleteFixture()
	f.records.findFails = 2

	res, err := f.handler.Handle(context.Background(), command.CompleteNodeCommand{LearnerID: "ada", NodeID: "n1"})
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.Equal(t, 3, f.records.finds)
}

func TestCompleteNodeGivesUpAfterRetries(t *testing.T) {
	f := newCompleteFixture()
	f.records.findFails = 10

	_, err := f.handler.Handle(context.Background(), command.CompleteNodeCommand{LearnerID: "ada", NodeID: "n1"})
	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	assert.Equal(t, 3, f.records.finds)
	assert.Empty(t, f.publisher.events)
}

func TestCompleteNodeValidation(t *testing.T) {
	f := newCompleteFixture()
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  command.CompleteNodeCommand
		want error
	}{
		{"missing learner", command.CompleteNodeCommand{NodeID: "n1"}, shared.ErrEmptyValue},
		{"missing node", command.CompleteNodeCommand{LearnerID: "ada", NodeID: "  "}, shared.ErrEmptyValue},
		{"negative reward", command.CompleteNodeCommand{LearnerID: "ada", NodeID: "n1", Reward: -5}, shared.ErrInvalidReward},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.handler.Handle(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.records.finds)
}

func TestCompleteNodesBatch(t *testing.T) {
	f := newCompleteFixture()
	batch := command.NewCompleteNodesHandler(f.handler)

	res, err := batch.Handle(context.Background(), command.CompleteNodesCommand{
		CorrelationID: "session-7",
		Completions: []command.CompleteNodeCommand{
			{LearnerID: "ada", NodeID: "n1"},
			{LearnerID: "ada", NodeID: "n2"},
			{LearnerID: "ada", NodeID: "n1"},
			{LearnerID: "", NodeID: "n3"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalCount)
	assert.Equal(t, 2, res.GrantedCount)
	assert.Equal(t, 1, res.RepeatCount)
	assert.Equal(t, 1, res.FailedCount)
	assert.Contains(t, res.Errors, "3:n3")
	assert.EqualValues(t, 100, f.profiles.xp["ada"])
}

func TestGuardedProfileStoreFailsFast(t *testing.T) {
	profiles := &fakeProfiles{addErr: errStoreDown}
	breaker := circuitbreaker.New("profiles",
		circuitbreaker.WithFailureThreshold(1),
		circuitbreaker.WithIsFailure(func(err error) bool { return err != nil }),
	)
	guarded := command.NewGuardedProfileStore(profiles, breaker)
	ctx := context.Background()

	_, err := guarded.AddExperience(ctx, "ada", 10, completion.RewardReason, "n1")
	assert.ErrorIs(t, err, errStoreDown)

	_, err = guarded.AddExperience(ctx, "ada", 10, completion.RewardReason, "n1")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 1, profiles.adds)
}

func TestApplyRewardReplaysFailedReward(t *testing.T) {
	f := newCompleteFixture()
	ctx := context.Background()
	f.profiles.addErr = errStoreDown

	_, err := f.handler.Handle(ctx, command.CompleteNodeCommand{LearnerID: "ada", NodeID: "n7"})
	require.ErrorIs(t, err, shared.ErrRewardFailed)

	f.profiles.addErr = nil
	apply := command.NewApplyRewardHandler(completion.NewLedger(f.records, f.profiles), f.publisher, nil)
	res, err := apply.Handle(ctx, command.ApplyRewardCommand{LearnerID: "ada", NodeID: "n7", CorrelationID: "c-9"})
	require.NoError(t, err)
	assert.EqualValues(t, 120, res.Reward)
	assert.EqualValues(t, 120, res.NewTotal)

	assert.Equal(t, []shared.EventType{shared.EventRewardFailed, shared.EventRewardApplied}, f.publisher.types())
	applied, ok := f.publisher.events[1].(shared.RewardAppliedEvent)
	require.True(t, ok)
	assert.Equal(t, "c-9", applied.CorrelationID)

	_, err = apply.Handle(ctx, command.ApplyRewardCommand{LearnerID: "ada", NodeID: "n1"})
	assert.True(t, shared.IsNotFound(err))

	_, err = apply.Handle(ctx, command.ApplyRewardCommand{LearnerID: "ada"})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}
