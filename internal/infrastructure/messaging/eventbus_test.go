package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alem-hub/stellar-map/internal/domain/shared"
)

func TestInMemoryBusSyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventCompletionGranted, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return errors.New("ignored")
	}))

	require.NoError(t, bus.Publish(shared.NewCompletionGrantedEvent("l1", "n1", 50, true, 50)))
	require.NoError(t, bus.Publish(shared.NewCompletionRepeatEvent("l1", "n1")))

	assert.Equal(t, []shared.EventType{shared.EventCompletionGranted}, typed)
	assert.Equal(t, []shared.EventType{shared.EventCompletionGranted, shared.EventCompletionRepeat}, all)

	snap := bus.Metrics().Snapshot()
	assert.EqualValues(t, 2, snap.TotalPublished)
	assert.EqualValues(t, 3, snap.HandlerExecutions)
	assert.EqualValues(t, 2, snap.HandlerFailures)
}

func TestInMemoryBusRecoversPanics(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))
	require.NoError(t, bus.Publish(shared.NewCompletionRepeatEvent("l1", "n1")))
	assert.EqualValues(t, 1, bus.Metrics().Snapshot().HandlerFailures)
}

func TestInMemoryBusAsyncDrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var handled atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventNodesImported, func(shared.Event) error {
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewNodesImportedEvent("file.yaml", 1, 0)))
	}
	assert.Eventually(t, func() bool { return handled.Load() == 5 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(shared.NewNodesImportedEvent("file.yaml", 1, 0)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventNodesImported, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryBusRejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	assert.Error(t, bus.Subscribe(shared.EventNodesImported, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}

func TestRedisBusCrossInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	newBus := func(id string) *RedisEventBus {
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		bus, err := NewRedisEventBus(ctx, RedisEventBusConfig{Client: client, InstanceID: id})
		require.NoError(t, err)
		t.Cleanup(func() { _ = bus.Close() })
		return bus
	}
	a := newBus("a")
	b := newBus("b")

	var mu sync.Mutex
	var local, remote []shared.Event
	require.NoError(t, a.Subscribe(shared.EventCompletionGranted, func(e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		local = append(local, e)
		return nil
	}))
	require.NoError(t, b.Subscribe(shared.EventCompletionGranted, func(e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		remote = append(remote, e)
		return nil
	}))

	require.NoError(t, a.Publish(shared.NewCompletionGrantedEvent("l1", "n1", 50, true, 50)))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(local) == 1 && len(remote) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	got := remote[0]
	mu.Unlock()
	assert.Equal(t, "l1", got.AggregateID())
	assert.Equal(t, "n1", got.Payload()["node_id"])
	assert.EqualValues(t, 50, got.Payload()["reward"])

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Publish(shared.NewCompletionRepeatEvent("l1", "n1")), ErrEventBusClosed)
}
