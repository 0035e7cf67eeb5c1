package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStore = errors.New("store unavailable")

func fail(context.Context) error { return errStore }
func ok(context.Context) error   { return nil }

func TestOpensAfterThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string
	cb := New("profiles",
		WithFailureThreshold(2),
		WithSuccessThreshold(2),
		WithMaxHalfOpenRequests(2),
		WithTimeout(time.Second),
		WithClock(func() time.Time { return now }),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errStore)
	assert.True(t, cb.IsClosed())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errStore)
	assert.True(t, cb.IsOpen())

	now = now.Add(400 * time.Millisecond)
	err := cb.Execute(ctx, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	var open *OpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, "profiles", open.Breaker)
	assert.Equal(t, 600*time.Millisecond, open.RetryAfter)

	now = now.Add(600 * time.Millisecond)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, ok))
	assert.True(t, cb.IsClosed())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
	counts := cb.Counts()
	assert.Equal(t, 1, counts.Rejected)
	assert.Equal(t, 4, counts.Requests)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("content", WithFailureThreshold(1), WithTimeout(time.Second),
		WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errStore)
	assert.True(t, cb.IsOpen())
}

func TestHalfOpenLimitsProbes(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("content", WithFailureThreshold(1), WithTimeout(time.Second),
		WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	now = now.Add(time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		nested := cb.Execute(ctx, ok)
		assert.ErrorIs(t, nested, ErrTooManyRequests)
		assert.NotErrorIs(t, nested, ErrCircuitOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCanceledCallsDoNotCount(t *testing.T) {
	cb := New("content", WithFailureThreshold(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, cb.IsClosed())
	assert.Equal(t, 0, cb.Counts().TotalFailures)
}

func TestStoreBreakerIgnoresNonFailures(t *testing.T) {
	notFound := errors.New("not found")
	cb := StoreBreaker("profiles", func(err error) bool { return !errors.Is(err, notFound) }, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return notFound })
	}
	assert.True(t, cb.IsClosed())
	assert.Equal(t, 10, cb.Counts().TotalSuccesses)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}
	assert.True(t, cb.IsOpen())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)

	cb.Reset()
	assert.True(t, cb.IsClosed())
	assert.Equal(t, Counts{}, cb.Counts())
}
