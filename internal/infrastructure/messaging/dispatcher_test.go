package messaging

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/pkg/retry"
)

func newTestDispatcher(bus shared.EventSubscriber) *Dispatcher {
	cfg := DefaultDispatcherConfig(bus)
	cfg.Retrier = retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(2*time.Millisecond),
		retry.WithJitter(0),
	)
	cfg.DeadLetterQueueSize = 2
	return NewDispatcher(cfg)
}

func TestDispatcher_RoutesByEventType(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	d := newTestDispatcher(bus)
	defer d.Stop()

	var online, offline atomic.Int32
	require.NoError(t, d.RegisterSync(shared.EventPlayerWentOnline, "online", func(shared.Event) error {
		online.Add(1)
		return nil
	}))
	require.NoError(t, d.Register(shared.EventPlayerWentOffline, "offline", func(shared.Event) error {
		offline.Add(1)
		return nil
	}))
	require.NoError(t, d.Start())

	require.NoError(t, bus.Publish(onlineEvent("p1")))
	require.NoError(t, bus.Publish(shared.NewPlayerWentOfflineEvent("p1")))
	d.Wait()

	assert.Equal(t, int32(1), online.Load())
	assert.Equal(t, int32(1), offline.Load())
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	d := newTestDispatcher(nil)
	defer d.Stop()

	var calls atomic.Int32
	require.NoError(t, d.RegisterSync(shared.EventPlayerWentOnline, "flaky", func(shared.Event) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	assert.NoError(t, d.Dispatch(onlineEvent("p1")))
	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, d.DeadLetterQueue().Size())
}

func TestDispatcher_ExhaustedGoesToDeadLetters(t *testing.T) {
	var results []error
	cfg := DefaultDispatcherConfig(nil)
	cfg.Retrier = retry.New(retry.WithMaxAttempts(2), retry.WithInitialDelay(time.Millisecond), retry.WithJitter(0))
	cfg.OnResult = func(_ string, _ shared.EventType, err error) { results = append(results, err) }
	d := NewDispatcher(cfg)
	defer d.Stop()

	failure := errors.New("store down")
	require.NoError(t, d.RegisterSync(shared.EventPlayerWentOnline, "broken", func(shared.Event) error {
		return failure
	}))

	err := d.Dispatch(onlineEvent("p1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, failure)

	entry, ok := d.DeadLetterQueue().Pop()
	require.True(t, ok)
	assert.Equal(t, "broken", entry.HandlerName)
	assert.Equal(t, 2, entry.Attempts)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0], failure)
}

func TestDispatcher_PanicIsNotRetried(t *testing.T) {
	d := newTestDispatcher(nil)
	d.Use(Recover(zap.NewNop()), Trace(zap.NewNop()))
	defer d.Stop()

	var calls atomic.Int32
	require.NoError(t, d.RegisterSync(shared.EventPlayerWentOnline, "panics", func(shared.Event) error {
		calls.Add(1)
		panic("nil map")
	}))

	err := d.Dispatch(onlineEvent("p1"))
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatcher_TimeoutCountsAsFailure(t *testing.T) {
	cfg := DefaultDispatcherConfig(nil)
	cfg.Retrier = retry.New(retry.WithMaxAttempts(1))
	d := NewDispatcher(cfg)
	defer d.Stop()

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, d.AddRoute(shared.EventPlayerWentOnline, Route{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Handler: func(shared.Event) error {
			<-release
			return nil
		},
	}))

	err := d.Dispatch(onlineEvent("p1"))
	assert.ErrorIs(t, err, shared.ErrTimeout)
}

func TestDeadLetterQueue_EvictsOldest(t *testing.T) {
	q := NewDeadLetterQueue(2)
	q.Add(DeadLetterEntry{HandlerName: "a"})
	q.Add(DeadLetterEntry{HandlerName: "b"})
	q.Add(DeadLetterEntry{HandlerName: "c"})

	entries := q.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].HandlerName)
	assert.Equal(t, "c", entries[1].HandlerName)

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", first.HandlerName)

	q.Add(DeadLetterEntry{HandlerName: "d"})
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, "c", q.Entries()[0].HandlerName)
	assert.Equal(t, "d", q.Entries()[1].HandlerName)

	_, _ = q.Pop()
	_, _ = q.Pop()
	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestDispatcher_RegistrationValidation(t *testing.T) {
	d := newTestDispatcher(nil)
	defer d.Stop()

	assert.ErrorIs(t, d.Register(shared.EventPlayerWentOnline, "x", nil), ErrNilHandler)
	assert.Error(t, d.Register(shared.EventPlayerWentOnline, "", func(shared.Event) error { return nil }))
	assert.Error(t, d.Start())
}
