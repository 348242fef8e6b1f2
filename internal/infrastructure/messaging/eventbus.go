// Package messaging delivers domain events to handlers, in process and
// across instances over Redis pub/sub.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/pkg/logger"
)

var (
	ErrEventBusClosed = errors.New("event bus is closed")
	ErrNilHandler     = errors.New("handler cannot be nil")
	ErrNilEvent       = errors.New("event cannot be nil")
	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")
)

// wildcard is the subscription key of SubscribeAll.
const wildcard shared.EventType = "*"

// InMemoryEventBusConfig configures the in-process bus.
type InMemoryEventBusConfig struct {
	// AsyncMode hands each delivery to a goroutine bounded by WorkerPoolSize.
	// Otherwise handlers run on the publisher's goroutine, in subscription order.
	AsyncMode      bool
	WorkerPoolSize int
	Logger         *zap.Logger

	// OnHandled observes every delivery.
	OnHandled func(eventType shared.EventType, took time.Duration, err error)
}

func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 16}
}

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus fans events out to subscribers of this process.
// Handler errors and panics are logged and counted, never returned to Publish.
type InMemoryEventBus struct {
	cfg   InMemoryEventBusConfig
	log   *zap.Logger
	slots *semaphore.Weighted

	mu     sync.RWMutex
	subs   map[shared.EventType][]shared.EventHandler
	closed bool

	inFlight sync.WaitGroup

	published atomic.Int64
	failed    atomic.Int64
}

func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 16
	}
	return &InMemoryEventBus{
		cfg:   cfg,
		log:   cfg.Logger.With(logger.Component("eventbus")),
		slots: semaphore.NewWeighted(int64(cfg.WorkerPoolSize)),
		subs:  make(map[shared.EventType][]shared.EventHandler),
	}
}

func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, h shared.EventHandler) error {
	return b.subscribe(eventType, h)
}

func (b *InMemoryEventBus) SubscribeAll(h shared.EventHandler) error {
	return b.subscribe(wildcard, h)
}

func (b *InMemoryEventBus) subscribe(key shared.EventType, h shared.EventHandler) error {
	if h == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.subs[key] = append(b.subs[key], h)
	return nil
}

// Publish delivers event to typed subscribers first, then to wildcard ones.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed, all := b.subs[event.EventType()], b.subs[wildcard]
	targets := make([]shared.EventHandler, 0, len(typed)+len(all))
	targets = append(append(targets, typed...), all...)
	if b.cfg.AsyncMode {
		// Registered under the read lock so Close cannot miss them.
		b.inFlight.Add(len(targets))
	}
	b.mu.RUnlock()

	b.published.Add(1)
	for _, h := range targets {
		if !b.cfg.AsyncMode {
			b.deliver(event, h)
			continue
		}
		go func() {
			defer b.inFlight.Done()
			if b.slots.Acquire(context.Background(), 1) != nil {
				return
			}
			defer b.slots.Release(1)
			b.deliver(event, h)
		}()
	}
	return nil
}

func (b *InMemoryEventBus) deliver(event shared.Event, h shared.EventHandler) {
	start := time.Now()
	err := safeCall(h, event)
	took := time.Since(start)

	if b.cfg.OnHandled != nil {
		b.cfg.OnHandled(event.EventType(), took, err)
	}
	if err == nil {
		return
	}
	b.failed.Add(1)
	b.log.Error("event handler failed",
		zap.String("event_type", string(event.EventType())),
		zap.String("aggregate_id", event.AggregateID()),
		logger.Latency(took),
		zap.Error(err),
	)
}

func safeCall(h shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(event)
}

// Close rejects new events and drains every accepted delivery.
// Safe to call more than once.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	already := b.closed
	b.closed = true
	b.mu.Unlock()
	if already {
		return nil
	}

	b.inFlight.Wait()
	b.log.Info("event bus closed",
		zap.Int64("published", b.published.Load()),
		zap.Int64("failed", b.failed.Load()),
	)
	return nil
}

// Stats returns how many events were published and how many deliveries failed.
func (b *InMemoryEventBus) Stats() (published, failed int64) {
	return b.published.Load(), b.failed.Load()
}
