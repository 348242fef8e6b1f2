package messaging

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/pkg/logger"
	"github.com/alem-hub/tournament-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Route binds one named handler to an event type.
type Route struct {
	Name    string
	Handler shared.EventHandler
	// Async routes run on their own goroutine; sync routes run on the publisher's.
	Async bool
	// Timeout bounds one attempt. Zero means 30s.
	Timeout time.Duration
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Bus shared.EventSubscriber

	// WorkerPoolSize caps handlers running at once across all routes.
	WorkerPoolSize      int
	Retrier             *retry.Retrier
	DeadLetterQueueSize int
	Logger              *zap.Logger

	// OnResult is called once per route invocation, after retries.
	OnResult func(route string, eventType shared.EventType, err error)
}

// DefaultDispatcherConfig returns the worker defaults for bus.
func DefaultDispatcherConfig(bus shared.EventSubscriber) DispatcherConfig {
	return DispatcherConfig{Bus: bus, WorkerPoolSize: 10, DeadLetterQueueSize: 1000}
}

// Dispatcher fans events from a bus out to application handlers. Each
// attempt goes through the middleware chain; a route that keeps failing is
// parked in the dead letter queue.
type Dispatcher struct {
	cfg   DispatcherConfig
	slots *semaphore.Weighted
	dead  *DeadLetterQueue
	log   *zap.Logger

	mu     sync.RWMutex
	routes map[shared.EventType][]Route
	chain  []Middleware

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}
	if cfg.Retrier == nil {
		cfg.Retrier = retry.New(retry.WithMaxDelay(5 * time.Second))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:    cfg,
		slots:  semaphore.NewWeighted(int64(cfg.WorkerPoolSize)),
		dead:   NewDeadLetterQueue(cfg.DeadLetterQueueSize),
		log:    cfg.Logger.With(logger.Component("dispatcher")),
		routes: make(map[shared.EventType][]Route),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddRoute registers a route for eventType.
func (d *Dispatcher) AddRoute(eventType shared.EventType, r Route) error {
	switch {
	case r.Handler == nil:
		return ErrNilHandler
	case r.Name == "":
		return errors.New("route name is required")
	}
	if r.Timeout <= 0 {
		r.Timeout = 30 * time.Second
	}

	d.mu.Lock()
	d.routes[eventType] = append(d.routes[eventType], r)
	d.mu.Unlock()

	d.log.Debug("route added",
		zap.String("event_type", string(eventType)),
		zap.String("route", r.Name),
		zap.Bool("async", r.Async),
	)
	return nil
}

// Register adds an asynchronous route.
func (d *Dispatcher) Register(eventType shared.EventType, name string, h shared.EventHandler) error {
	return d.AddRoute(eventType, Route{Name: name, Handler: h, Async: true})
}

// RegisterSync adds a route that runs on the publishing goroutine.
func (d *Dispatcher) RegisterSync(eventType shared.EventType, name string, h shared.EventHandler) error {
	return d.AddRoute(eventType, Route{Name: name, Handler: h})
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware decorates a handler. The first added runs outermost.
type Middleware func(shared.EventHandler) shared.EventHandler

func (d *Dispatcher) Use(mw ...Middleware) {
	d.mu.Lock()
	d.chain = append(d.chain, mw...)
	d.mu.Unlock()
}

// Recover turns a handler panic into ErrHandlerPanic. Such errors are not retried.
func Recover(log *zap.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				log.Error("handler panicked",
					zap.String("event_type", string(event.EventType())),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			}()
			return next(event)
		}
	}
}

// Trace logs every attempt: failures at warn, successes at debug.
func Trace(log *zap.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			fields := []zap.Field{
				zap.String("event_type", string(event.EventType())),
				zap.String("aggregate_id", event.AggregateID()),
				logger.Latency(time.Since(start)),
			}
			if err != nil {
				log.Warn("handler attempt failed", append(fields, zap.Error(err))...)
				return err
			}
			log.Debug("handler done", fields...)
			return nil
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH
// ══════════════════════════════════════════════════════════════════════════════

// Start subscribes to every event on the bus.
func (d *Dispatcher) Start() error {
	if d.cfg.Bus == nil {
		return errors.New("dispatcher has no bus")
	}
	return d.cfg.Bus.SubscribeAll(d.Dispatch)
}

// Dispatch runs the routes of event. Sync route errors are joined and returned.
func (d *Dispatcher) Dispatch(event shared.Event) error {
	d.mu.RLock()
	routes := d.routes[event.EventType()]
	chain := d.chain
	d.mu.RUnlock()

	var errs []error
	for _, r := range routes {
		h := wrap(r.Handler, chain)
		if !r.Async {
			errs = append(errs, d.run(event, r, h))
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			_ = d.run(event, r, h)
		}()
	}
	return errors.Join(errs...)
}

func wrap(h shared.EventHandler, chain []Middleware) shared.EventHandler {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func (d *Dispatcher) run(event shared.Event, r Route, h shared.EventHandler) error {
	if err := d.slots.Acquire(d.ctx, 1); err != nil {
		return err
	}
	defer d.slots.Release(1)

	attempts := 0
	err := d.cfg.Retrier.Do(d.ctx, func(ctx context.Context) error {
		attempts++
		err := attempt(ctx, h, event, r.Timeout)
		if errors.Is(err, ErrHandlerPanic) {
			return retry.Permanent(err)
		}
		return err
	})
	if d.cfg.OnResult != nil {
		d.cfg.OnResult(r.Name, event.EventType(), err)
	}
	if err == nil {
		return nil
	}

	d.dead.Add(DeadLetterEntry{
		Event:       event,
		HandlerName: r.Name,
		Error:       err,
		Attempts:    attempts,
		FailedAt:    time.Now(),
	})
	d.log.Error("route gave up",
		zap.String("route", r.Name),
		zap.String("event_type", string(event.EventType())),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	return fmt.Errorf("route %s: %d attempts: %w", r.Name, attempts, err)
}

// attempt runs h once. A handler that overruns keeps its goroutine; only
// the dispatcher stops waiting for it.
func attempt(ctx context.Context, h shared.EventHandler, event shared.Event, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h(event) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: handler exceeded %v", shared.ErrTimeout, timeout)
		}
		return ctx.Err()
	}
}

// Wait blocks until running async routes return.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Stop cancels pending retries and waits for async routes.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
	d.log.Info("dispatcher stopped", zap.Int("dead_letters", d.dead.Size()))
}

func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue { return d.dead }

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTERS
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry is one route invocation that exhausted its retries.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	Attempts    int
	FailedAt    time.Time
}

// DeadLetterQueue is a fixed-size ring; the oldest entry is overwritten when full.
type DeadLetterQueue struct {
	mu   sync.Mutex
	ring []DeadLetterEntry
	head int // index of the oldest entry
	n    int
}

func NewDeadLetterQueue(size int) *DeadLetterQueue {
	if size <= 0 {
		size = 1000
	}
	return &DeadLetterQueue{ring: make([]DeadLetterEntry, size)}
}

func (q *DeadLetterQueue) Add(e DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n < len(q.ring) {
		q.ring[(q.head+q.n)%len(q.ring)] = e
		q.n++
		return
	}
	q.ring[q.head] = e
	q.head = (q.head + 1) % len(q.ring)
}

// Entries returns a copy, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetterEntry, q.n)
	for i := range out {
		out[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	return out
}

func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Pop removes the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return DeadLetterEntry{}, false
	}
	e := q.ring[q.head]
	q.ring[q.head] = DeadLetterEntry{}
	q.head = (q.head + 1) % len(q.ring)
	q.n--
	return e, true
}
