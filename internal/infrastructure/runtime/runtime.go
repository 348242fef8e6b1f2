// Package runtime provides the execution contexts tournaments run on:
// one primary goroutine that executes tasks strictly in order, a bounded
// pool for background work, and gocron-driven periodic tasks.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
	"github.com/alem-hub/tournament-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config sizes the runtime.
type Config struct {
	// Workers bounds concurrently running background tasks.
	Workers int

	// BacklogWarn logs a warning when the primary queue grows past it.
	// The queue itself is unbounded so nested RunOnPrimary calls never block.
	BacklogWarn int

	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Workers: 8, BacklogWarn: 256}
}

var (
	// ErrStopped is returned when scheduling on a stopped runtime.
	ErrStopped = errors.New("runtime: stopped")

	// ErrInvalidPeriod is returned for non-positive periods.
	ErrInvalidPeriod = errors.New("runtime: period must be positive")
)

// ══════════════════════════════════════════════════════════════════════════════
// RUNTIME
// ══════════════════════════════════════════════════════════════════════════════

// Runtime implements tournament.Scheduler.
type Runtime struct {
	log         *zap.Logger
	sem         chan struct{}
	backlogWarn int

	ctx    context.Context
	cancel context.CancelFunc

	// primary queue
	mu      sync.Mutex
	queue   []tournament.Task
	wake    chan struct{}
	stopped bool
	done    chan struct{}

	workers sync.WaitGroup
	cron    gocron.Scheduler

	executed atomic.Int64
	panics   atomic.Int64
}

var _ tournament.Scheduler = (*Runtime)(nil)

// New creates a runtime and starts its primary loop and periodic scheduler.
func New(cfg Config) (*Runtime, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.BacklogWarn <= 0 {
		cfg.BacklogWarn = DefaultConfig().BacklogWarn
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("runtime: create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		log:         cfg.Logger.With(logger.Component("runtime")),
		sem:         make(chan struct{}, cfg.Workers),
		backlogWarn: cfg.BacklogWarn,
		ctx:         ctx,
		cancel:      cancel,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		cron:        cron,
	}

	go r.primaryLoop()
	cron.Start()

	return r, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Primary context
// ─────────────────────────────────────────────────────────────────────────────

// RunOnPrimary queues task on the primary goroutine. Tasks run one at a
// time in submission order.
func (r *Runtime) RunOnPrimary(task tournament.Task) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.log.Warn("primary task dropped, runtime stopped")
		return
	}
	r.queue = append(r.queue, task)
	backlog := len(r.queue)
	r.mu.Unlock()

	if backlog == r.backlogWarn {
		r.log.Warn("primary queue backlog", zap.Int("backlog", backlog))
	}

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runtime) primaryLoop() {
	defer close(r.done)

	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			if r.stopped {
				r.mu.Unlock()
				return
			}
			r.mu.Unlock()
			<-r.wake
			continue
		}
		task := r.queue[0]
		r.queue[0] = nil
		r.queue = r.queue[1:]
		r.mu.Unlock()

		r.safeRun("primary", task)
	}
}

// Backlog returns the number of queued primary tasks.
func (r *Runtime) Backlog() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// ─────────────────────────────────────────────────────────────────────────────
// Background pool
// ─────────────────────────────────────────────────────────────────────────────

// RunAsync runs task on the bounded pool. It never blocks the caller.
func (r *Runtime) RunAsync(task tournament.Task) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.log.Warn("async task dropped, runtime stopped")
		return
	}
	r.workers.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.workers.Done()
		r.sem <- struct{}{}
		defer func() { <-r.sem }()
		r.safeRun("async", task)
	}()
}

// ─────────────────────────────────────────────────────────────────────────────
// Periodic tasks
// ─────────────────────────────────────────────────────────────────────────────

type periodicHandle struct {
	r    *Runtime
	job  gocron.Job
	once sync.Once
}

// Cancel removes the job. Safe to call more than once.
func (h *periodicHandle) Cancel() {
	h.once.Do(func() {
		if err := h.r.cron.RemoveJob(h.job.ID()); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
			h.r.log.Warn("cancel periodic task", zap.Error(err))
		}
	})
}

// RunPeriodicAsync runs task every period after initialDelay. A run that
// is still in progress when the next one is due makes gocron skip ahead.
func (r *Runtime) RunPeriodicAsync(task tournament.Task, initialDelay, period time.Duration) (tournament.Cancelable, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if r.isStopped() {
		return nil, ErrStopped
	}

	start := gocron.WithStartImmediately()
	if initialDelay > 0 {
		start = gocron.WithStartDateTime(time.Now().Add(initialDelay))
	}

	job, err := r.cron.NewJob(
		gocron.DurationJob(period),
		gocron.NewTask(func() { r.safeRun("periodic", task) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(start),
	)
	if err != nil {
		return nil, fmt.Errorf("runtime: schedule periodic task: %w", err)
	}
	return &periodicHandle{r: r, job: job}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Run blocks until ctx is done, then shuts the runtime down.
func (r *Runtime) Run(ctx context.Context) error {
	<-ctx.Done()
	return r.Shutdown(context.Background())
}

// Shutdown stops periodic tasks, drains the primary queue and waits for
// background tasks, or gives up when ctx expires.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}

	cronErr := r.cron.Shutdown()

	finished := make(chan struct{})
	go func() {
		<-r.done
		r.workers.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = fmt.Errorf("runtime: shutdown: %w", ctx.Err())
	}
	r.cancel()

	r.log.Info("runtime stopped",
		zap.Int64("executed", r.executed.Load()),
		zap.Int64("panics", r.panics.Load()),
	)
	return errors.Join(cronErr, err)
}

func (r *Runtime) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Executed returns how many tasks finished, including those that panicked.
func (r *Runtime) Executed() int64 { return r.executed.Load() }

// safeRun keeps a panicking task from taking the process down.
func (r *Runtime) safeRun(kind string, task tournament.Task) {
	defer func() {
		r.executed.Add(1)
		if rec := recover(); rec != nil {
			r.panics.Add(1)
			r.log.Error("task panicked",
				zap.String("context", kind),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
		}
	}()
	task(r.ctx)
}
