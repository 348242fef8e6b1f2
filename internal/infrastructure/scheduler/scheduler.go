// Package scheduler runs background jobs of Tournament Hub on cron
// expressions: the lifecycle watcher and deferred action delivery.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrInvalidSpec             = errors.New("invalid cron spec")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// Job is one unit of background work. Run gets a context that ends on
// Stop or when the job timeout passes.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// JobResult describes one finished run.
type JobResult struct {
	JobName   string
	StartedAt time.Time
	Duration  time.Duration
	Error     error
	// Manual is set for RunNow.
	Manual bool
}

func (r JobResult) Success() bool { return r.Error == nil }

// JobInfo describes a registered job for status output.
type JobInfo struct {
	Name        string
	Description string
	Spec        string
	NextRun     time.Time
	Runs        int64
	Failures    int64
	Last        *JobResult
}

// Config configures a Scheduler.
type Config struct {
	Logger *zap.Logger
	// Location is used to evaluate specs. Nil means UTC.
	Location *time.Location
	// JobTimeout bounds each run. Zero disables it.
	JobTimeout time.Duration
	// HistorySize is how many results History keeps.
	HistorySize   int
	OnJobComplete func(JobResult)
}

func DefaultConfig() Config {
	return Config{Location: time.UTC, JobTimeout: time.Minute, HistorySize: 100}
}

// specParser accepts six fields, seconds first, plus @every and @hourly style descriptors.
var specParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler runs jobs on cron specs. A run still in progress when its next
// tick fires makes that tick a no-op. Panics in a job are recovered by cron.
type Scheduler struct {
	cfg  Config
	cron *cron.Cron
	log  *zap.Logger

	mu      sync.Mutex
	jobs    map[string]*registered
	history []JobResult
	ctx     context.Context
	cancel  context.CancelFunc
}

type registered struct {
	job      Job
	spec     string
	entry    cron.EntryID
	runs     int64
	failures int64
	last     *JobResult
}

func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	log := cfg.Logger.Named("scheduler")
	cl := cronLogger{log.Sugar()}

	return &Scheduler{
		cfg: cfg,
		cron: cron.New(
			cron.WithParser(specParser),
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:  log,
		jobs: make(map[string]*registered),
	}
}

// cronLogger routes cron's own messages to zap; its info level is chatty, so it goes to debug.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}

// Register schedules job on spec. Names must be unique.
func (s *Scheduler) Register(job Job, spec string) error {
	if job == nil {
		return ErrNilJob
	}
	schedule, err := specParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSpec, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	name := job.Name()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	r := &registered{job: job, spec: spec}
	r.entry = s.cron.Schedule(schedule, cron.FuncJob(func() { s.tick(r) }))
	s.jobs[name] = r

	s.log.Info("job registered", zap.String("job", name), zap.String("spec", spec), zap.String("description", job.Description()))
	return nil
}

func (s *Scheduler) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	s.cron.Remove(r.entry)
	delete(s.jobs, name)
	return nil
}

// Start begins ticking. Runs get contexts derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop halts ticking, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return ErrSchedulerNotRunning
	}

	stopped := s.cron.Stop()
	cancel()
	<-stopped.Done()
	s.log.Info("scheduler stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RUNS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Scheduler) tick(r *registered) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.run(ctx, r, false)
}

// RunNow runs a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.Lock()
	r, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	res := s.run(ctx, r, true)
	return res, res.Error
}

func (s *Scheduler) run(ctx context.Context, r *registered, manual bool) JobResult {
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	res := JobResult{JobName: r.job.Name(), StartedAt: time.Now(), Manual: manual}
	res.Error = r.job.Run(ctx)
	res.Duration = time.Since(res.StartedAt)

	s.mu.Lock()
	r.runs++
	if res.Error != nil {
		r.failures++
	}
	r.last = &res
	s.history = append(s.history, res)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
	s.mu.Unlock()

	fields := []zap.Field{zap.String("job", res.JobName), zap.Duration("duration", res.Duration), zap.Bool("manual", manual)}
	if res.Error != nil {
		s.log.Error("job failed", append(fields, zap.Error(res.Error))...)
	} else {
		s.log.Debug("job done", fields...)
	}

	if s.cfg.OnJobComplete != nil {
		s.cfg.OnJobComplete(res)
	}
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Jobs lists registered jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for name, r := range s.jobs {
		out = append(out, JobInfo{
			Name:        name,
			Description: r.job.Description(),
			Spec:        r.spec,
			NextRun:     s.cron.Entry(r.entry).Next,
			Runs:        r.runs,
			Failures:    r.failures,
			Last:        r.last,
		})
	}
	slices.SortFunc(out, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// History returns the last n results, oldest first. n <= 0 returns all kept.
func (s *Scheduler) History(n int) []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	return slices.Clone(s.history[len(s.history)-n:])
}
