// Package circuitbreaker stops hammering a dependency that keeps failing.
// Tournament Hub wraps presence lookups, the event relay and the notifiers
// with it, so a Redis or Telegram outage degrades instead of stalling rewards.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var (
	// ErrCircuitOpen is returned during the open-state cool-down.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when every half-open probe slot is taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// IsRejected reports whether err came from the breaker rather than the call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

type settings struct {
	name        string
	tripAfter   int           // consecutive failures that open a closed breaker
	closeAfter  int           // consecutive half-open successes that close it
	coolDown    time.Duration // time spent open before probing
	probes      int           // concurrent half-open calls
	onChange    func(name string, from, to State)
	countsAsBad func(error) bool
	now         func() time.Time
}

// Option configures a breaker.
type Option func(*settings)

func WithFailureThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.tripAfter = n
		}
	}
}

func WithSuccessThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.closeAfter = n
		}
	}
}

// WithTimeout sets the open-state cool-down.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.coolDown = d
		}
	}
}

func WithMaxHalfOpenRequests(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.probes = n
		}
	}
}

// WithOnStateChange is called under the breaker lock; keep it short.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(s *settings) { s.onChange = fn }
}

// WithIsFailure decides which errors count. The default ignores context.Canceled.
func WithIsFailure(fn func(error) bool) Option {
	return func(s *settings) { s.countsAsBad = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// ─────────────────────────────────────────────────────────────────────────────
// Breaker
// ─────────────────────────────────────────────────────────────────────────────

// Stats is a snapshot of a breaker's counters since creation.
type Stats struct {
	State     State
	Successes int
	Failures  int
	Rejected  int
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	cfg settings

	mu         sync.Mutex
	state      State
	generation uint64 // bumped on every transition; stale outcomes are ignored
	streak     int    // consecutive failures when closed, successes when half-open
	inFlight   int    // half-open probes running
	openUntil  time.Time
	stats      Stats
}

// New creates a closed breaker: trips after 5 failures, cools down 30s,
// closes after 2 successful probes.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := settings{
		name:       name,
		tripAfter:  5,
		closeAfter: 2,
		coolDown:   30 * time.Second,
		probes:     1,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.countsAsBad == nil {
		cfg.countsAsBad = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn if the breaker admits it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	gen, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(gen, err)
	return err
}

// Call is Execute for functions that return a value.
func Call[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := cb.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && !cb.cfg.now().Before(cb.openUntil) {
		cb.transition(StateHalfOpen)
	}

	switch cb.state {
	case StateOpen:
		cb.stats.Rejected++
		return 0, ErrCircuitOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.probes {
			cb.stats.Rejected++
			return 0, ErrTooManyRequests
		}
		cb.inFlight++
	}
	return cb.generation, nil
}

func (cb *CircuitBreaker) record(gen uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	bad := err != nil && cb.cfg.countsAsBad(err)
	if bad {
		cb.stats.Failures++
	} else {
		cb.stats.Successes++
	}
	if gen != cb.generation {
		return
	}

	switch cb.state {
	case StateClosed:
		if !bad {
			cb.streak = 0
			return
		}
		if cb.streak++; cb.streak >= cb.cfg.tripAfter {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.inFlight--
		if bad {
			cb.transition(StateOpen)
			return
		}
		if cb.streak++; cb.streak >= cb.cfg.closeAfter {
			cb.transition(StateClosed)
		}
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.generation++
	cb.streak = 0
	cb.inFlight = 0
	if to == StateOpen {
		cb.openUntil = cb.cfg.now().Add(cb.cfg.coolDown)
	}
	if cb.cfg.onChange != nil {
		cb.cfg.onChange(cb.cfg.name, from, to)
	}
}

// State returns the current state. An expired cool-down reads as open until
// the next call probes it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := cb.stats
	s.State = cb.state
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Presets
// ─────────────────────────────────────────────────────────────────────────────

// PresenceBreaker guards player presence lookups.
// Rejections read as "offline", so it trips early and probes often.
func PresenceBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New("presence",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithTimeout(10*time.Second),
		WithOnStateChange(onStateChange),
	)
}

// RelayBreaker guards the cross-instance event relay.
func RelayBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New("event-relay",
		WithMaxHalfOpenRequests(2),
		WithOnStateChange(onStateChange),
	)
}
