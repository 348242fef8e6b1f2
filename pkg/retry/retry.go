// Package retry runs operations with exponential backoff and jitter.
// Used for startup connections, notifier calls and storage writes that must not be lost.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Error markers
// ─────────────────────────────────────────────────────────────────────────────

type verdict uint8

const (
	again verdict = iota + 1
	stop
)

// markedError carries the caller's verdict on an error. Do strips it.
type markedError struct {
	err     error
	verdict verdict
}

func (e *markedError) Error() string { return e.err.Error() }
func (e *markedError) Unwrap() error { return e.err }

func mark(err error, v verdict) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, verdict: v}
}

func verdictOf(err error) verdict {
	var m *markedError
	if errors.As(err, &m) {
		return m.verdict
	}
	return 0
}

// Retryable tells Do to try again even when RetryIf is set.
func Retryable(err error) error { return mark(err, again) }

// Permanent tells Do to give up at once.
func Permanent(err error) error { return mark(err, stop) }

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool { return verdictOf(err) == again }

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool { return verdictOf(err) == stop }

func strip(err error) error {
	var m *markedError
	if errors.As(err, &m) {
		return m.err
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Policy
// ─────────────────────────────────────────────────────────────────────────────

// Policy describes how many times to try and how long to wait in between.
type Policy struct {
	// Attempts includes the first call.
	Attempts int
	Base     time.Duration
	Cap      time.Duration
	Factor   float64
	// Jitter is the +/- share of each wait that is randomized, 0..1.
	Jitter float64

	// RetryIf filters unmarked errors. Nil retries all of them.
	RetryIf func(error) bool
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Option adjusts a Policy.
type Option func(*Policy)

func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.Attempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.Base = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.Cap = d
		}
	}
}

func WithMultiplier(f float64) Option {
	return func(p *Policy) {
		if f >= 1 {
			p.Factor = f
		}
	}
}

func WithJitter(j float64) Option {
	return func(p *Policy) {
		if j >= 0 && j <= 1 {
			p.Jitter = j
		}
	}
}

func WithRetryIf(fn func(error) bool) Option { return func(p *Policy) { p.RetryIf = fn } }

func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(p *Policy) { p.OnRetry = fn }
}

// wait returns Base*Factor^(attempt-1), capped, then jittered.
func (p Policy) wait(attempt int) time.Duration {
	d := math.Min(float64(p.Base)*math.Pow(p.Factor, float64(attempt-1)), float64(p.Cap))
	if p.Jitter > 0 {
		d *= 1 + p.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(math.Max(d, 0))
}

func (p Policy) again(err error) bool {
	switch verdictOf(err) {
	case stop:
		return false
	case again:
		return true
	}
	return p.RetryIf == nil || p.RetryIf(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Retrier
// ─────────────────────────────────────────────────────────────────────────────

// Retrier is an immutable Policy, safe for concurrent use.
type Retrier struct {
	policy Policy
}

// New builds a Retrier: 3 attempts, 100ms doubling up to 30s, 10% jitter.
func New(opts ...Option) *Retrier {
	p := Policy{Attempts: 3, Base: 100 * time.Millisecond, Cap: 30 * time.Second, Factor: 2, Jitter: 0.1}
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{policy: p}
}

// With returns a copy with extra options applied.
func (r *Retrier) With(opts ...Option) *Retrier {
	p := r.policy
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{policy: p}
}

// Do calls op until it succeeds, the error is not retried, attempts run out
// or ctx ends. The returned error has its Retryable/Permanent mark removed.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last == nil {
				return err
			}
			return strip(last)
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		if attempt >= r.policy.Attempts || !r.policy.again(last) {
			return strip(last)
		}

		wait := r.policy.wait(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, last, wait)
		}
		if !sleep(ctx, wait) {
			return strip(last)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Do runs op once with a throwaway Retrier.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// DoWithData is Do for operations that return a value.
func DoWithData[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var out T
	err := New(opts...).Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Presets
// ─────────────────────────────────────────────────────────────────────────────

// StartupRetrier waits for PostgreSQL or Redis to come up when the worker boots.
func StartupRetrier(onRetry func(attempt int, err error, wait time.Duration)) *Retrier {
	return New(
		WithMaxAttempts(8),
		WithInitialDelay(500*time.Millisecond),
		WithMaxDelay(15*time.Second),
		WithJitter(0.2),
		WithOnRetry(onRetry),
	)
}

// StorageRetrier replays short storage writes such as queueing deferred
// rewards. retryIf decides which driver errors are safe to replay.
func StorageRetrier(retryIf func(error) bool) *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitter(0.05),
		WithRetryIf(retryIf),
	)
}
