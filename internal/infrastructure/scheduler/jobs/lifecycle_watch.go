// Package jobs contains the scheduled jobs of Tournament Hub.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE WATCH JOB
// ══════════════════════════════════════════════════════════════════════════════

// Transition is one lifecycle change made by the watcher.
type Transition string

const (
	TransitionStarted   Transition = "started"
	TransitionResumed   Transition = "resumed"
	TransitionStopped   Transition = "stopped"
	TransitionRestarted Transition = "restarted"
)

// LifecycleWatchJob moves tournaments along their windows:
// it starts a run when the window opens, stops it when the window closes
// and, for recurring windows, rolls over into the next period.
type LifecycleWatchJob struct {
	registry *tournament.Registry
	now      func() time.Time
	logger   *zap.Logger

	onTransition func(t *tournament.Tournament, tr Transition)
}

// LifecycleWatchOption configures the job.
type LifecycleWatchOption func(*LifecycleWatchJob)

// WithClock overrides the time source.
func WithClock(now func() time.Time) LifecycleWatchOption {
	return func(j *LifecycleWatchJob) { j.now = now }
}

// WithTransitionHook is called after every transition.
func WithTransitionHook(fn func(t *tournament.Tournament, tr Transition)) LifecycleWatchOption {
	return func(j *LifecycleWatchJob) { j.onTransition = fn }
}

// NewLifecycleWatchJob creates the job.
func NewLifecycleWatchJob(registry *tournament.Registry, logger *zap.Logger, opts ...LifecycleWatchOption) *LifecycleWatchJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &LifecycleWatchJob{
		registry: registry,
		now:      time.Now,
		logger:   logger.Named("lifecycle_watch"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name returns the job name.
func (j *LifecycleWatchJob) Name() string { return "lifecycle_watch" }

// Description returns a human-readable description.
func (j *LifecycleWatchJob) Description() string {
	return "Starts and stops tournaments as their windows open and close"
}

// Run checks every registered tournament once.
func (j *LifecycleWatchJob) Run(ctx context.Context) error {
	var errs []error
	for _, t := range j.registry.All() {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := j.reconcile(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (j *LifecycleWatchJob) reconcile(ctx context.Context, t *tournament.Tournament) error {
	phase, window, err := t.Phase(j.now())
	if err != nil {
		return err
	}

	status := t.Status()
	running := status == tournament.StatusActive && t.RunToken() != ""
	newPeriod := !window.Start().Equal(t.Window().Start())

	switch {
	case status == tournament.StatusEnded && !newPeriod:
		// Stopped by hand inside the window: wait for the next period.
		return nil

	case !running && phase == tournament.StatusActive:
		// Active without a run token means the process just booted
		// and participants were restored, so they are kept.
		resume := status == tournament.StatusActive
		if _, err := t.UpdateStatus(); err != nil {
			return err
		}
		if err := t.Start(ctx, !resume); err != nil {
			return err
		}
		if resume {
			j.transition(t, TransitionResumed)
		} else {
			j.transition(t, TransitionStarted)
		}

	case running && phase != tournament.StatusActive:
		if err := t.Stop(ctx); err != nil {
			return err
		}
		if _, err := t.UpdateStatus(); err != nil {
			return err
		}
		j.transition(t, TransitionStopped)

	case running && newPeriod:
		// Back-to-back recurring periods: the old run ends where the new one begins.
		if err := t.Stop(ctx); err != nil {
			return err
		}
		if _, err := t.UpdateStatus(); err != nil {
			return err
		}
		if err := t.Start(ctx, true); err != nil {
			return err
		}
		j.transition(t, TransitionRestarted)

	case !running && status != phase:
		_, err := t.UpdateStatus()
		return err
	}
	return nil
}

func (j *LifecycleWatchJob) transition(t *tournament.Tournament, tr Transition) {
	j.logger.Info("tournament transition",
		zap.String("tournament", t.ID().String()),
		zap.String("transition", string(tr)),
		zap.String("run_token", t.RunToken()),
	)
	if j.onTransition != nil {
		j.onTransition(t, tr)
	}
}
