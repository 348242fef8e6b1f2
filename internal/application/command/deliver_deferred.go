package command

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELIVER DEFERRED COMMAND
// Executes reward actions that were queued while their player was offline.
// ══════════════════════════════════════════════════════════════════════════════

// DeliverDeferredHandler drains deferred action queues of online players.
type DeliverDeferredHandler struct {
	store     tournament.DeferredActionStore
	directory tournament.PlayerDirectory
	executor  tournament.ActionExecutor
	publisher shared.EventPublisher
	log       *zap.Logger
}

// NewDeliverDeferredHandler creates a new DeliverDeferredHandler.
func NewDeliverDeferredHandler(
	store tournament.DeferredActionStore,
	directory tournament.PlayerDirectory,
	executor tournament.ActionExecutor,
	publisher shared.EventPublisher,
	log *zap.Logger,
) *DeliverDeferredHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &DeliverDeferredHandler{
		store:     store,
		directory: directory,
		executor:  executor,
		publisher: publisher,
		log:       log.Named("deliver_deferred"),
	}
}

// Handle delivers the queue of one player. Offline players are left untouched.
// Returns the number of actions taken from the queue.
func (h *DeliverDeferredHandler) Handle(ctx context.Context, pid shared.ParticipantID) (int, error) {
	player, err := h.directory.Lookup(ctx, pid)
	if err != nil {
		return 0, fmt.Errorf("deliver_deferred: lookup %s: %w", pid, err)
	}
	if !player.Online {
		return 0, nil
	}

	actions, err := h.store.TakeDeferredActions(ctx, pid)
	if err != nil {
		return 0, fmt.Errorf("deliver_deferred: take %s: %w", pid, err)
	}
	if len(actions) == 0 {
		return 0, nil
	}

	// The queue is already drained; failed lines are reported, not re-queued.
	if err := h.executor.Execute(ctx, &player, actions); err != nil {
		h.log.Warn("deferred actions failed",
			zap.String("participant", pid.String()),
			zap.Int("actions", len(actions)),
			zap.Error(err),
		)
	}

	h.log.Info("deferred actions delivered",
		zap.String("participant", pid.String()),
		zap.Int("actions", len(actions)),
	)
	if err := h.publisher.Publish(shared.NewDeferredDeliveredEvent(pid, len(actions))); err != nil {
		h.log.Warn("failed to publish delivery", zap.Error(err))
	}
	return len(actions), nil
}

// DeliverPending sweeps every queue. Returns how many players received actions.
func (h *DeliverDeferredHandler) DeliverPending(ctx context.Context) (int, error) {
	pending, err := h.store.PendingParticipants(ctx)
	if err != nil {
		return 0, fmt.Errorf("deliver_deferred: pending: %w", err)
	}

	var (
		delivered int
		errs      []error
	)
	for _, pid := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := h.Handle(ctx, pid)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n > 0 {
			delivered++
		}
	}
	return delivered, errors.Join(errs...)
}
