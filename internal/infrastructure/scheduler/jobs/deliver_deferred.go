package jobs

import (
	"context"

	"go.uber.org/zap"
)

// PendingDeliverer sweeps all deferred action queues.
type PendingDeliverer interface {
	DeliverPending(ctx context.Context) (int, error)
}

// DeliverDeferredJob retries delivery for players whose login event was
// missed, e.g. when they came online on another instance before a restart.
type DeliverDeferredJob struct {
	deliverer PendingDeliverer
	logger    *zap.Logger
}

// NewDeliverDeferredJob creates the job.
func NewDeliverDeferredJob(deliverer PendingDeliverer, logger *zap.Logger) *DeliverDeferredJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliverDeferredJob{deliverer: deliverer, logger: logger.Named("deliver_deferred")}
}

// Name returns the job name.
func (j *DeliverDeferredJob) Name() string { return "deliver_deferred" }

// Description returns a human-readable description.
func (j *DeliverDeferredJob) Description() string {
	return "Delivers queued reward actions to players who are online"
}

// Run sweeps the queues once.
func (j *DeliverDeferredJob) Run(ctx context.Context) error {
	n, err := j.deliverer.DeliverPending(ctx)
	if n > 0 {
		j.logger.Info("deferred actions delivered", zap.Int("players", n))
	}
	return err
}
