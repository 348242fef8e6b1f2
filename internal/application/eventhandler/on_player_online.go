package eventhandler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PLAYER ONLINE HANDLER
// Игрок вернулся - выполняем награды, накопленные пока он был офлайн.
// ═══════════════════════════════════════════════════════════════════════════

// DeferredDeliverer доставляет очередь одного игрока.
type DeferredDeliverer interface {
	Handle(ctx context.Context, pid shared.ParticipantID) (int, error)
}

// OnPlayerOnlineHandler запускает доставку отложенных действий.
type OnPlayerOnlineHandler struct {
	deliverer DeferredDeliverer
	timeout   time.Duration
	logger    *zap.Logger
}

// NewOnPlayerOnlineHandler создаёт обработчик.
func NewOnPlayerOnlineHandler(deliverer DeferredDeliverer, logger *zap.Logger) *OnPlayerOnlineHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnPlayerOnlineHandler{
		deliverer: deliverer,
		timeout:   30 * time.Second,
		logger:    logger.Named("on_player_online"),
	}
}

// Handle обрабатывает событие. Работает и для событий с других инстансов:
// идентификатор игрока берётся из AggregateID.
func (h *OnPlayerOnlineHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventPlayerWentOnline {
		return nil
	}
	pid, err := shared.NewParticipantID(event.AggregateID())
	if err != nil {
		h.logger.Warn("online event without participant", zap.String("aggregate_id", event.AggregateID()))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	n, err := h.deliverer.Handle(ctx, pid)
	if err != nil {
		return fmt.Errorf("deliver deferred to %s: %w", pid, err)
	}
	if n > 0 {
		h.logger.Debug("deferred delivered on login",
			zap.String("participant", pid.String()),
			zap.Int("actions", n),
		)
	}
	return nil
}

// EventType возвращает тип обрабатываемого события.
func (h *OnPlayerOnlineHandler) EventType() shared.EventType {
	return shared.EventPlayerWentOnline
}
