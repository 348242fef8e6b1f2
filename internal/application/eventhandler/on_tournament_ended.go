// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на изменения и запускают побочные эффекты:
// запись истории запусков и доставку отложенных наград.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON TOURNAMENT ENDED HANDLER
// Сохраняет итог завершённого запуска в историю.
// ═══════════════════════════════════════════════════════════════════════════

// OnTournamentEndedHandler записывает RunRecord по событию tournament.ended.
type OnTournamentEndedHandler struct {
	history tournament.RunHistory
	timeout time.Duration
	logger  *zap.Logger
}

// NewOnTournamentEndedHandler создаёт обработчик.
func NewOnTournamentEndedHandler(history tournament.RunHistory, logger *zap.Logger) *OnTournamentEndedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnTournamentEndedHandler{
		history: history,
		timeout: 10 * time.Second,
		logger:  logger.Named("on_tournament_ended"),
	}
}

// Handle обрабатывает событие.
// События, пришедшие с других инстансов, не содержат рейтинга и пропускаются:
// историю пишет инстанс, завершивший запуск.
func (h *OnTournamentEndedHandler) Handle(event shared.Event) error {
	ended, ok := event.(tournament.EndedEvent)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	record := tournament.NewRunRecord(ended.Data, ended.OccurredAt())
	if err := h.history.RecordRun(ctx, record); err != nil {
		return fmt.Errorf("record run %s: %w", record.RunToken, err)
	}

	h.logger.Info("run recorded",
		zap.String("tournament", record.TournamentID.String()),
		zap.String("run_token", record.RunToken),
		zap.Int("standings", len(record.Standings)),
	)
	return nil
}

// EventType возвращает тип обрабатываемого события.
func (h *OnTournamentEndedHandler) EventType() shared.EventType {
	return shared.EventTournamentEnded
}
