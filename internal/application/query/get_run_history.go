package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// GetRunHistoryQuery запрашивает последние завершённые запуски.
type GetRunHistoryQuery struct {
	TournamentID string
	Limit        int
}

// GetRunHistoryHandler читает историю запусков.
type GetRunHistoryHandler struct {
	registry *tournament.Registry
	history  tournament.RunHistory
}

// NewGetRunHistoryHandler создаёт обработчик.
func NewGetRunHistoryHandler(registry *tournament.Registry, history tournament.RunHistory) *GetRunHistoryHandler {
	return &GetRunHistoryHandler{registry: registry, history: history}
}

// Handle возвращает запуски, новые первыми.
func (h *GetRunHistoryHandler) Handle(ctx context.Context, q GetRunHistoryQuery) ([]tournament.RunRecord, error) {
	tid, err := shared.NewTournamentID(q.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("get_run_history: %w", err)
	}
	if _, err := h.registry.Get(tid); err != nil {
		return nil, fmt.Errorf("get_run_history: %w", err)
	}

	limit := q.Limit
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	runs, err := h.history.RecentRuns(ctx, tid, limit)
	if err != nil {
		return nil, fmt.Errorf("get_run_history: %w", err)
	}
	return runs, nil
}
