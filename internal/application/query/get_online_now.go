package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ONLINE NOW QUERY
// Сколько игроков онлайн и кто из участников турнира сейчас в игре.
// ══════════════════════════════════════════════════════════════════════════════

// GetOnlineNowQuery содержит параметры запроса. Пустой TournamentID -
// только общий счётчик.
type GetOnlineNowQuery struct {
	TournamentID string

	// Limit - максимум участников в ответе (по умолчанию 50).
	Limit int
}

// OnlineNowResult - результат запроса.
type OnlineNowResult struct {
	OnlineTotal int64 `json:"online_total"`

	// Participants - онлайн-участники по позиции в рейтинге.
	Participants []LeaderboardEntryDTO `json:"participants,omitempty"`
}

// GetOnlineNowHandler обрабатывает запрос.
type GetOnlineNowHandler struct {
	registry *tournament.Registry
	presence tournament.PresenceTracker
}

// NewGetOnlineNowHandler создаёт обработчик.
func NewGetOnlineNowHandler(registry *tournament.Registry, presence tournament.PresenceTracker) *GetOnlineNowHandler {
	return &GetOnlineNowHandler{registry: registry, presence: presence}
}

// Handle выполняет запрос.
func (h *GetOnlineNowHandler) Handle(ctx context.Context, q GetOnlineNowQuery) (*OnlineNowResult, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}

	total, err := h.presence.OnlineCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_online_now: %w", err)
	}
	result := &OnlineNowResult{OnlineTotal: total}
	if q.TournamentID == "" {
		return result, nil
	}

	tid, err := shared.NewTournamentID(q.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("get_online_now: %w", err)
	}
	t, err := h.registry.Get(tid)
	if err != nil {
		return nil, fmt.Errorf("get_online_now: %w", err)
	}

	for i, s := range t.Ranking().Entries() {
		if len(result.Participants) >= q.Limit {
			break
		}
		entry := leaderboardEntry(ctx, h.presence, shared.Position(i+1), s)
		if entry.Online {
			result.Participants = append(result.Participants, entry)
		}
	}
	return result, nil
}
