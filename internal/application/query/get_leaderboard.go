// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Топ-N последнего опубликованного снапшота с отображаемыми именами.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса лидерборда.
type GetLeaderboardQuery struct {
	TournamentID string

	// Limit - количество записей (по умолчанию 10, максимум 100).
	Limit int
}

// Validate проверяет и нормализует параметры.
func (q *GetLeaderboardQuery) Validate() error {
	if _, err := shared.NewTournamentID(q.TournamentID); err != nil {
		return err
	}
	if q.Limit < 0 {
		return shared.NewDomainError("leaderboard", "Validate", shared.ErrValueOutOfRange, "limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}

// LeaderboardEntryDTO - запись лидерборда.
type LeaderboardEntryDTO struct {
	Position      shared.Position      `json:"position"`
	ParticipantID shared.ParticipantID `json:"participant_id"`
	DisplayName   string               `json:"display_name"`
	Score         int                  `json:"score"`
	Online        bool                 `json:"online"`
}

// GetLeaderboardResult содержит результат запроса лидерборда.
type GetLeaderboardResult struct {
	TournamentID shared.TournamentID   `json:"tournament_id"`
	Status       tournament.Status     `json:"status"`
	RunToken     string                `json:"run_token,omitempty"`
	Entries      []LeaderboardEntryDTO `json:"entries"`

	// TotalCount - размер снапшота, а не число живых участников.
	TotalCount int `json:"total_count"`

	// Updating - идёт проход пересчёта, снапшот скоро обновится.
	Updating bool `json:"updating"`

	GeneratedAt time.Time `json:"generated_at"`
}

// GetLeaderboardHandler обрабатывает запрос лидерборда.
type GetLeaderboardHandler struct {
	registry  *tournament.Registry
	directory tournament.PlayerDirectory
}

// NewGetLeaderboardHandler создаёт обработчик.
func NewGetLeaderboardHandler(registry *tournament.Registry, directory tournament.PlayerDirectory) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{registry: registry, directory: directory}
}

// Handle выполняет запрос.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}

	t, err := h.registry.Get(shared.TournamentID(q.TournamentID))
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}

	ranking := t.Ranking()
	top := ranking.Top(q.Limit)

	entries := make([]LeaderboardEntryDTO, 0, len(top))
	for i, s := range top {
		entries = append(entries, leaderboardEntry(ctx, h.directory, shared.Position(i+1), s))
	}

	return &GetLeaderboardResult{
		TournamentID: t.ID(),
		Status:       t.Status(),
		RunToken:     t.RunToken(),
		Entries:      entries,
		TotalCount:   ranking.Len(),
		Updating:     t.IsUpdating(),
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// leaderboardEntry дополняет запись именем и статусом из каталога.
// Ошибка каталога не критична: именем остаётся ID.
func leaderboardEntry(ctx context.Context, directory tournament.PlayerDirectory, pos shared.Position, s tournament.Standing) LeaderboardEntryDTO {
	entry := LeaderboardEntryDTO{
		Position:      pos,
		ParticipantID: s.ParticipantID,
		DisplayName:   s.ParticipantID.String(),
		Score:         s.Score,
	}
	if player, err := directory.Lookup(ctx, s.ParticipantID); err == nil {
		entry.DisplayName = player.DisplayName()
		entry.Online = player.Online
	}
	return entry
}
