package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET NEIGHBORS QUERY
// Соседи участника по рейтингу (±N позиций) и разрыв в очках до них.
// ══════════════════════════════════════════════════════════════════════════════

// GetNeighborsQuery содержит параметры запроса соседей.
type GetNeighborsQuery struct {
	TournamentID  string
	ParticipantID string

	// RangeSize - соседей с каждой стороны (по умолчанию 5, максимум 25).
	RangeSize int
}

// Validate проверяет и нормализует параметры.
func (q *GetNeighborsQuery) Validate() error {
	tid, err := shared.NewTournamentID(q.TournamentID)
	if err != nil {
		return err
	}
	pid, err := shared.NewParticipantID(q.ParticipantID)
	if err != nil {
		return err
	}
	q.TournamentID, q.ParticipantID = tid.String(), pid.String()
	if q.RangeSize < 0 {
		return shared.NewDomainError("leaderboard", "Validate", shared.ErrValueOutOfRange, "range cannot be negative")
	}
	if q.RangeSize == 0 {
		q.RangeSize = 5
	}
	if q.RangeSize > 25 {
		q.RangeSize = 25
	}
	return nil
}

// NeighborsResult - окрестность участника в снапшоте.
type NeighborsResult struct {
	TournamentID shared.TournamentID `json:"tournament_id"`
	Position     shared.Position     `json:"position"`
	Score        int                 `json:"score"`

	// Above и Below упорядочены по возрастанию позиции.
	Above []LeaderboardEntryDTO `json:"above"`
	Below []LeaderboardEntryDTO `json:"below"`

	// GapToNext - сколько очков не хватает до позиции выше, 0 для лидера.
	GapToNext int `json:"gap_to_next"`

	// LeadOverPrev - отрыв от позиции ниже, 0 для последнего.
	LeadOverPrev int `json:"lead_over_prev"`
}

// GetNeighborsHandler обрабатывает запрос соседей.
type GetNeighborsHandler struct {
	registry  *tournament.Registry
	directory tournament.PlayerDirectory
}

// NewGetNeighborsHandler создаёт обработчик.
func NewGetNeighborsHandler(registry *tournament.Registry, directory tournament.PlayerDirectory) *GetNeighborsHandler {
	return &GetNeighborsHandler{registry: registry, directory: directory}
}

// Handle выполняет запрос. Участник вне снапшота - ErrParticipantNotFound.
func (h *GetNeighborsHandler) Handle(ctx context.Context, q GetNeighborsQuery) (*NeighborsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_neighbors: %w", err)
	}

	t, err := h.registry.Get(shared.TournamentID(q.TournamentID))
	if err != nil {
		return nil, fmt.Errorf("get_neighbors: %w", err)
	}

	ranking := t.Ranking()
	pos := ranking.Position(shared.ParticipantID(q.ParticipantID))
	if pos.IsUnranked() {
		return nil, fmt.Errorf("get_neighbors: %w", shared.ErrParticipantNotFound)
	}
	self, _ := ranking.At(pos.Int())

	result := &NeighborsResult{
		TournamentID: t.ID(),
		Position:     pos,
		Score:        self.Score,
		Above:        h.entries(ctx, ranking, pos.Int()-q.RangeSize, pos.Int()-1),
		Below:        h.entries(ctx, ranking, pos.Int()+1, pos.Int()+q.RangeSize),
	}
	if prev, ok := ranking.At(pos.Int() - 1); ok {
		result.GapToNext = prev.Score - self.Score
	}
	if next, ok := ranking.At(pos.Int() + 1); ok {
		result.LeadOverPrev = self.Score - next.Score
	}
	return result, nil
}

func (h *GetNeighborsHandler) entries(ctx context.Context, ranking *tournament.Ranking, from, to int) []LeaderboardEntryDTO {
	out := make([]LeaderboardEntryDTO, 0)
	for p := max(from, 1); p <= to; p++ {
		s, ok := ranking.At(p)
		if !ok {
			break
		}
		out = append(out, leaderboardEntry(ctx, h.directory, shared.Position(p), s))
	}
	return out
}
