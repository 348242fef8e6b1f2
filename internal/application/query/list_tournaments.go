package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST TOURNAMENTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListTournamentsQuery фильтрует по статусу; пустой статус - все.
type ListTournamentsQuery struct {
	Status string
}

// TournamentSummaryDTO - краткая сводка турнира.
type TournamentSummaryDTO struct {
	ID           shared.TournamentID `json:"id"`
	Status       tournament.Status   `json:"status"`
	RunToken     string              `json:"run_token,omitempty"`
	Recurring    bool                `json:"recurring"`
	Challenge    bool                `json:"challenge"`
	StartsAt     time.Time           `json:"starts_at"`
	EndsAt       time.Time           `json:"ends_at"`
	StartMillis  int64               `json:"start_millis"`
	EndMillis    int64               `json:"end_millis"`
	Remaining    string              `json:"remaining"`
	Participants int                 `json:"participants"`
	Updating     bool                `json:"updating"`
}

// ListTournamentsHandler обрабатывает запрос списка.
type ListTournamentsHandler struct {
	registry *tournament.Registry
}

// NewListTournamentsHandler создаёт обработчик.
func NewListTournamentsHandler(registry *tournament.Registry) *ListTournamentsHandler {
	return &ListTournamentsHandler{registry: registry}
}

// Handle возвращает турниры, отсортированные по ID.
func (h *ListTournamentsHandler) Handle(_ context.Context, q ListTournamentsQuery) ([]TournamentSummaryDTO, error) {
	items := h.registry.All()
	if q.Status != "" {
		status := tournament.Status(strings.ToUpper(q.Status))
		if !status.IsValid() {
			return nil, fmt.Errorf("list_tournaments: %w: status %q", shared.ErrInvalidInput, q.Status)
		}
		items = h.registry.WithStatus(status)
	}

	out := make([]TournamentSummaryDTO, 0, len(items))
	for _, t := range items {
		out = append(out, Summarize(t))
	}
	return out, nil
}

// Summarize строит сводку турнира.
func Summarize(t *tournament.Tournament) TournamentSummaryDTO {
	w := t.Window()
	return TournamentSummaryDTO{
		ID:           t.ID(),
		Status:       t.Status(),
		RunToken:     t.RunToken(),
		Recurring:    w.IsRecurring(),
		Challenge:    t.Definition().IsChallenge(),
		StartsAt:     w.Start(),
		EndsAt:       w.End(),
		StartMillis:  w.StartMillis(),
		EndMillis:    w.EndMillis(),
		Remaining:    Remaining(t),
		Participants: t.ParticipantCount(),
		Updating:     t.IsUpdating(),
	}
}
