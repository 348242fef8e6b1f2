package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
	"github.com/alem-hub/tournament-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STANDING QUERY
// Место и очки одного участника плюс оставшееся время турнира.
// ══════════════════════════════════════════════════════════════════════════════

// NotAvailable - оставшееся время завершённого турнира.
const NotAvailable = "N/A"

// GetStandingQuery содержит параметры запроса.
type GetStandingQuery struct {
	TournamentID  string
	ParticipantID string
}

// StandingDTO - положение участника.
type StandingDTO struct {
	TournamentID  shared.TournamentID  `json:"tournament_id"`
	ParticipantID shared.ParticipantID `json:"participant_id"`
	Participant   bool                 `json:"participant"`

	// Position берётся из снапшота, 0 - вне рейтинга.
	Position shared.Position `json:"position"`

	// Score - живые очки, могут опережать снапшот.
	Score int `json:"score"`

	ChallengeCompleted bool              `json:"challenge_completed"`
	Status             tournament.Status `json:"status"`

	// Remaining - "2d 3h 4m 5s" до старта или конца, N/A после завершения.
	Remaining string `json:"remaining"`
}

// GetStandingHandler обрабатывает запрос положения.
type GetStandingHandler struct {
	registry *tournament.Registry
}

// NewGetStandingHandler создаёт обработчик.
func NewGetStandingHandler(registry *tournament.Registry) *GetStandingHandler {
	return &GetStandingHandler{registry: registry}
}

// Handle выполняет запрос.
func (h *GetStandingHandler) Handle(_ context.Context, q GetStandingQuery) (*StandingDTO, error) {
	tid, err := shared.NewTournamentID(q.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("get_standing: %w", err)
	}
	pid, err := shared.NewParticipantID(q.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("get_standing: %w", err)
	}

	t, err := h.registry.Get(tid)
	if err != nil {
		return nil, fmt.Errorf("get_standing: %w", err)
	}

	score, participant := t.Score(pid)
	return &StandingDTO{
		TournamentID:       tid,
		ParticipantID:      pid,
		Participant:        participant,
		Position:           t.Position(pid),
		Score:              score,
		ChallengeCompleted: t.HasCompletedChallenge(pid),
		Status:             t.Status(),
		Remaining:          Remaining(t),
	}, nil
}

// Remaining форматирует оставшееся время турнира.
func Remaining(t *tournament.Tournament) string {
	d, ok := t.TimeRemaining()
	if !ok {
		return NotAvailable
	}
	return timeutil.FormatRemaining(d)
}
