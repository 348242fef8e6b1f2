package tournament

import (
	"time"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOURNAMENT EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// StartedEvent публикуется при каждом запуске турнира.
type StartedEvent struct {
	shared.BaseEvent
	TournamentID shared.TournamentID `json:"tournament_id"`
	RunToken     string              `json:"run_token"`
	StartsAt     time.Time           `json:"starts_at"`
	EndsAt       time.Time           `json:"ends_at"`

	// Tournament - ссылка для подписчиков внутри процесса.
	Tournament *Tournament `json:"-"`
}

// Payload implements shared.Event.
func (e StartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"tournament_id": e.TournamentID.String(),
		"run_token":     e.RunToken,
		"starts_at":     e.StartsAt.Format(time.RFC3339),
		"ends_at":       e.EndsAt.Format(time.RFC3339),
	}
}

// NewStartedEvent создаёт StartedEvent.
func NewStartedEvent(t *Tournament, token string, window TimeWindow) StartedEvent {
	return StartedEvent{
		BaseEvent:    shared.NewBaseEvent(shared.EventTournamentStarted, t.ID().String()).WithCorrelationID(token),
		TournamentID: t.ID(),
		RunToken:     token,
		StartsAt:     window.Start(),
		EndsAt:       window.End(),
		Tournament:   t,
	}
}

// RunData - неизменяемый итог одного запуска.
type RunData struct {
	TournamentID shared.TournamentID `json:"tournament_id"`
	RunToken     string              `json:"run_token"`
	Ranking      *Ranking            `json:"-"`
}

// EndedEvent публикуется при остановке турнира.
type EndedEvent struct {
	shared.BaseEvent
	Data RunData `json:"data"`
}

// Payload implements shared.Event.
func (e EndedEvent) Payload() map[string]interface{} {
	standings := make([]map[string]interface{}, 0, e.Data.Ranking.Len())
	for i, s := range e.Data.Ranking.Entries() {
		standings = append(standings, map[string]interface{}{
			"position":       i + 1,
			"participant_id": s.ParticipantID.String(),
			"score":          s.Score,
		})
	}
	return map[string]interface{}{
		"tournament_id": e.Data.TournamentID.String(),
		"run_token":     e.Data.RunToken,
		"standings":     standings,
	}
}

// NewEndedEvent создаёт EndedEvent.
func NewEndedEvent(data RunData) EndedEvent {
	if data.Ranking == nil {
		data.Ranking = EmptyRanking()
	}
	return EndedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventTournamentEnded, data.TournamentID.String()).WithCorrelationID(data.RunToken),
		Data:      data,
	}
}

// ChallengeCompletedEvent публикуется, когда участник достиг цели челленджа.
type ChallengeCompletedEvent struct {
	shared.BaseEvent
	TournamentID shared.TournamentID `json:"tournament_id"`
	RunToken     string              `json:"run_token"`
	Player       Player              `json:"player"`
	Rank         shared.Position     `json:"rank"`
	Score        int                 `json:"score"`

	// Tournament - ссылка для подписчиков внутри процесса.
	Tournament *Tournament `json:"-"`
}

// Payload implements shared.Event.
func (e ChallengeCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"tournament_id":  e.TournamentID.String(),
		"run_token":      e.RunToken,
		"participant_id": e.Player.ID.String(),
		"player_name":    e.Player.Name,
		"rank":           e.Rank.Int(),
		"score":          e.Score,
	}
}

// NewChallengeCompletedEvent создаёт ChallengeCompletedEvent.
func NewChallengeCompletedEvent(t *Tournament, token string, player Player, rank shared.Position, score int) ChallengeCompletedEvent {
	return ChallengeCompletedEvent{
		BaseEvent:    shared.NewBaseEvent(shared.EventTournamentChallengeCompleted, t.ID().String()).WithCorrelationID(token),
		TournamentID: t.ID(),
		RunToken:     token,
		Player:       player,
		Rank:         rank,
		Score:        score,
		Tournament:   t,
	}
}

// ParticipantJoinedEvent публикуется при вступлении игрока в турнир.
type ParticipantJoinedEvent struct {
	shared.BaseEvent
	TournamentID  shared.TournamentID  `json:"tournament_id"`
	ParticipantID shared.ParticipantID `json:"participant_id"`
}

// Payload implements shared.Event.
func (e ParticipantJoinedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"tournament_id":  e.TournamentID.String(),
		"participant_id": e.ParticipantID.String(),
	}
}

// NewParticipantJoinedEvent создаёт ParticipantJoinedEvent.
func NewParticipantJoinedEvent(tid shared.TournamentID, pid shared.ParticipantID) ParticipantJoinedEvent {
	return ParticipantJoinedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventParticipantJoined, tid.String()),
		TournamentID:  tid,
		ParticipantID: pid,
	}
}
