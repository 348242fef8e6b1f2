package command

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOIN TOURNAMENT COMMAND
// Enrolls a player under the tournament's participation policy.
// ══════════════════════════════════════════════════════════════════════════════

// JoinTournamentCommand contains the data to join a tournament.
type JoinTournamentCommand struct {
	TournamentID  string
	ParticipantID string

	// Permissions granted to the player by the host.
	Permissions []string
}

// Validate validates the command.
func (c JoinTournamentCommand) Validate() error {
	if _, err := shared.NewTournamentID(c.TournamentID); err != nil {
		return err
	}
	if _, err := shared.NewParticipantID(c.ParticipantID); err != nil {
		return err
	}
	return nil
}

// JoinTournamentResult contains the result of a join.
type JoinTournamentResult struct {
	TournamentID  shared.TournamentID  `json:"tournament_id"`
	ParticipantID shared.ParticipantID `json:"participant_id"`

	// Joined is false when the player was already a participant.
	Joined bool `json:"joined"`

	// Cost is charged by the participation actions.
	Cost float64 `json:"cost"`
}

// JoinTournamentHandler handles the JoinTournamentCommand.
type JoinTournamentHandler struct {
	registry *tournament.Registry
	joiner   *joiner
}

// NewJoinTournamentHandler creates a new JoinTournamentHandler.
func NewJoinTournamentHandler(
	registry *tournament.Registry,
	directory tournament.PlayerDirectory,
	executor tournament.ActionExecutor,
	publisher shared.EventPublisher,
	log *zap.Logger,
) *JoinTournamentHandler {
	return &JoinTournamentHandler{
		registry: registry,
		joiner:   newJoiner(directory, executor, publisher, log),
	}
}

// Handle executes the join command.
func (h *JoinTournamentHandler) Handle(ctx context.Context, cmd JoinTournamentCommand) (*JoinTournamentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("join_tournament: validation failed: %w", err)
	}

	t, err := h.registry.Get(shared.TournamentID(cmd.TournamentID))
	if err != nil {
		return nil, fmt.Errorf("join_tournament: %w", err)
	}

	pid := shared.ParticipantID(cmd.ParticipantID)
	policy := t.Definition().Participation()
	result := &JoinTournamentResult{
		TournamentID:  t.ID(),
		ParticipantID: pid,
		Cost:          policy.Cost,
	}

	if t.Status() == tournament.StatusEnded {
		return nil, fmt.Errorf("join_tournament: %w", shared.ErrJoinClosed)
	}
	if t.IsParticipant(pid) {
		return result, nil
	}
	if policy.Permission != "" && !slices.Contains(cmd.Permissions, policy.Permission) {
		return nil, fmt.Errorf("join_tournament: %w: %s", shared.ErrPermissionDenied, policy.Permission)
	}

	if err := h.joiner.join(ctx, t, pid); err != nil {
		return nil, fmt.Errorf("join_tournament: %w", err)
	}
	result.Joined = true
	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// JOINER
// ─────────────────────────────────────────────────────────────────────────────

// joiner registers a participant, runs participation actions and announces it.
// Shared by explicit joins and automatic joins on first score.
type joiner struct {
	directory tournament.PlayerDirectory
	executor  tournament.ActionExecutor
	publisher shared.EventPublisher
	log       *zap.Logger
}

func newJoiner(
	directory tournament.PlayerDirectory,
	executor tournament.ActionExecutor,
	publisher shared.EventPublisher,
	log *zap.Logger,
) *joiner {
	if log == nil {
		log = zap.NewNop()
	}
	return &joiner{
		directory: directory,
		executor:  executor,
		publisher: publisher,
		log:       log.Named("join"),
	}
}

func (j *joiner) join(ctx context.Context, t *tournament.Tournament, pid shared.ParticipantID) error {
	if err := t.AddParticipant(ctx, pid, 0, true); err != nil {
		return err
	}

	if actions := t.Definition().Participation().Actions; len(actions) > 0 {
		player, err := j.directory.Lookup(ctx, pid)
		if err != nil {
			player = tournament.Player{ID: pid}
		}
		if err := j.executor.Execute(ctx, &player, actions); err != nil {
			j.log.Warn("participation actions failed",
				zap.String("tournament", t.ID().String()),
				zap.String("participant", pid.String()),
				zap.Error(err),
			)
		}
	}

	if err := j.publisher.Publish(tournament.NewParticipantJoinedEvent(t.ID(), pid)); err != nil {
		j.log.Warn("failed to publish join", zap.Error(err))
	}
	return nil
}
