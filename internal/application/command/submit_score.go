package command

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT SCORE COMMAND
// Ingests a score from a game source into an active tournament.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitScoreCommand contains a score update.
type SubmitScoreCommand struct {
	TournamentID  string
	ParticipantID string

	// Amount is added to the current score, or replaces it when Replace is set.
	Amount  int
	Replace bool

	// Objective, World and Mode describe where the score came from.
	Objective string
	World     string
	Mode      string
}

// Validate validates the command.
func (c SubmitScoreCommand) Validate() error {
	if _, err := shared.NewTournamentID(c.TournamentID); err != nil {
		return err
	}
	if _, err := shared.NewParticipantID(c.ParticipantID); err != nil {
		return err
	}
	if c.Replace && c.Amount < 0 {
		return shared.NewDomainError("participant", "Score", shared.ErrValueOutOfRange, "score cannot be negative")
	}
	return nil
}

// SubmitScoreResult contains the live score after the update.
type SubmitScoreResult struct {
	TournamentID  shared.TournamentID  `json:"tournament_id"`
	ParticipantID shared.ParticipantID `json:"participant_id"`
	Score         int                  `json:"score"`

	// Position is taken from the last published snapshot.
	Position shared.Position `json:"position"`

	Joined             bool `json:"joined"`
	ChallengeCompleted bool `json:"challenge_completed"`
}

// SubmitScoreHandlerConfig contains configuration for the handler.
type SubmitScoreHandlerConfig struct {
	// AutoJoin decides whether a participant may join on first score.
	// Nil allows every participant of an automatic tournament.
	AutoJoin func(pid shared.ParticipantID) bool
}

// SubmitScoreHandler handles the SubmitScoreCommand.
type SubmitScoreHandler struct {
	registry *tournament.Registry
	joiner   *joiner
	autoJoin func(pid shared.ParticipantID) bool
}

// NewSubmitScoreHandler creates a new SubmitScoreHandler.
func NewSubmitScoreHandler(
	registry *tournament.Registry,
	directory tournament.PlayerDirectory,
	executor tournament.ActionExecutor,
	publisher shared.EventPublisher,
	log *zap.Logger,
	config SubmitScoreHandlerConfig,
) *SubmitScoreHandler {
	autoJoin := config.AutoJoin
	if autoJoin == nil {
		autoJoin = func(shared.ParticipantID) bool { return true }
	}
	return &SubmitScoreHandler{
		registry: registry,
		joiner:   newJoiner(directory, executor, publisher, log),
		autoJoin: autoJoin,
	}
}

// Handle executes the submit command.
func (h *SubmitScoreHandler) Handle(ctx context.Context, cmd SubmitScoreCommand) (*SubmitScoreResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_score: validation failed: %w", err)
	}

	t, err := h.registry.Get(shared.TournamentID(cmd.TournamentID))
	if err != nil {
		return nil, fmt.Errorf("submit_score: %w", err)
	}
	if status := t.Status(); status != tournament.StatusActive {
		return nil, fmt.Errorf("submit_score: %w: %s is %s", shared.ErrTournamentNotActive, t.ID(), status)
	}

	def := t.Definition()
	if def.Objective() != "" && cmd.Objective != def.Objective() {
		return nil, fmt.Errorf("submit_score: %w: objective %q", shared.ErrScoreFiltered, cmd.Objective)
	}
	if !def.AcceptsScore(cmd.World, cmd.Mode) {
		return nil, fmt.Errorf("submit_score: %w: world %q mode %q", shared.ErrScoreFiltered, cmd.World, cmd.Mode)
	}

	pid := shared.ParticipantID(cmd.ParticipantID)
	result := &SubmitScoreResult{TournamentID: t.ID(), ParticipantID: pid}

	if !t.IsParticipant(pid) {
		if !def.Participation().Automatic || !h.autoJoin(pid) {
			return nil, fmt.Errorf("submit_score: %w: %s", shared.ErrParticipantNotFound, pid)
		}
		if err := h.joiner.join(ctx, t, pid); err != nil {
			return nil, fmt.Errorf("submit_score: %w", err)
		}
		result.Joined = true
	}

	result.Score = t.AddScore(ctx, pid, cmd.Amount, cmd.Replace)
	result.Position = t.Position(pid)
	result.ChallengeCompleted = t.HasCompletedChallenge(pid)
	return result, nil
}

// IsRejected reports whether err means the score was refused rather than failed.
func IsRejected(err error) bool {
	return errors.Is(err, shared.ErrScoreFiltered) ||
		errors.Is(err, shared.ErrParticipantNotFound) ||
		errors.Is(err, shared.ErrTournamentNotActive)
}
