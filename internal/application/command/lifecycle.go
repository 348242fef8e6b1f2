// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ══════════════════════════════════════════════════════════════════════════════
// START TOURNAMENT COMMAND
// Opens a new run: fresh run token, recomputation ticker, start actions.
// ══════════════════════════════════════════════════════════════════════════════

// StartTournamentCommand contains the data to start a tournament.
type StartTournamentCommand struct {
	TournamentID string

	// ClearParticipants wipes the previous run and runs start actions.
	ClearParticipants bool
}

// Validate validates the command.
func (c StartTournamentCommand) Validate() error {
	if _, err := shared.NewTournamentID(c.TournamentID); err != nil {
		return err
	}
	return nil
}

// StartTournamentResult contains the result of starting a tournament.
type StartTournamentResult struct {
	TournamentID shared.TournamentID `json:"tournament_id"`
	RunToken     string              `json:"run_token"`
	Status       tournament.Status   `json:"status"`
	EndsAt       time.Time           `json:"ends_at"`
	Restarted    bool                `json:"restarted"`
}

// StartTournamentHandler handles the StartTournamentCommand.
type StartTournamentHandler struct {
	registry *tournament.Registry
	log      *zap.Logger
}

// NewStartTournamentHandler creates a new StartTournamentHandler.
func NewStartTournamentHandler(registry *tournament.Registry, log *zap.Logger) *StartTournamentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StartTournamentHandler{registry: registry, log: log.Named("start_tournament")}
}

// Handle executes the start command. Starting an active tournament begins a new run.
func (h *StartTournamentHandler) Handle(ctx context.Context, cmd StartTournamentCommand) (*StartTournamentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("start_tournament: validation failed: %w", err)
	}

	t, err := h.registry.Get(shared.TournamentID(cmd.TournamentID))
	if err != nil {
		return nil, fmt.Errorf("start_tournament: %w", err)
	}

	restarted := t.Status() == tournament.StatusActive
	if _, err := t.UpdateStatus(); err != nil {
		return nil, fmt.Errorf("start_tournament: %w", err)
	}
	if err := t.Start(ctx, cmd.ClearParticipants); err != nil {
		return nil, fmt.Errorf("start_tournament: %w", err)
	}

	h.log.Info("tournament started by command",
		zap.String("tournament", t.ID().String()),
		zap.Bool("restarted", restarted),
	)

	return &StartTournamentResult{
		TournamentID: t.ID(),
		RunToken:     t.RunToken(),
		Status:       t.Status(),
		EndsAt:       t.Window().End(),
		Restarted:    restarted,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STOP TOURNAMENT COMMAND
// Closes the active run: final recomputation, rewards, end actions.
// ══════════════════════════════════════════════════════════════════════════════

// StopTournamentCommand contains the data to stop a tournament.
type StopTournamentCommand struct {
	TournamentID string
}

// StopTournamentResult identifies the closed run.
// Final standings travel in the tournament.ended event.
type StopTournamentResult struct {
	TournamentID shared.TournamentID `json:"tournament_id"`
	RunToken     string              `json:"run_token"`
	Status       tournament.Status   `json:"status"`
}

// StopTournamentHandler handles the StopTournamentCommand.
type StopTournamentHandler struct {
	registry *tournament.Registry
	log      *zap.Logger
}

// NewStopTournamentHandler creates a new StopTournamentHandler.
func NewStopTournamentHandler(registry *tournament.Registry, log *zap.Logger) *StopTournamentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StopTournamentHandler{registry: registry, log: log.Named("stop_tournament")}
}

// Handle executes the stop command.
// A tournament that is not active yields shared.ErrTournamentNotActive.
func (h *StopTournamentHandler) Handle(ctx context.Context, cmd StopTournamentCommand) (*StopTournamentResult, error) {
	tid, err := shared.NewTournamentID(cmd.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("stop_tournament: validation failed: %w", err)
	}

	t, err := h.registry.Get(tid)
	if err != nil {
		return nil, fmt.Errorf("stop_tournament: %w", err)
	}

	token := t.RunToken()
	if err := t.Stop(ctx); err != nil {
		return nil, fmt.Errorf("stop_tournament: %w", err)
	}

	return &StopTournamentResult{
		TournamentID: tid,
		RunToken:     token,
		Status:       t.Status(),
	}, nil
}
