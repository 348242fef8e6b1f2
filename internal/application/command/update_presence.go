package command

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PRESENCE COMMAND
// Marks a player online (heartbeat) or offline. Transitions emit events that
// trigger deferred reward delivery.
// ══════════════════════════════════════════════════════════════════════════════

// UpdatePresenceCommand contains a presence change.
type UpdatePresenceCommand struct {
	ParticipantID string
	Name          string
	Online        bool
}

// UpdatePresenceResult contains the presence after the update.
type UpdatePresenceResult struct {
	ParticipantID shared.ParticipantID `json:"participant_id"`
	Online        bool                 `json:"online"`

	// Changed is true when the player crossed online/offline.
	Changed bool `json:"changed"`
}

// UpdatePresenceHandler handles the UpdatePresenceCommand.
type UpdatePresenceHandler struct {
	presence  tournament.PresenceTracker
	publisher shared.EventPublisher
	log       *zap.Logger
}

// NewUpdatePresenceHandler creates a new UpdatePresenceHandler.
func NewUpdatePresenceHandler(presence tournament.PresenceTracker, publisher shared.EventPublisher, log *zap.Logger) *UpdatePresenceHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UpdatePresenceHandler{presence: presence, publisher: publisher, log: log.Named("presence")}
}

// Handle executes the presence command.
func (h *UpdatePresenceHandler) Handle(ctx context.Context, cmd UpdatePresenceCommand) (*UpdatePresenceResult, error) {
	pid, err := shared.NewParticipantID(cmd.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("update_presence: validation failed: %w", err)
	}

	var (
		changed bool
		event   shared.Event
	)
	if cmd.Online {
		changed, err = h.presence.SetOnline(ctx, pid, cmd.Name)
		event = shared.NewPlayerWentOnlineEvent(pid, cmd.Name)
	} else {
		changed, err = h.presence.SetOffline(ctx, pid)
		event = shared.NewPlayerWentOfflineEvent(pid)
	}
	if err != nil {
		return nil, fmt.Errorf("update_presence: %w", err)
	}

	if changed {
		if err := h.publisher.Publish(event); err != nil {
			h.log.Warn("failed to publish presence change",
				zap.String("participant", pid.String()),
				zap.Error(err),
			)
		}
	}

	return &UpdatePresenceResult{ParticipantID: pid, Online: cmd.Online, Changed: changed}, nil
}
