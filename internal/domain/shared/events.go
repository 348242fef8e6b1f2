package shared

import (
	"encoding/json"
	"time"
)

// EventType names a domain event on the bus and on the relay channel.
type EventType string

const (
	EventTournamentStarted            EventType = "tournament.started"
	EventTournamentEnded              EventType = "tournament.ended"
	EventTournamentChallengeCompleted EventType = "tournament.challenge_completed"

	EventParticipantJoined EventType = "participant.joined"

	EventActionExecuted    EventType = "action.executed"
	EventDeferredDelivered EventType = "action.deferred_delivered"

	EventPlayerWentOnline  EventType = "presence.went_online"
	EventPlayerWentOffline EventType = "presence.went_offline"
)

// Event is published by the lifecycle, the executor and the presence tracker.
// Payload must be JSON-encodable: it is what other instances receive.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
	Payload() map[string]any
}

// BaseEvent is embedded by every concrete event.
// CorrelationID carries the run token of the tournament run that caused it.
type BaseEvent struct {
	Type          EventType `json:"type"`
	At            time.Time `json:"at"`
	Aggregate     string    `json:"aggregate"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func NewBaseEvent(t EventType, aggregate string) BaseEvent {
	return BaseEvent{Type: t, At: time.Now().UTC(), Aggregate: aggregate}
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.At }
func (e BaseEvent) AggregateID() string   { return e.Aggregate }
func (e BaseEvent) Correlation() string   { return e.CorrelationID }

// WithCorrelationID returns a copy tagged with a run token.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Action Events
// ═══════════════════════════════════════════════════════════════════════════

// ActionExecutedEvent is emitted by the action executor for every executed action line.
type ActionExecutedEvent struct {
	BaseEvent
	Tag         string `json:"tag"`
	Body        string `json:"body"`
	Participant string `json:"participant,omitempty"`
}

// Payload implements Event interface.
func (e ActionExecutedEvent) Payload() map[string]any {
	return map[string]any{
		"tag":         e.Tag,
		"body":        e.Body,
		"participant": e.Participant,
	}
}

// NewActionExecutedEvent creates a new ActionExecutedEvent.
func NewActionExecutedEvent(tag, body, participant string) ActionExecutedEvent {
	aggregate := participant
	if aggregate == "" {
		aggregate = "broadcast"
	}
	return ActionExecutedEvent{
		BaseEvent:   NewBaseEvent(EventActionExecuted, aggregate),
		Tag:         tag,
		Body:        body,
		Participant: participant,
	}
}

// DeferredDeliveredEvent is emitted after queued actions were handed to a player.
type DeferredDeliveredEvent struct {
	BaseEvent
	ParticipantID ParticipantID `json:"participant_id"`
	Count         int           `json:"count"`
}

// Payload implements Event interface.
func (e DeferredDeliveredEvent) Payload() map[string]any {
	return map[string]any{
		"participant_id": e.ParticipantID.String(),
		"count":          e.Count,
	}
}

// NewDeferredDeliveredEvent creates a new DeferredDeliveredEvent.
func NewDeferredDeliveredEvent(id ParticipantID, count int) DeferredDeliveredEvent {
	return DeferredDeliveredEvent{
		BaseEvent:     NewBaseEvent(EventDeferredDelivered, id.String()),
		ParticipantID: id,
		Count:         count,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Presence Events
// ═══════════════════════════════════════════════════════════════════════════

// PlayerWentOnlineEvent is emitted when a player becomes reachable live.
type PlayerWentOnlineEvent struct {
	BaseEvent
	ParticipantID ParticipantID `json:"participant_id"`
	Name          string        `json:"name"`
}

// Payload implements Event interface.
func (e PlayerWentOnlineEvent) Payload() map[string]any {
	return map[string]any{
		"participant_id": e.ParticipantID.String(),
		"name":           e.Name,
	}
}

// NewPlayerWentOnlineEvent creates a new PlayerWentOnlineEvent.
func NewPlayerWentOnlineEvent(id ParticipantID, name string) PlayerWentOnlineEvent {
	return PlayerWentOnlineEvent{
		BaseEvent:     NewBaseEvent(EventPlayerWentOnline, id.String()),
		ParticipantID: id,
		Name:          name,
	}
}

// PlayerWentOfflineEvent is emitted when a player stops being reachable.
type PlayerWentOfflineEvent struct {
	BaseEvent
	ParticipantID ParticipantID `json:"participant_id"`
}

// Payload implements Event interface.
func (e PlayerWentOfflineEvent) Payload() map[string]any {
	return map[string]any{
		"participant_id": e.ParticipantID.String(),
	}
}

// NewPlayerWentOfflineEvent creates a new PlayerWentOfflineEvent.
func NewPlayerWentOfflineEvent(id ParticipantID) PlayerWentOfflineEvent {
	return PlayerWentOfflineEvent{
		BaseEvent:     NewBaseEvent(EventPlayerWentOffline, id.String()),
		ParticipantID: id,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Transport
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope is the wire form of an event relayed between instances.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	At            time.Time       `json:"at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler reacts to one event. Returned errors are logged by the bus.
type EventHandler func(event Event) error

type EventPublisher interface {
	Publish(event Event) error
}

type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus is implemented by the in-process and the Redis-relayed bus.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
