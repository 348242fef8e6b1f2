// Package action executes reward and lifecycle action lines of the form
// "[tag] body". Handlers are registered per tag.
package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
	"github.com/alem-hub/tournament-hub/pkg/logger"
)

// Built-in tags.
const (
	TagMessage   = "message"
	TagBroadcast = "broadcast"
	TagConsole   = "console"
)

var (
	// ErrUnknownTag is returned for a line whose tag has no handler.
	ErrUnknownTag = errors.New("unknown action tag")

	// ErrNoTarget is returned when a player-scoped tag runs without a player.
	ErrNoTarget = errors.New("action requires a target player")
)

// ══════════════════════════════════════════════════════════════════════════════
// INVOCATION & HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// Invocation is one parsed action line with placeholders expanded.
type Invocation struct {
	Tag    string
	Body   string
	Target *tournament.Player
}

// Handler runs one action.
type Handler interface {
	Handle(ctx context.Context, inv Invocation) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inv Invocation) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, inv Invocation) error { return f(ctx, inv) }

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTOR
// ══════════════════════════════════════════════════════════════════════════════

// Config configures the Executor.
type Config struct {
	Publisher shared.EventPublisher
	Logger    *zap.Logger

	// DefaultTag is used for lines without a tag.
	DefaultTag string
}

// Executor implements tournament.ActionExecutor.
type Executor struct {
	publisher  shared.EventPublisher
	log        *zap.Logger
	defaultTag string

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewExecutor creates an executor with the built-in tags registered.
// Built-in handlers log the action and publish action.executed.
func NewExecutor(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DefaultTag == "" {
		cfg.DefaultTag = TagConsole
	}

	e := &Executor{
		publisher:  cfg.Publisher,
		log:        cfg.Logger.With(logger.Component("action-executor")),
		defaultTag: cfg.DefaultTag,
		handlers:   make(map[string]Handler),
	}
	e.Register(TagMessage, HandlerFunc(e.handleMessage))
	e.Register(TagBroadcast, HandlerFunc(e.handleAnnounce))
	e.Register(TagConsole, HandlerFunc(e.handleAnnounce))
	return e
}

// Register binds a handler to a tag, replacing any previous one.
func (e *Executor) Register(tag string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[strings.ToLower(tag)] = h
}

// Execute runs every line in order. A failing line does not stop the rest;
// all failures are joined into the returned error.
func (e *Executor) Execute(ctx context.Context, target *tournament.Player, actions []string) error {
	var errs []error
	for i, line := range actions {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		inv, ok := e.parse(line, target)
		if !ok {
			continue
		}

		e.mu.RLock()
		h, found := e.handlers[inv.Tag]
		e.mu.RUnlock()
		if !found {
			errs = append(errs, fmt.Errorf("line %d: %w: %q", i+1, ErrUnknownTag, inv.Tag))
			continue
		}

		if err := h.Handle(ctx, inv); err != nil {
			errs = append(errs, fmt.Errorf("line %d [%s]: %w", i+1, inv.Tag, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Executor) parse(line string, target *tournament.Player) (Invocation, bool) {
	tag, body := ParseLine(line)
	if tag == "" && body == "" {
		return Invocation{}, false
	}
	if tag == "" {
		tag = e.defaultTag
	}
	return Invocation{
		Tag:    tag,
		Body:   Expand(body, target),
		Target: target,
	}, true
}

func (e *Executor) handleMessage(_ context.Context, inv Invocation) error {
	if inv.Target == nil {
		return ErrNoTarget
	}
	e.log.Info("message",
		logger.Participant(inv.Target.ID.String()),
		zap.Bool("online", inv.Target.Online),
		zap.String("body", inv.Body),
	)
	e.emit(inv)
	return nil
}

func (e *Executor) handleAnnounce(_ context.Context, inv Invocation) error {
	e.log.Info(inv.Tag, zap.String("body", inv.Body))
	e.emit(inv)
	return nil
}

func (e *Executor) emit(inv Invocation) {
	if e.publisher == nil {
		return
	}
	participant := ""
	if inv.Target != nil {
		participant = inv.Target.ID.String()
	}
	if err := e.publisher.Publish(shared.NewActionExecutedEvent(inv.Tag, inv.Body, participant)); err != nil {
		e.log.Warn("failed to publish action event", zap.Error(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PARSING
// ══════════════════════════════════════════════════════════════════════════════

// ParseLine splits "[tag] body" into a lowercased tag and trimmed body.
// A line without a leading bracket has an empty tag.
func ParseLine(line string) (tag, body string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") {
		return "", line
	}
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return "", line
	}
	return strings.ToLower(strings.TrimSpace(line[1:end])), strings.TrimSpace(line[end+1:])
}

// Expand substitutes {player} and {player_id}. Without a target the
// placeholders are left as is.
func Expand(body string, target *tournament.Player) string {
	if target == nil || !strings.Contains(body, "{") {
		return body
	}
	return strings.NewReplacer(
		"{player}", target.DisplayName(),
		"{player_id}", target.ID.String(),
	).Replace(body)
}
