package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/pkg/circuitbreaker"
	"github.com/alem-hub/tournament-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisClient is the pub/sub subset the bus needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, payload string) error
	Subscribe(ctx context.Context, channel string) (<-chan RedisMessage, io.Closer, error)
}

// RedisMessage represents a message received from Redis Pub/Sub.
type RedisMessage struct {
	Channel string
	Payload string
}

// RedisEventBus relays events to every instance listening on the channel.
// Local subscribers are served by the embedded in-memory bus; events
// published by this instance are not processed twice.
type RedisEventBus struct {
	client     RedisClient
	localBus   *InMemoryEventBus
	channel    string
	instanceID string
	breaker    *circuitbreaker.CircuitBreaker
	log        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sub    io.Closer
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client     RedisClient
	Channel    string
	InstanceID string
	Local      InMemoryEventBusConfig
	Breaker    *circuitbreaker.CircuitBreaker
	Logger     *zap.Logger
}

// NewRedisEventBus subscribes to the channel and starts relaying.
func NewRedisEventBus(ctx context.Context, config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Channel == "" {
		config.Channel = "tournament-hub:events"
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Breaker == nil {
		config.Breaker = circuitbreaker.RelayBreaker(nil)
	}
	if config.Local.Logger == nil {
		config.Local.Logger = config.Logger
	}

	busCtx, cancel := context.WithCancel(context.Background())
	b := &RedisEventBus{
		client:     config.Client,
		localBus:   NewInMemoryEventBus(config.Local),
		channel:    config.Channel,
		instanceID: config.InstanceID,
		breaker:    config.Breaker,
		log:        config.Logger.With(logger.Component("redis-eventbus")),
		ctx:        busCtx,
		cancel:     cancel,
	}

	messages, sub, err := config.Client.Subscribe(ctx, config.Channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", config.Channel, err)
	}
	b.sub = sub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.subscriptionLoop(messages)
	}()
	return b, nil
}

// InstanceID identifies this process on the channel.
func (b *RedisEventBus) InstanceID() string { return b.instanceID }

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish relays the event and hands it to local handlers. A relay
// failure is logged; local delivery still happens.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	data, err := encodeEnvelope(b.instanceID, event)
	if err != nil {
		return err
	}

	err = b.breaker.Execute(b.ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return b.client.Publish(ctx, b.channel, string(data))
	})
	if err != nil {
		b.log.Warn("event relay failed",
			zap.String("event_type", string(event.EventType())),
			zap.Error(err),
		)
	}

	return b.localBus.Publish(event)
}

func (b *RedisEventBus) subscriptionLoop(messages <-chan RedisMessage) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			b.handleMessage(msg)
		}
	}
}

func (b *RedisEventBus) handleMessage(msg RedisMessage) {
	instance, event, err := decodeEnvelope([]byte(msg.Payload))
	if err != nil {
		b.log.Error("undecodable relay message", zap.Error(err))
		return
	}
	if instance == b.instanceID {
		return
	}
	if err := b.localBus.Publish(event); err != nil && !errors.Is(err, ErrEventBusClosed) {
		b.log.Error("failed to process relayed event", zap.Error(err))
	}
}

// Close unsubscribes and closes the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	var subErr error
	if b.sub != nil {
		subErr = b.sub.Close()
	}
	b.wg.Wait()

	return errors.Join(subErr, b.localBus.Close())
}

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

type relayEnvelope struct {
	Instance string `json:"instance"`
	shared.EventEnvelope
}

func encodeEnvelope(instance string, event shared.Event) ([]byte, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := relayEnvelope{
		Instance: instance,
		EventEnvelope: shared.EventEnvelope{
			ID:          uuid.NewString(),
			Type:        event.EventType(),
			AggregateID: event.AggregateID(),
			At:          event.OccurredAt(),
			Payload:     payload,
		},
	}
	if base, ok := event.(interface{ Correlation() string }); ok {
		env.CorrelationID = base.Correlation()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (string, shared.Event, error) {
	var env relayEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	var payload map[string]interface{}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return "", nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return env.Instance, &RelayedEvent{
		envelope: env.EventEnvelope,
		payload:  payload,
	}, nil
}

// RelayedEvent is an event received from another instance. Only the
// generic Event view is available; typed fields are in Payload.
type RelayedEvent struct {
	envelope shared.EventEnvelope
	payload  map[string]interface{}
}

func (e *RelayedEvent) EventType() shared.EventType     { return e.envelope.Type }
func (e *RelayedEvent) AggregateID() string             { return e.envelope.AggregateID }
func (e *RelayedEvent) OccurredAt() time.Time           { return e.envelope.At }
func (e *RelayedEvent) Payload() map[string]interface{} { return e.payload }

// CorrelationID returns the originating run token, if any.
func (e *RelayedEvent) CorrelationID() string { return e.envelope.CorrelationID }

// ══════════════════════════════════════════════════════════════════════════════
// GO-REDIS ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

type goRedisClient struct {
	rdb redis.UniversalClient
}

// NewGoRedisClient adapts a go-redis client to RedisClient.
func NewGoRedisClient(rdb redis.UniversalClient) RedisClient {
	return &goRedisClient{rdb: rdb}
}

func (c *goRedisClient) Publish(ctx context.Context, channel string, payload string) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

func (c *goRedisClient) Subscribe(ctx context.Context, channel string) (<-chan RedisMessage, io.Closer, error) {
	pubsub := c.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan RedisMessage)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}
		}
	}()
	return out, pubsub, nil
}
