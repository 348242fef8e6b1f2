// Package webhook delivers reward grants to an external game server.
// Each [webhook] action line becomes one signed POST with an idempotency key,
// so a retried request is applied at most once by a compliant receiver.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alem-hub/tournament-hub/internal/infrastructure/action"
	"github.com/alem-hub/tournament-hub/pkg/circuitbreaker"
	"github.com/alem-hub/tournament-hub/pkg/logger"
	"github.com/alem-hub/tournament-hub/pkg/retry"
)

// Tag is the action tag served by the client.
const Tag = "webhook"

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the webhook client.
type ClientConfig struct {
	// URL receives every grant.
	URL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	Timeout time.Duration

	// RatePerSecond caps outgoing requests; 0 disables the limiter.
	RatePerSecond float64
	Burst         int

	Retrier    *retry.Retrier
	Breaker    *circuitbreaker.CircuitBreaker
	Logger     *zap.Logger
	HTTPClient *http.Client

	// Now is used for the sent_at field.
	Now func() time.Time
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:           url,
		Timeout:       10 * time.Second,
		RatePerSecond: 20,
		Burst:         5,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Grant is the JSON body posted for one action line.
type Grant struct {
	ID              string    `json:"id"`
	Body            string    `json:"body"`
	ParticipantID   string    `json:"participant_id,omitempty"`
	ParticipantName string    `json:"participant_name,omitempty"`
	Online          bool      `json:"online"`
	SentAt          time.Time `json:"sent_at"`
}

// APIError is a 4xx/5xx answer from the receiver.
type APIError struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("webhook: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("webhook: status %d", e.Status)
}

// Temporary reports whether the grant may succeed on retry.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// ErrNoURL is returned by NewClient without a target URL.
var ErrNoURL = errors.New("webhook: url is required")

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client posts grants. It implements action.Handler.
type Client struct {
	config  ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *zap.Logger
}

var _ action.Handler = (*Client)(nil)

// NewClient creates a client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.URL == "" {
		return nil, ErrNoURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Retrier == nil {
		config.Retrier = retry.New(
			retry.WithMaxAttempts(4),
			retry.WithInitialDelay(250*time.Millisecond),
			retry.WithMaxDelay(5*time.Second),
		)
	}
	if config.Breaker == nil {
		config.Breaker = circuitbreaker.New("webhook",
			circuitbreaker.WithFailureThreshold(5),
			circuitbreaker.WithTimeout(30*time.Second),
		)
	}

	c := &Client{
		config:  config,
		http:    config.HTTPClient,
		retrier: config.Retrier,
		breaker: config.Breaker,
		log:     config.Logger.With(logger.Component("webhook")),
	}
	if config.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst)
	}
	return c, nil
}

// Handle implements action.Handler.
func (c *Client) Handle(ctx context.Context, inv action.Invocation) error {
	grant := Grant{
		ID:     uuid.NewString(),
		Body:   inv.Body,
		SentAt: c.config.Now().UTC(),
	}
	if inv.Target != nil {
		grant.ParticipantID = inv.Target.ID.String()
		grant.ParticipantName = inv.Target.DisplayName()
		grant.Online = inv.Target.Online
	}
	return c.Send(ctx, grant)
}

// Send posts one grant through the breaker with retries. Every attempt
// carries the same Idempotency-Key.
func (c *Client) Send(ctx context.Context, grant Grant) error {
	body, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.post(ctx, grant.ID, body)
		})
	})
	if err != nil {
		c.log.Warn("grant not delivered",
			zap.String("grant_id", grant.ID),
			logger.Participant(grant.ParticipantID),
			zap.Error(err),
		)
		return err
	}
	c.log.Debug("grant delivered", zap.String("grant_id", grant.ID), logger.Participant(grant.ParticipantID))
	return nil
}

func (c *Client) post(ctx context.Context, key string, body []byte) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", key)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{}
	_ = json.Unmarshal(raw, apiErr)
	apiErr.Status = resp.StatusCode

	if resp.StatusCode == http.StatusTooManyRequests {
		c.backOff(ctx, resp.Header.Get("Retry-After"))
	}
	if apiErr.Temporary() {
		return retry.Retryable(apiErr)
	}
	return retry.Permanent(apiErr)
}

// backOff honours a Retry-After in seconds, bounded by the context.
func (c *Client) backOff(ctx context.Context, header string) {
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return
	}
	wait := time.Duration(seconds) * time.Second
	if wait > time.Minute {
		wait = time.Minute
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
