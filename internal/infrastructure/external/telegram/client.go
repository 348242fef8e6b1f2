// Package telegram sends tournament announcements through the Telegram
// Bot API and exposes them as the [telegram] action tag.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alem-hub/tournament-hub/internal/infrastructure/action"
	"github.com/alem-hub/tournament-hub/pkg/circuitbreaker"
	"github.com/alem-hub/tournament-hub/pkg/logger"
	"github.com/alem-hub/tournament-hub/pkg/retry"
)

// Tag is the action tag served by Handler.
const Tag = "telegram"

// MaxMessageLength is the Bot API limit for one text message.
const MaxMessageLength = 4096

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Telegram client.
type ClientConfig struct {
	Token   string
	BaseURL string
	Timeout time.Duration

	// RatePerSecond caps outgoing requests; 0 disables the limiter.
	RatePerSecond float64

	// Retrier overrides the default retry policy.
	Retrier *retry.Retrier

	// Breaker overrides the default circuit breaker.
	Breaker *circuitbreaker.CircuitBreaker

	Logger     *zap.Logger
	HTTPClient *http.Client
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:         token,
		BaseURL:       "https://api.telegram.org",
		Timeout:       10 * time.Second,
		RatePerSecond: 1,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-OK Bot API response.
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// Temporary reports whether the request may succeed later.
func (e *APIError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// ErrEmptyMessage is returned for a blank text.
var ErrEmptyMessage = errors.New("telegram: empty message")

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is a minimal Bot API client. Safe for concurrent use.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *zap.Logger
}

// NewClient creates a client.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	if config.Retrier == nil {
		config.Retrier = retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(500*time.Millisecond),
			retry.WithMaxDelay(10*time.Second),
		)
	}
	if config.Breaker == nil {
		config.Breaker = circuitbreaker.New("telegram",
			circuitbreaker.WithFailureThreshold(5),
			circuitbreaker.WithTimeout(time.Minute),
		)
	}

	c := &Client{
		token:   config.Token,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		http:    config.HTTPClient,
		retrier: config.Retrier,
		breaker: config.Breaker,
		log:     config.Logger.With(logger.Component("telegram")),
	}
	if config.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), 1)
	}
	return c
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// SendMessage posts text to a chat. Long texts are cut to MaxMessageLength.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if runes := []rune(text); len(runes) > MaxMessageLength {
		text = string(runes[:MaxMessageLength])
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.call(ctx, "sendMessage", sendMessageRequest{
				ChatID:                chatID,
				Text:                  text,
				DisableWebPagePreview: true,
			})
		})
	})
}

func (c *Client) call(ctx context.Context, method string, payload any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal %s: %w", method, err))
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error carries the token, so it is not wrapped
		return retry.Retryable(fmt.Errorf("%s: request failed", method))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		out = apiResponse{ErrorCode: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
	}
	if out.OK {
		return nil
	}

	apiErr := &APIError{Code: out.ErrorCode, Description: out.Description}
	if apiErr.Code == 0 {
		apiErr.Code = resp.StatusCode
	}
	if out.Parameters != nil {
		apiErr.RetryAfter = out.Parameters.RetryAfter
	}
	c.log.Warn("bot api call failed",
		logger.Operation(method),
		zap.Int("code", apiErr.Code),
		zap.String("description", apiErr.Description),
	)
	if apiErr.Temporary() {
		return retry.Retryable(apiErr)
	}
	return retry.Permanent(apiErr)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTION HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// Handler returns an action handler that posts the line body to chatID.
func (c *Client) Handler(chatID int64) action.Handler {
	return action.HandlerFunc(func(ctx context.Context, inv action.Invocation) error {
		return c.SendMessage(ctx, chatID, inv.Body)
	})
}
