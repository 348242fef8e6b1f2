package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tournament-hub/internal/infrastructure/action"
	"github.com/alem-hub/tournament-hub/pkg/retry"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig("secret")
	cfg.BaseURL = srv.URL
	cfg.RatePerSecond = 0
	cfg.Retrier = retry.New(retry.WithMaxAttempts(3), retry.WithInitialDelay(time.Millisecond))
	return NewClient(cfg)
}

func TestSendMessage(t *testing.T) {
	var got sendMessageRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botsecret/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	require.NoError(t, c.SendMessage(context.Background(), 42, "  alice won weekly  "))
	assert.Equal(t, int64(42), got.ChatID)
	assert.Equal(t, "alice won weekly", got.Text)

	assert.ErrorIs(t, c.SendMessage(context.Background(), 42, " "), ErrEmptyMessage)
}

func TestSendMessage_RetriesTemporaryErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":1}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, c.SendMessage(context.Background(), 1, "hi"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendMessage_PermanentError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})

	err := c.SendMessage(context.Background(), 1, "hi")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
	assert.False(t, apiErr.Temporary())
	assert.Equal(t, int32(1), calls.Load())
	assert.NotContains(t, err.Error(), "secret")
}

func TestSendMessage_TruncatesLongText(t *testing.T) {
	var got sendMessageRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, c.SendMessage(context.Background(), 1, strings.Repeat("я", MaxMessageLength+10)))
	assert.Len(t, []rune(got.Text), MaxMessageLength)
}

func TestHandler_RegisteredOnExecutor(t *testing.T) {
	var got sendMessageRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	exec := action.NewExecutor(action.Config{})
	exec.Register(Tag, c.Handler(-100))

	require.NoError(t, exec.Execute(context.Background(), nil, []string{"[telegram] season is over"}))
	assert.Equal(t, int64(-100), got.ChatID)
	assert.Equal(t, "season is over", got.Text)
}
