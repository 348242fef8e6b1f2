package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/action"
	"github.com/alem-hub/tournament-hub/pkg/retry"
)

type received struct {
	mu     sync.Mutex
	grants []Grant
	keys   []string
	auth   []string
}

func (r *received) add(g Grant, key, auth string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants = append(r.grants, g)
	r.keys = append(r.keys, key)
	r.auth = append(r.auth, auth)
	return len(r.grants)
}

func newTestClient(t *testing.T, status func(call int) int) (*Client, *received) {
	t.Helper()
	got := &received{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var g Grant
		require.NoError(t, json.NewDecoder(r.Body).Decode(&g))
		call := got.add(g, r.Header.Get("Idempotency-Key"), r.Header.Get("Authorization"))
		code := status(call)
		w.WriteHeader(code)
		if code >= 400 {
			_, _ = w.Write([]byte(`{"code":"rejected","message":"nope"}`))
		}
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL)
	cfg.APIKey = "k"
	cfg.RatePerSecond = 0
	cfg.Retrier = retry.New(retry.WithMaxAttempts(3), retry.WithInitialDelay(time.Millisecond))
	cfg.Now = func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) }
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c, got
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.ErrorIs(t, err, ErrNoURL)
}

func TestHandle_PostsGrantForTarget(t *testing.T) {
	c, got := newTestClient(t, func(int) int { return http.StatusAccepted })

	player := &tournament.Player{ID: "alice", Name: "Alice", Online: true}
	require.NoError(t, c.Handle(context.Background(), action.Invocation{Tag: Tag, Body: "diamond x3", Target: player}))

	require.Len(t, got.grants, 1)
	g := got.grants[0]
	assert.Equal(t, "diamond x3", g.Body)
	assert.Equal(t, "alice", g.ParticipantID)
	assert.Equal(t, "Alice", g.ParticipantName)
	assert.True(t, g.Online)
	assert.Equal(t, g.ID, got.keys[0])
	assert.Equal(t, "Bearer k", got.auth[0])
}

func TestSend_RetriesWithSameKey(t *testing.T) {
	c, got := newTestClient(t, func(call int) int {
		if call == 1 {
			return http.StatusBadGateway
		}
		return http.StatusOK
	})

	require.NoError(t, c.Send(context.Background(), Grant{ID: "g-1", Body: "gold"}))
	require.Len(t, got.keys, 2)
	assert.Equal(t, []string{"g-1", "g-1"}, got.keys)
}

func TestSend_ClientErrorIsNotRetried(t *testing.T) {
	c, got := newTestClient(t, func(int) int { return http.StatusUnprocessableEntity })

	err := c.Send(context.Background(), Grant{ID: "g-2"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "rejected", apiErr.Code)
	assert.Len(t, got.grants, 1)
}

func TestExecutor_RoutesWebhookTag(t *testing.T) {
	c, got := newTestClient(t, func(int) int { return http.StatusOK })

	exec := action.NewExecutor(action.Config{})
	exec.Register(Tag, c)

	target := &tournament.Player{ID: "bob"}
	require.NoError(t, exec.Execute(context.Background(), target, []string{"[webhook] crate for {player_id}"}))
	require.Len(t, got.grants, 1)
	assert.Equal(t, "crate for bob", got.grants[0].Body)
}
