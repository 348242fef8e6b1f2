package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tournament-hub/internal/application/command"
	"github.com/alem-hub/tournament-hub/internal/application/query"
	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/tournament-hub/internal/interface/http/handlers"
	"github.com/alem-hub/tournament-hub/internal/metrics"
)

type nopExecutor struct{}

func (nopExecutor) Execute(context.Context, *tournament.Player, []string) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(shared.Event) error { return nil }

type inlineScheduler struct{}

type nopCancel struct{}

func (nopCancel) Cancel() {}

func (inlineScheduler) RunAsync(task tournament.Task)     { task(context.Background()) }
func (inlineScheduler) RunOnPrimary(task tournament.Task) { task(context.Background()) }
func (inlineScheduler) RunPeriodicAsync(tournament.Task, time.Duration, time.Duration) (tournament.Cancelable, error) {
	return nopCancel{}, nil
}

const adminToken = "s3cret"

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()

	storage := memory.NewStorage()
	directory := memory.NewDirectory()
	registry := tournament.NewRegistry()

	now := time.Now()
	w, err := tournament.NewSpecificWindow(now.Add(-time.Hour), now.Add(time.Hour), time.UTC)
	require.NoError(t, err)
	def, err := tournament.NewBuilder("weekly").
		Window(w).
		Participation(tournament.ParticipationPolicy{Automatic: true}).
		Build()
	require.NoError(t, err)

	tr, err := tournament.New(def, tournament.Dependencies{
		Storage:   storage,
		Executor:  nopExecutor{},
		Publisher: nopPublisher{},
		Scheduler: inlineScheduler{},
		Directory: directory,
	}, tournament.Options{})
	require.NoError(t, err)
	require.NoError(t, registry.Register(tr))

	return NewServer(cfg, Dependencies{
		ListTournaments: query.NewListTournamentsHandler(registry),
		GetLeaderboard:  query.NewGetLeaderboardHandler(registry, directory),
		GetStanding:     query.NewGetStandingHandler(registry),
		GetRunHistory:   query.NewGetRunHistoryHandler(registry, memory.NewRunHistory(10)),
		GetNeighbors:    query.NewGetNeighborsHandler(registry, directory),
		GetOnlineNow:    query.NewGetOnlineNowHandler(registry, directory),
		StartTournament: command.NewStartTournamentHandler(registry, nil),
		StopTournament:  command.NewStopTournamentHandler(registry, nil),
		JoinTournament:  command.NewJoinTournamentHandler(registry, directory, nopExecutor{}, nopPublisher{}, nil),
		SubmitScore:     command.NewSubmitScoreHandler(registry, directory, nopExecutor{}, nopPublisher{}, nil, command.SubmitScoreHandlerConfig{}),
		UpdatePresence:  command.NewUpdatePresenceHandler(directory, nopPublisher{}, nil),
		Metrics:         metrics.Handler(),
	}).Handler()
}

func do(h http.Handler, method, target, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, DefaultConfig())

	rec := do(h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tournament_hub_http_requests_total")
}

func TestListAndLeaderboard(t *testing.T) {
	h := newTestServer(t, DefaultConfig())

	rec := do(h, http.MethodGet, "/api/v1/tournaments", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []query.TournamentSummaryDTO
	decodeData(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, shared.TournamentID("weekly"), list[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/v1/tournaments?status=BOGUS", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/tournaments/nope/leaderboard", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/v1/tournaments/weekly/leaderboard?limit=abc", "", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/tournaments/weekly/leaderboard?limit=5", "", "").Code)
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	hash, err := handlers.HashToken(adminToken)
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.AdminTokenHash = hash
	h := newTestServer(t, cfg)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/api/v1/tournaments/weekly/start", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/api/v1/tournaments/weekly/start", "", "wrong").Code)

	rec := do(h, http.MethodPost, "/api/v1/tournaments/weekly/start", `{"clear_participants":true}`, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var started command.StartTournamentResult
	decodeData(t, rec, &started)
	assert.NotEmpty(t, started.RunToken)

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/v1/tournaments/weekly/stop", "", adminToken).Code)
	assert.Equal(t, http.StatusConflict, do(h, http.MethodPost, "/api/v1/tournaments/weekly/stop", "", adminToken).Code)
}

func TestSubmitScoreAndStanding(t *testing.T) {
	h := newTestServer(t, DefaultConfig())

	rec := do(h, http.MethodPost, "/api/v1/tournaments/weekly/scores", `{"participant_id":"alice","amount":7}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var scored command.SubmitScoreResult
	decodeData(t, rec, &scored)
	assert.True(t, scored.Joined)
	assert.Equal(t, 7, scored.Score)

	rec = do(h, http.MethodGet, "/api/v1/tournaments/weekly/participants/alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var standing query.StandingDTO
	decodeData(t, rec, &standing)
	assert.True(t, standing.Participant)
	assert.Equal(t, 7, standing.Score)

	assert.Equal(t, http.StatusBadRequest,
		do(h, http.MethodPost, "/api/v1/tournaments/weekly/scores", `{"participant_id":"alice","bogus":1}`, "").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(h, http.MethodPost, "/api/v1/tournaments/weekly/scores", `{"participant_id":"alice","amount":-1,"replace":true}`, "").Code)
}

func TestJoinAndPresence(t *testing.T) {
	h := newTestServer(t, DefaultConfig())

	assert.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/v1/tournaments/weekly/participants", `{"participant_id":"bob"}`, "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/v1/tournaments/weekly/participants", `{"participant_id":"bob"}`, "").Code)

	rec := do(h, http.MethodPut, "/api/v1/players/bob/presence", `{"name":"Bob","online":true}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var presence command.UpdatePresenceResult
	decodeData(t, rec, &presence)
	assert.True(t, presence.Changed)

	rec = do(h, http.MethodGet, "/api/v1/online", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var online query.OnlineNowResult
	decodeData(t, rec, &online)
	assert.Equal(t, int64(1), online.OnlineTotal)

	// bob joined but no ranking pass has run yet
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/tournaments/weekly/participants/bob/neighbors", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/v1/online?limit=x", "", "").Code)
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	h := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/live", "", "").Code)
	rec := do(h, http.MethodGet, "/live", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
