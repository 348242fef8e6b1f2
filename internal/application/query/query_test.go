package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/persistence/memory"
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

func setup(t *testing.T) (*tournament.Registry, *memory.Directory, *tournament.Tournament) {
	t.Helper()
	registry := tournament.NewRegistry()
	directory := memory.NewDirectory()
	storage := memory.NewStorage()

	add := func(id string, from, to time.Duration) *tournament.Tournament {
		now := time.Now()
		w, err := tournament.NewSpecificWindow(now.Add(from), now.Add(to), time.UTC)
		require.NoError(t, err)
		def, err := tournament.NewBuilder(id).Window(w).Build()
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
		return tr
	}

	active := add("weekly", -time.Hour, 2*time.Hour)
	add("finished", -2*time.Hour, -time.Hour)
	return registry, directory, active
}

func TestGetLeaderboard(t *testing.T) {
	ctx := context.Background()
	registry, directory, tr := setup(t)
	_, err := directory.SetOnline(ctx, "bob", "Bobby")
	require.NoError(t, err)

	tr.AddScore(ctx, "alice", 10, false)
	tr.AddScore(ctx, "bob", 30, false)
	tr.AddScore(ctx, "carol", 20, false)
	require.NoError(t, tr.Update(ctx))

	h := NewGetLeaderboardHandler(registry, directory)
	res, err := h.Handle(ctx, GetLeaderboardQuery{TournamentID: "weekly", Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalCount)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, LeaderboardEntryDTO{Position: 1, ParticipantID: "bob", DisplayName: "Bobby", Score: 30, Online: true}, res.Entries[0])
	assert.Equal(t, "carol", res.Entries[1].DisplayName)

	_, err = h.Handle(ctx, GetLeaderboardQuery{TournamentID: "weekly", Limit: -1})
	assert.Error(t, err)
	_, err = h.Handle(ctx, GetLeaderboardQuery{TournamentID: "missing"})
	assert.True(t, shared.IsNotFound(err))
}

func TestGetStanding(t *testing.T) {
	ctx := context.Background()
	registry, _, tr := setup(t)
	tr.AddScore(ctx, "alice", 10, false)
	require.NoError(t, tr.Update(ctx))
	tr.AddScore(ctx, "alice", 5, false)

	h := NewGetStandingHandler(registry)

	res, err := h.Handle(ctx, GetStandingQuery{TournamentID: "weekly", ParticipantID: "alice"})
	require.NoError(t, err)
	assert.True(t, res.Participant)
	assert.Equal(t, shared.Position(1), res.Position)
	assert.Equal(t, 15, res.Score)
	assert.NotEqual(t, NotAvailable, res.Remaining)

	res, err = h.Handle(ctx, GetStandingQuery{TournamentID: "weekly", ParticipantID: "nobody"})
	require.NoError(t, err)
	assert.False(t, res.Participant)
	assert.Equal(t, shared.Unranked, res.Position)

	res, err = h.Handle(ctx, GetStandingQuery{TournamentID: "finished", ParticipantID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, NotAvailable, res.Remaining)
}

func TestListTournaments(t *testing.T) {
	registry, _, _ := setup(t)
	h := NewListTournamentsHandler(registry)

	all, err := h.Handle(context.Background(), ListTournamentsQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, shared.TournamentID("finished"), all[0].ID)
	assert.Equal(t, all[1].StartsAt.UnixMilli(), all[1].StartMillis)

	active, err := h.Handle(context.Background(), ListTournamentsQuery{Status: "active"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, shared.TournamentID("weekly"), active[0].ID)

	_, err = h.Handle(context.Background(), ListTournamentsQuery{Status: "paused"})
	assert.True(t, shared.IsValidation(err))
}

func TestGetRunHistory(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := setup(t)
	history := memory.NewRunHistory(0)
	require.NoError(t, history.RecordRun(ctx, tournament.RunRecord{TournamentID: "weekly", RunToken: "r1"}))

	h := NewGetRunHistoryHandler(registry, history)

	runs, err := h.Handle(ctx, GetRunHistoryQuery{TournamentID: "weekly"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].RunToken)

	_, err = h.Handle(ctx, GetRunHistoryQuery{TournamentID: "missing"})
	assert.True(t, shared.IsNotFound(err))
}

func TestGetNeighbors(t *testing.T) {
	ctx := context.Background()
	registry, directory, tr := setup(t)
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		tr.AddScore(ctx, shared.ParticipantID(id), 50-i*10, false)
	}
	require.NoError(t, tr.Update(ctx))

	h := NewGetNeighborsHandler(registry, directory)

	res, err := h.Handle(ctx, GetNeighborsQuery{TournamentID: "weekly", ParticipantID: "c", RangeSize: 1})
	require.NoError(t, err)
	assert.Equal(t, shared.Position(3), res.Position)
	assert.Equal(t, 30, res.Score)
	require.Len(t, res.Above, 1)
	require.Len(t, res.Below, 1)
	assert.Equal(t, shared.ParticipantID("b"), res.Above[0].ParticipantID)
	assert.Equal(t, shared.ParticipantID("d"), res.Below[0].ParticipantID)
	assert.Equal(t, 10, res.GapToNext)
	assert.Equal(t, 10, res.LeadOverPrev)

	res, err = h.Handle(ctx, GetNeighborsQuery{TournamentID: "weekly", ParticipantID: "a"})
	require.NoError(t, err)
	assert.Empty(t, res.Above)
	assert.Len(t, res.Below, 4)
	assert.Zero(t, res.GapToNext)

	_, err = h.Handle(ctx, GetNeighborsQuery{TournamentID: "weekly", ParticipantID: "nobody"})
	assert.True(t, shared.IsNotFound(err))
	_, err = h.Handle(ctx, GetNeighborsQuery{TournamentID: "weekly", ParticipantID: "a", RangeSize: -1})
	assert.True(t, shared.IsValidation(err))
}

func TestGetOnlineNow(t *testing.T) {
	ctx := context.Background()
	registry, directory, tr := setup(t)
	_, err := directory.SetOnline(ctx, "bob", "Bobby")
	require.NoError(t, err)
	_, err = directory.SetOnline(ctx, "dave", "Dave")
	require.NoError(t, err)

	tr.AddScore(ctx, "alice", 10, false)
	tr.AddScore(ctx, "bob", 30, false)
	require.NoError(t, tr.Update(ctx))

	h := NewGetOnlineNowHandler(registry, directory)

	res, err := h.Handle(ctx, GetOnlineNowQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.OnlineTotal)
	assert.Empty(t, res.Participants)

	res, err = h.Handle(ctx, GetOnlineNowQuery{TournamentID: "weekly"})
	require.NoError(t, err)
	require.Len(t, res.Participants, 1)
	assert.Equal(t, "Bobby", res.Participants[0].DisplayName)
	assert.Equal(t, shared.Position(1), res.Participants[0].Position)

	_, err = h.Handle(ctx, GetOnlineNowQuery{TournamentID: "missing"})
	assert.True(t, shared.IsNotFound(err))
}
