package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

const tid = shared.TournamentID("weekly")

func TestStorage_RankingOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	require.NoError(t, s.PersistScoreUpdate(ctx, tid, "late", 10))
	require.NoError(t, s.PersistScoreUpdate(ctx, tid, "top", 30))
	require.NoError(t, s.PersistScoreUpdate(ctx, tid, "early", 5))
	require.NoError(t, s.PersistScoreUpdate(ctx, tid, "early", 10))

	got, err := s.TopRanking(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, []tournament.Standing{
		{ParticipantID: "top", Score: 30},
		{ParticipantID: "late", Score: 10},
		{ParticipantID: "early", Score: 10},
	}, got)
}

func TestStorage_RepersistSameScoreKeepsTieOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	require.NoError(t, s.PersistScoreUpdate(ctx, tid, "a", 10))
	require.NoError(t, s.PersistScoreUpdate(ctx, tid, "b", 10))
	require.NoError(t, s.PersistScoreUpdate(ctx, tid, "a", 10))

	got, err := s.TopRanking(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, shared.ParticipantID("a"), got[0].ParticipantID)
}

func TestStorage_AboveScore(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	for id, score := range map[shared.ParticipantID]int{"a": 100, "b": 150, "c": 99} {
		require.NoError(t, s.PersistScoreUpdate(ctx, tid, id, score))
	}

	got, err := s.TopRankingAboveScore(ctx, tid, 100)
	require.NoError(t, err)
	assert.Equal(t, []shared.ParticipantID{"b", "a"}, got)
}

func TestStorage_RegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	require.NoError(t, s.RegisterParticipant(ctx, tid, "p", 7))
	require.NoError(t, s.RegisterParticipant(ctx, tid, "p", 0))

	got, err := s.LoadParticipants(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, []tournament.Standing{{ParticipantID: "p", Score: 7}}, got)
}

func TestStorage_Forget(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.PersistScoreUpdate(ctx, tid, "a", 1))
	require.NoError(t, s.PersistScoreUpdate(ctx, tid, "b", 2))
	require.NoError(t, s.PersistScoreUpdate(ctx, "other", "a", 3))

	require.NoError(t, s.ForgetParticipant(ctx, tid, "a"))
	got, _ := s.TopRanking(ctx, tid)
	assert.Len(t, got, 1)

	require.NoError(t, s.ForgetAllParticipants(ctx, tid))
	got, _ = s.TopRanking(ctx, tid)
	assert.Empty(t, got)

	other, _ := s.TopRanking(ctx, "other")
	assert.Len(t, other, 1)
}

func TestStorage_DeferredQueue(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	require.NoError(t, s.EnqueueDeferredActions(ctx, "p2", []string{"[message] gold"}))
	require.NoError(t, s.EnqueueDeferredActions(ctx, "p1", []string{"a", "b"}))
	require.NoError(t, s.EnqueueDeferredActions(ctx, "p1", []string{"c"}))
	require.NoError(t, s.EnqueueDeferredActions(ctx, "p3", nil))

	pending, err := s.PendingParticipants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []shared.ParticipantID{"p1", "p2"}, pending)

	actions, err := s.TakeDeferredActions(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, actions)

	actions, err = s.TakeDeferredActions(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestStorage_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStorage().TopRanking(ctx, tid)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirectory_Presence(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory()

	p, err := d.Lookup(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, p.Online)

	changed, err := d.SetOnline(ctx, "p1", "Alice")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, _ = d.SetOnline(ctx, "p1", "")
	assert.False(t, changed)

	p, _ = d.Lookup(ctx, "p1")
	assert.Equal(t, tournament.Player{ID: "p1", Name: "Alice", Online: true}, p)

	n, _ := d.OnlineCount(ctx)
	assert.Equal(t, int64(1), n)

	changed, _ = d.SetOffline(ctx, "p1")
	assert.True(t, changed)
	changed, _ = d.SetOffline(ctx, "p1")
	assert.False(t, changed)
}

// Tournament wiring with in-memory adapters, end to end through a stop.
func TestStorage_WithTournament(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	def, err := tournament.NewBuilder("cup").
		Window(tournament.MustRecurringWindow(tournament.TimelineDaily, time.UTC)).
		Build()
	require.NoError(t, err)

	tr, err := tournament.New(def, tournament.Dependencies{
		Storage:   s,
		Executor:  nopExecutor{},
		Publisher: nopPublisher{},
		Scheduler: inlineScheduler{},
		Directory: NewDirectory(),
	}, tournament.Options{})
	require.NoError(t, err)

	tr.AddScore(ctx, "a", 5, false)
	tr.AddScore(ctx, "b", 9, false)
	require.NoError(t, tr.Update(ctx))

	assert.Equal(t, shared.Position(1), tr.Position("b"))
	assert.Equal(t, shared.Position(2), tr.Position("a"))
}

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
