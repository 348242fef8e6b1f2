package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/persistence/memory"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mocks
// ─────────────────────────────────────────────────────────────────────────────

type mockExecutor struct{ mock.Mock }

func (m *mockExecutor) Execute(ctx context.Context, target *tournament.Player, actions []string) error {
	return m.Called(ctx, target, actions).Error(0)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(event shared.Event) error {
	return m.Called(event).Error(0)
}

type inlineScheduler struct{}

type nopCancel struct{}

func (nopCancel) Cancel() {}

func (inlineScheduler) RunAsync(task tournament.Task)     { task(context.Background()) }
func (inlineScheduler) RunOnPrimary(task tournament.Task) { task(context.Background()) }
func (inlineScheduler) RunPeriodicAsync(tournament.Task, time.Duration, time.Duration) (tournament.Cancelable, error) {
	return nopCancel{}, nil
}

func ofType(t shared.EventType) interface{} {
	return mock.MatchedBy(func(e shared.Event) bool { return e.EventType() == t })
}

func forPlayer(id shared.ParticipantID) interface{} {
	return mock.MatchedBy(func(p *tournament.Player) bool { return p != nil && p.ID == id })
}

type fixture struct {
	registry  *tournament.Registry
	storage   *memory.Storage
	directory *memory.Directory
	executor  *mockExecutor
	publisher *mockPublisher
}

func newFixture() *fixture {
	return &fixture{
		registry:  tournament.NewRegistry(),
		storage:   memory.NewStorage(),
		directory: memory.NewDirectory(),
		executor:  &mockExecutor{},
		publisher: &mockPublisher{},
	}
}

// add registers a tournament whose window is offset from now by the given bounds.
func (f *fixture) add(t *testing.T, b *tournament.Builder, from, to time.Duration) *tournament.Tournament {
	t.Helper()
	now := time.Now()
	w, err := tournament.NewSpecificWindow(now.Add(from), now.Add(to), time.UTC)
	require.NoError(t, err)

	def, err := b.Window(w).Build()
	require.NoError(t, err)

	tr, err := tournament.New(def, tournament.Dependencies{
		Storage:   f.storage,
		Executor:  f.executor,
		Publisher: f.publisher,
		Scheduler: inlineScheduler{},
		Directory: f.directory,
	}, tournament.Options{})
	require.NoError(t, err)
	require.NoError(t, f.registry.Register(tr))
	return tr
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.publisher.On("Publish", mock.Anything).Return(nil)
	f.add(t, tournament.NewBuilder("weekly"), -time.Hour, time.Hour)

	start := NewStartTournamentHandler(f.registry, nil)
	stop := NewStopTournamentHandler(f.registry, nil)

	started, err := start.Handle(ctx, StartTournamentCommand{TournamentID: "weekly", ClearParticipants: true})
	require.NoError(t, err)
	assert.NotEmpty(t, started.RunToken)
	assert.Equal(t, tournament.StatusActive, started.Status)

	stopped, err := stop.Handle(ctx, StopTournamentCommand{TournamentID: "weekly"})
	require.NoError(t, err)
	assert.Equal(t, started.RunToken, stopped.RunToken)
	assert.Equal(t, tournament.StatusEnded, stopped.Status)

	_, err = stop.Handle(ctx, StopTournamentCommand{TournamentID: "weekly"})
	assert.True(t, shared.IsStateTransition(err))

	f.publisher.AssertCalled(t, "Publish", ofType(shared.EventTournamentStarted))
	f.publisher.AssertCalled(t, "Publish", ofType(shared.EventTournamentEnded))
}

func TestStart_UnknownTournament(t *testing.T) {
	f := newFixture()

	_, err := NewStartTournamentHandler(f.registry, nil).Handle(context.Background(), StartTournamentCommand{TournamentID: "nope"})
	assert.True(t, shared.IsNotFound(err))

	_, err = NewStartTournamentHandler(f.registry, nil).Handle(context.Background(), StartTournamentCommand{TournamentID: "Bad ID!"})
	assert.True(t, shared.IsValidation(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Scores
// ─────────────────────────────────────────────────────────────────────────────

func TestSubmitScore_AutoJoinRunsParticipationActions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.publisher.On("Publish", mock.Anything).Return(nil)
	actions := []string{"[message] welcome {player}"}
	f.executor.On("Execute", mock.Anything, forPlayer("alice"), actions).Return(nil).Once()

	f.add(t, tournament.NewBuilder("cup").Participation(tournament.ParticipationPolicy{
		Automatic: true,
		Actions:   actions,
	}), -time.Hour, time.Hour)

	h := NewSubmitScoreHandler(f.registry, f.directory, f.executor, f.publisher, nil, SubmitScoreHandlerConfig{})

	res, err := h.Handle(ctx, SubmitScoreCommand{TournamentID: "cup", ParticipantID: "alice", Amount: 5})
	require.NoError(t, err)
	assert.True(t, res.Joined)
	assert.Equal(t, 5, res.Score)

	res, err = h.Handle(ctx, SubmitScoreCommand{TournamentID: "cup", ParticipantID: "alice", Amount: 3})
	require.NoError(t, err)
	assert.False(t, res.Joined)
	assert.Equal(t, 8, res.Score)

	res, err = h.Handle(ctx, SubmitScoreCommand{TournamentID: "cup", ParticipantID: "alice", Amount: 2, Replace: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Score)

	f.executor.AssertExpectations(t)
	f.publisher.AssertNumberOfCalls(t, "Publish", 1)
	f.publisher.AssertCalled(t, "Publish", ofType(shared.EventParticipantJoined))
}

func TestSubmitScore_AutoJoinGate(t *testing.T) {
	f := newFixture()
	f.add(t, tournament.NewBuilder("cup").Participation(tournament.ParticipationPolicy{Automatic: true}), -time.Hour, time.Hour)

	h := NewSubmitScoreHandler(f.registry, f.directory, f.executor, f.publisher, nil, SubmitScoreHandlerConfig{
		AutoJoin: func(shared.ParticipantID) bool { return false },
	})

	_, err := h.Handle(context.Background(), SubmitScoreCommand{TournamentID: "cup", ParticipantID: "bob", Amount: 1})
	assert.ErrorIs(t, err, shared.ErrParticipantNotFound)
	assert.True(t, IsRejected(err))
}

func TestSubmitScore_Rejections(t *testing.T) {
	f := newFixture()
	f.add(t, tournament.NewBuilder("kills").
		Objective("kills").
		DisabledWorlds("nether"), -time.Hour, time.Hour)
	f.add(t, tournament.NewBuilder("later"), time.Hour, 2*time.Hour)

	h := NewSubmitScoreHandler(f.registry, f.directory, f.executor, f.publisher, nil, SubmitScoreHandlerConfig{})

	tests := []struct {
		name string
		cmd  SubmitScoreCommand
		want error
	}{
		{"wrong objective", SubmitScoreCommand{TournamentID: "kills", ParticipantID: "a", Objective: "deaths"}, shared.ErrScoreFiltered},
		{"disabled world", SubmitScoreCommand{TournamentID: "kills", ParticipantID: "a", Objective: "kills", World: "Nether"}, shared.ErrScoreFiltered},
		{"not a participant", SubmitScoreCommand{TournamentID: "kills", ParticipantID: "a", Objective: "kills"}, shared.ErrParticipantNotFound},
		{"not active", SubmitScoreCommand{TournamentID: "later", ParticipantID: "a"}, shared.ErrTournamentNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsRejected(err))
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Join
// ─────────────────────────────────────────────────────────────────────────────

func TestJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.publisher.On("Publish", mock.Anything).Return(nil)
	f.add(t, tournament.NewBuilder("vip").Participation(tournament.ParticipationPolicy{
		Permission: "tournament.vip",
		Cost:       10,
	}), -time.Hour, time.Hour)
	f.add(t, tournament.NewBuilder("old"), -2*time.Hour, -time.Hour)

	h := NewJoinTournamentHandler(f.registry, f.directory, f.executor, f.publisher, nil)

	_, err := h.Handle(ctx, JoinTournamentCommand{TournamentID: "vip", ParticipantID: "alice"})
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)

	res, err := h.Handle(ctx, JoinTournamentCommand{TournamentID: "vip", ParticipantID: "alice", Permissions: []string{"tournament.vip"}})
	require.NoError(t, err)
	assert.True(t, res.Joined)
	assert.Equal(t, 10.0, res.Cost)

	res, err = h.Handle(ctx, JoinTournamentCommand{TournamentID: "vip", ParticipantID: "alice", Permissions: []string{"tournament.vip"}})
	require.NoError(t, err)
	assert.False(t, res.Joined)

	_, err = h.Handle(ctx, JoinTournamentCommand{TournamentID: "old", ParticipantID: "alice"})
	assert.ErrorIs(t, err, shared.ErrJoinClosed)

	rows, err := f.storage.LoadParticipants(ctx, "vip")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	f.executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

// ─────────────────────────────────────────────────────────────────────────────
// Presence & deferred delivery
// ─────────────────────────────────────────────────────────────────────────────

func TestUpdatePresence_PublishesTransitionsOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.publisher.On("Publish", mock.Anything).Return(nil)
	h := NewUpdatePresenceHandler(f.directory, f.publisher, nil)

	res, err := h.Handle(ctx, UpdatePresenceCommand{ParticipantID: "alice", Name: "Alice", Online: true})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	res, err = h.Handle(ctx, UpdatePresenceCommand{ParticipantID: "alice", Online: true})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	res, err = h.Handle(ctx, UpdatePresenceCommand{ParticipantID: "alice", Online: false})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	f.publisher.AssertNumberOfCalls(t, "Publish", 2)
	f.publisher.AssertCalled(t, "Publish", ofType(shared.EventPlayerWentOnline))
	f.publisher.AssertCalled(t, "Publish", ofType(shared.EventPlayerWentOffline))

	_, err = h.Handle(ctx, UpdatePresenceCommand{})
	assert.Error(t, err)
}

func TestDeliverDeferred(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.publisher.On("Publish", mock.Anything).Return(nil)
	f.executor.On("Execute", mock.Anything, forPlayer("alice"), []string{"[message] a", "[message] b"}).Return(nil).Once()

	require.NoError(t, f.storage.EnqueueDeferredActions(ctx, "alice", []string{"[message] a", "[message] b"}))
	require.NoError(t, f.storage.EnqueueDeferredActions(ctx, "bob", []string{"[message] c"}))
	_, err := f.directory.SetOnline(ctx, "alice", "Alice")
	require.NoError(t, err)

	h := NewDeliverDeferredHandler(f.storage, f.directory, f.executor, f.publisher, nil)

	delivered, err := h.DeliverPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	n, err := h.Handle(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := f.storage.PendingParticipants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []shared.ParticipantID{"bob"}, pending)

	f.executor.AssertExpectations(t)
	f.publisher.AssertCalled(t, "Publish", ofType(shared.EventDeferredDelivered))
}
