package tournament

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

// syncScheduler runs async and primary tasks inline and records periodic ones.
type syncScheduler struct {
	mu       sync.Mutex
	periodic []*periodicHandle
}

type periodicHandle struct {
	task      Task
	delay     time.Duration
	period    time.Duration
	cancelled bool
}

func (h *periodicHandle) Cancel() { h.cancelled = true }

func (s *syncScheduler) RunAsync(task Task)     { task(context.Background()) }
func (s *syncScheduler) RunOnPrimary(task Task) { task(context.Background()) }

func (s *syncScheduler) RunPeriodicAsync(task Task, initialDelay, period time.Duration) (Cancelable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &periodicHandle{task: task, delay: initialDelay, period: period}
	s.periodic = append(s.periodic, h)
	return h, nil
}

func (s *syncScheduler) last() *periodicHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.periodic) == 0 {
		return nil
	}
	return s.periodic[len(s.periodic)-1]
}

// gatedScheduler runs async tasks on their own goroutines once gate is closed.
type gatedScheduler struct {
	syncScheduler
	gate chan struct{}
	wg   sync.WaitGroup
}

func (s *gatedScheduler) RunAsync(task Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.gate
		task(context.Background())
	}()
}

// fakeStorage keeps rows in memory and ranks by score desc, then id asc.
type fakeStorage struct {
	mu       sync.Mutex
	rows     map[shared.TournamentID]map[shared.ParticipantID]int
	queued   map[shared.ParticipantID][][]string
	persists int

	topErr   error
	blockTop chan struct{}
	inTop    chan struct{}

	blockPersist chan struct{}
	inPersist    chan struct{}
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		rows:   make(map[shared.TournamentID]map[shared.ParticipantID]int),
		queued: make(map[shared.ParticipantID][][]string),
	}
}

func (s *fakeStorage) table(id shared.TournamentID) map[shared.ParticipantID]int {
	if s.rows[id] == nil {
		s.rows[id] = make(map[shared.ParticipantID]int)
	}
	return s.rows[id]
}

func (s *fakeStorage) PersistScoreUpdate(_ context.Context, tid shared.TournamentID, pid shared.ParticipantID, score int) error {
	if s.inPersist != nil {
		s.inPersist <- struct{}{}
	}
	if s.blockPersist != nil {
		<-s.blockPersist
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.persists++
	s.table(tid)[pid] = score
	return nil
}

func (s *fakeStorage) TopRanking(_ context.Context, tid shared.TournamentID) ([]Standing, error) {
	if s.inTop != nil {
		s.inTop <- struct{}{}
	}
	if s.blockTop != nil {
		<-s.blockTop
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topErr != nil {
		return nil, s.topErr
	}
	out := make([]Standing, 0, len(s.rows[tid]))
	for id, score := range s.rows[tid] {
		out = append(out, Standing{ParticipantID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out, nil
}

func (s *fakeStorage) TopRankingAboveScore(_ context.Context, tid shared.TournamentID, threshold int) ([]shared.ParticipantID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []shared.ParticipantID
	for id, score := range s.rows[tid] {
		if score >= threshold {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *fakeStorage) RegisterParticipant(_ context.Context, tid shared.TournamentID, pid shared.ParticipantID, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.table(tid)[pid]; !ok {
		s.table(tid)[pid] = score
	}
	return nil
}

func (s *fakeStorage) ForgetParticipant(_ context.Context, tid shared.TournamentID, pid shared.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.table(tid), pid)
	return nil
}

func (s *fakeStorage) ForgetAllParticipants(_ context.Context, tid shared.TournamentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, tid)
	return nil
}

func (s *fakeStorage) LoadParticipants(ctx context.Context, tid shared.TournamentID) ([]Standing, error) {
	return s.TopRanking(ctx, tid)
}

func (s *fakeStorage) EnqueueDeferredActions(_ context.Context, pid shared.ParticipantID, actions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[pid] = append(s.queued[pid], append([]string(nil), actions...))
	return nil
}

func (s *fakeStorage) rowCount(tid shared.TournamentID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[tid])
}

// recordingExecutor remembers every Execute call.
type recordingExecutor struct {
	mu    sync.Mutex
	calls []executorCall
}

type executorCall struct {
	target  *Player
	actions []string
}

func (e *recordingExecutor) Execute(_ context.Context, target *Player, actions []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, executorCall{target: target, actions: append([]string(nil), actions...)})
	return nil
}

func (e *recordingExecutor) callsFor(id shared.ParticipantID) []executorCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []executorCall
	for _, c := range e.calls {
		if c.target != nil && c.target.ID == id {
			out = append(out, c)
		}
	}
	return out
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// staticDirectory reports players listed in online as live.
type staticDirectory struct {
	online map[shared.ParticipantID]bool
	err    error
}

func (d staticDirectory) Lookup(_ context.Context, id shared.ParticipantID) (Player, error) {
	if d.err != nil {
		return Player{}, d.err
	}
	return Player{ID: id, Name: "name-" + id.String(), Online: d.online[id]}, nil
}

// countingObserver counts skipped ticks and passes.
type countingObserver struct {
	mu      sync.Mutex
	skipped int
	passes  int
	failed  int
}

func (o *countingObserver) UpdatePassed(_ shared.TournamentID, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.passes++
	if err != nil {
		o.failed++
	}
}

func (o *countingObserver) TickSkipped(shared.TournamentID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped++
}

func (o *countingObserver) RewardsDispatched(shared.TournamentID, DispatchReport)   {}
func (o *countingObserver) ChallengeCompleted(shared.TournamentID, shared.Position) {}

var errStorageDown = errors.New("storage down")
