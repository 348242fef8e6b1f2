// Package memory implements in-process storage and presence for a single
// instance deployment and for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

type row struct {
	score     int
	updatedAt time.Time
	seq       uint64
}

// Storage keeps scores and deferred actions in maps.
// Ranking order: score desc, then whoever reached the score first.
type Storage struct {
	mu       sync.RWMutex
	rows     map[shared.TournamentID]map[shared.ParticipantID]*row
	deferred map[shared.ParticipantID][]string
	seq      uint64
	now      func() time.Time
}

var (
	_ tournament.Storage             = (*Storage)(nil)
	_ tournament.DeferredActionStore = (*Storage)(nil)
)

// NewStorage creates an empty storage.
func NewStorage() *Storage {
	return &Storage{
		rows:     make(map[shared.TournamentID]map[shared.ParticipantID]*row),
		deferred: make(map[shared.ParticipantID][]string),
		now:      time.Now,
	}
}

func (s *Storage) table(id shared.TournamentID) map[shared.ParticipantID]*row {
	t, ok := s.rows[id]
	if !ok {
		t = make(map[shared.ParticipantID]*row)
		s.rows[id] = t
	}
	return t
}

func (s *Storage) touch(r *row, score int) {
	if r.score != score || r.seq == 0 {
		s.seq++
		r.seq = s.seq
		r.updatedAt = s.now()
	}
	r.score = score
}

// PersistScoreUpdate upserts the participant's score.
func (s *Storage) PersistScoreUpdate(ctx context.Context, tid shared.TournamentID, pid shared.ParticipantID, score int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(tid)
	r, ok := t[pid]
	if !ok {
		r = &row{}
		t[pid] = r
	}
	s.touch(r, score)
	return nil
}

func (s *Storage) ranked(tid shared.TournamentID) []tournament.Standing {
	type item struct {
		id shared.ParticipantID
		r  row
	}
	items := make([]item, 0, len(s.rows[tid]))
	for id, r := range s.rows[tid] {
		items = append(items, item{id: id, r: *r})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].r.score != items[j].r.score {
			return items[i].r.score > items[j].r.score
		}
		return items[i].r.seq < items[j].r.seq
	})

	out := make([]tournament.Standing, len(items))
	for i, it := range items {
		out[i] = tournament.Standing{ParticipantID: it.id, Score: it.r.score}
	}
	return out
}

// TopRanking returns all participants in ranking order.
func (s *Storage) TopRanking(ctx context.Context, tid shared.TournamentID) ([]tournament.Standing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ranked(tid), nil
}

// TopRankingAboveScore returns participants with score >= threshold in ranking order.
func (s *Storage) TopRankingAboveScore(ctx context.Context, tid shared.TournamentID, threshold int) ([]shared.ParticipantID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []shared.ParticipantID
	for _, st := range s.ranked(tid) {
		if st.Score < threshold {
			break
		}
		out = append(out, st.ParticipantID)
	}
	return out, nil
}

// RegisterParticipant inserts a row unless one exists.
func (s *Storage) RegisterParticipant(ctx context.Context, tid shared.TournamentID, pid shared.ParticipantID, score int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(tid)
	if _, ok := t[pid]; !ok {
		r := &row{}
		s.touch(r, score)
		t[pid] = r
	}
	return nil
}

// ForgetParticipant deletes one row.
func (s *Storage) ForgetParticipant(ctx context.Context, tid shared.TournamentID, pid shared.ParticipantID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows[tid], pid)
	return nil
}

// ForgetAllParticipants deletes every row of a tournament.
func (s *Storage) ForgetAllParticipants(ctx context.Context, tid shared.TournamentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, tid)
	return nil
}

// LoadParticipants returns the stored rows for boot restore.
func (s *Storage) LoadParticipants(ctx context.Context, tid shared.TournamentID) ([]tournament.Standing, error) {
	return s.TopRanking(ctx, tid)
}

// EnqueueDeferredActions appends all actions under one lock.
func (s *Storage) EnqueueDeferredActions(ctx context.Context, pid shared.ParticipantID, actions []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(actions) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred[pid] = append(s.deferred[pid], actions...)
	return nil
}

// TakeDeferredActions removes and returns the participant's queue.
func (s *Storage) TakeDeferredActions(ctx context.Context, pid shared.ParticipantID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	actions := s.deferred[pid]
	delete(s.deferred, pid)
	return actions, nil
}

// PendingParticipants lists participants with queued actions, sorted.
func (s *Storage) PendingParticipants(ctx context.Context) ([]shared.ParticipantID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]shared.ParticipantID, 0, len(s.deferred))
	for id := range s.deferred {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
