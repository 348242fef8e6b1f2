package memory

import (
	"context"
	"sync"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// RunHistory keeps finished runs per tournament, newest first, capped at size.
type RunHistory struct {
	mu     sync.RWMutex
	size   int
	runs   map[shared.TournamentID][]tournament.RunRecord
	tokens map[string]struct{}
}

var _ tournament.RunHistory = (*RunHistory)(nil)

// NewRunHistory creates an empty history. size <= 0 means 100.
func NewRunHistory(size int) *RunHistory {
	if size <= 0 {
		size = 100
	}
	return &RunHistory{
		size:   size,
		runs:   make(map[shared.TournamentID][]tournament.RunRecord),
		tokens: make(map[string]struct{}),
	}
}

// RecordRun stores the record unless its token was seen before.
func (h *RunHistory) RecordRun(ctx context.Context, record tournament.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, seen := h.tokens[record.RunToken]; seen {
		return nil
	}
	h.tokens[record.RunToken] = struct{}{}

	list := append([]tournament.RunRecord{record}, h.runs[record.TournamentID]...)
	if len(list) > h.size {
		list = list[:h.size]
	}
	h.runs[record.TournamentID] = list
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (h *RunHistory) RecentRuns(ctx context.Context, tid shared.TournamentID, limit int) ([]tournament.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.runs[tid]
	if len(list) > limit {
		list = list[:limit]
	}
	return append([]tournament.RunRecord(nil), list...), nil
}
