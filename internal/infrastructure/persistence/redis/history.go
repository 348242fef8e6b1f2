package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// RunHistory keeps the last N runs per tournament in a list, newest first.
type RunHistory struct {
	client redis.UniversalClient
	keys   Keys
	size   int
}

var _ tournament.RunHistory = (*RunHistory)(nil)

// NewRunHistory creates a capped run history.
func NewRunHistory(client redis.UniversalClient, keyPrefix string, size int) *RunHistory {
	if size <= 0 {
		size = 100
	}
	return &RunHistory{client: client, keys: NewKeys(keyPrefix), size: size}
}

// RecordRun pushes the record unless its token was seen before.
func (h *RunHistory) RecordRun(ctx context.Context, record tournament.RunRecord) error {
	tid := record.TournamentID.String()

	added, err := h.client.SAdd(ctx, h.keys.RunTokens(tid), record.RunToken).Result()
	if err != nil {
		return fmt.Errorf("record run %s: %w", record.RunToken, err)
	}
	if added == 0 {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", record.RunToken, err)
	}

	pipe := h.client.TxPipeline()
	pipe.LPush(ctx, h.keys.Runs(tid), data)
	pipe.LTrim(ctx, h.keys.Runs(tid), 0, int64(h.size-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record run %s: %w", record.RunToken, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (h *RunHistory) RecentRuns(ctx context.Context, tid shared.TournamentID, limit int) ([]tournament.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	raw, err := h.client.LRange(ctx, h.keys.Runs(tid.String()), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("recent runs of %s: %w", tid, err)
	}

	out := make([]tournament.RunRecord, 0, len(raw))
	for _, item := range raw {
		var rec tournament.RunRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode run of %s: %w", tid, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
