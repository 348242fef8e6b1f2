package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN HISTORY REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// RunHistoryRepository implements tournament.RunHistory.
type RunHistoryRepository struct {
	conn *Connection
}

var _ tournament.RunHistory = (*RunHistoryRepository)(nil)

// NewRunHistoryRepository creates a new RunHistoryRepository.
func NewRunHistoryRepository(conn *Connection) *RunHistoryRepository {
	return &RunHistoryRepository{conn: conn}
}

// RecordRun saves the run and its standings in one transaction.
func (r *RunHistoryRepository) RecordRun(ctx context.Context, record tournament.RunRecord) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO tournament_runs (run_token, tournament_id, ended_at, participants)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (run_token) DO NOTHING
		`, record.RunToken, record.TournamentID.String(), record.EndedAt, len(record.Standings))
		if err != nil {
			return fmt.Errorf("insert run %s: %w", record.RunToken, err)
		}
		if tag.RowsAffected() == 0 || len(record.Standings) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, s := range record.Standings {
			batch.Queue(`
				INSERT INTO tournament_run_standings (run_token, position, participant_id, score)
				VALUES ($1, $2, $3, $4)
			`, record.RunToken, i+1, s.ParticipantID.String(), s.Score)
		}

		br := tx.SendBatch(ctx, batch)
		for range record.Standings {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert standing for run %s: %w", record.RunToken, err)
			}
		}
		return br.Close()
	})
}

// RecentRuns returns the latest runs of a tournament, newest first.
func (r *RunHistoryRepository) RecentRuns(ctx context.Context, tid shared.TournamentID, limit int) ([]tournament.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.conn.Query(ctx, `
		SELECT run_token, ended_at
		FROM tournament_runs
		WHERE tournament_id = $1
		ORDER BY ended_at DESC
		LIMIT $2
	`, tid.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs of %s: %w", tid, err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (tournament.RunRecord, error) {
		rec := tournament.RunRecord{TournamentID: tid}
		var endedAt time.Time
		err := row.Scan(&rec.RunToken, &endedAt)
		rec.EndedAt = endedAt
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan runs of %s: %w", tid, err)
	}

	for i := range records {
		standings, err := r.standings(ctx, records[i].RunToken)
		if err != nil {
			return nil, err
		}
		records[i].Standings = standings
	}
	return records, nil
}

func (r *RunHistoryRepository) standings(ctx context.Context, token string) ([]tournament.Standing, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT participant_id, score
		FROM tournament_run_standings
		WHERE run_token = $1
		ORDER BY position
	`, token)
	if err != nil {
		return nil, fmt.Errorf("standings of run %s: %w", token, err)
	}
	return collectStandings(rows)
}
