package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
	"github.com/alem-hub/tournament-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOURNAMENT STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// Storage implements tournament.Storage and tournament.DeferredActionStore.
// Ties in the ranking go to whoever reached the score first (reached_at).
type Storage struct {
	conn    *Connection
	retrier *retry.Retrier
}

var (
	_ tournament.Storage             = (*Storage)(nil)
	_ tournament.DeferredActionStore = (*Storage)(nil)
)

// NewStorage creates a new Storage.
func NewStorage(conn *Connection) *Storage {
	return &Storage{conn: conn, retrier: retry.StorageRetrier(IsTransient)}
}

// ─────────────────────────────────────────────────────────────────────────────
// PARTICIPANTS
// ─────────────────────────────────────────────────────────────────────────────

// PersistScoreUpdate upserts the score; reached_at moves only if the score changed.
func (s *Storage) PersistScoreUpdate(ctx context.Context, tid shared.TournamentID, pid shared.ParticipantID, score int) error {
	ctx, cancel := s.conn.withTimeout(ctx)
	defer cancel()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO tournament_participants (tournament_id, participant_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (tournament_id, participant_id) DO UPDATE SET
			score = EXCLUDED.score,
			reached_at = CASE
				WHEN tournament_participants.score <> EXCLUDED.score THEN clock_timestamp()
				ELSE tournament_participants.reached_at
			END
	`, tid.String(), pid.String(), score)
	if err != nil {
		return fmt.Errorf("persist score %s/%s: %w", tid, pid, err)
	}
	return nil
}

// TopRanking returns every participant ordered by score desc.
func (s *Storage) TopRanking(ctx context.Context, tid shared.TournamentID) ([]tournament.Standing, error) {
	ctx, cancel := s.conn.withTimeout(ctx)
	defer cancel()

	rows, err := s.conn.Query(ctx, `
		SELECT participant_id, score
		FROM tournament_participants
		WHERE tournament_id = $1
		ORDER BY score DESC, reached_at ASC, participant_id ASC
	`, tid.String())
	if err != nil {
		return nil, fmt.Errorf("top ranking %s: %w", tid, err)
	}
	return collectStandings(rows)
}

// TopRankingAboveScore returns participants with score >= threshold in ranking order.
func (s *Storage) TopRankingAboveScore(ctx context.Context, tid shared.TournamentID, threshold int) ([]shared.ParticipantID, error) {
	ctx, cancel := s.conn.withTimeout(ctx)
	defer cancel()

	rows, err := s.conn.Query(ctx, `
		SELECT participant_id
		FROM tournament_participants
		WHERE tournament_id = $1 AND score >= $2
		ORDER BY score DESC, reached_at ASC, participant_id ASC
	`, tid.String(), threshold)
	if err != nil {
		return nil, fmt.Errorf("ranking above %d for %s: %w", threshold, tid, err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shared.ParticipantID, error) {
		var id string
		err := row.Scan(&id)
		return shared.ParticipantID(id), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan ranking above %d for %s: %w", threshold, tid, err)
	}
	return ids, nil
}

// RegisterParticipant inserts the row unless it already exists.
func (s *Storage) RegisterParticipant(ctx context.Context, tid shared.TournamentID, pid shared.ParticipantID, score int) error {
	ctx, cancel := s.conn.withTimeout(ctx)
	defer cancel()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO tournament_participants (tournament_id, participant_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (tournament_id, participant_id) DO NOTHING
	`, tid.String(), pid.String(), score)
	if err != nil {
		return fmt.Errorf("register %s/%s: %w", tid, pid, err)
	}
	return nil
}

// ForgetParticipant deletes one participant row.
func (s *Storage) ForgetParticipant(ctx context.Context, tid shared.TournamentID, pid shared.ParticipantID) error {
	ctx, cancel := s.conn.withTimeout(ctx)
	defer cancel()

	if _, err := s.conn.Exec(ctx,
		`DELETE FROM tournament_participants WHERE tournament_id = $1 AND participant_id = $2`,
		tid.String(), pid.String()); err != nil {
		return fmt.Errorf("forget %s/%s: %w", tid, pid, err)
	}
	return nil
}

// ForgetAllParticipants deletes every row of the tournament.
func (s *Storage) ForgetAllParticipants(ctx context.Context, tid shared.TournamentID) error {
	ctx, cancel := s.conn.withTimeout(ctx)
	defer cancel()

	if _, err := s.conn.Exec(ctx,
		`DELETE FROM tournament_participants WHERE tournament_id = $1`, tid.String()); err != nil {
		return fmt.Errorf("forget all of %s: %w", tid, err)
	}
	return nil
}

// LoadParticipants returns saved rows for restore after a restart.
func (s *Storage) LoadParticipants(ctx context.Context, tid shared.TournamentID) ([]tournament.Standing, error) {
	return s.TopRanking(ctx, tid)
}

// ─────────────────────────────────────────────────────────────────────────────
// DEFERRED ACTIONS
// ─────────────────────────────────────────────────────────────────────────────

// EnqueueDeferredActions stores all lines in one transaction.
func (s *Storage) EnqueueDeferredActions(ctx context.Context, pid shared.ParticipantID, actions []string) error {
	if len(actions) == 0 {
		return nil
	}
	ctx, cancel := s.conn.withTimeout(ctx)
	defer cancel()

	// A transient failure rolls the whole transaction back, so a replay never duplicates rows.
	batchID := uuid.New()
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
			batch := &pgx.Batch{}
			for i, action := range actions {
				batch.Queue(`
					INSERT INTO deferred_actions (participant_id, batch_id, position, action)
					VALUES ($1, $2, $3, $4)
				`, pid.String(), batchID, i, action)
			}

			br := tx.SendBatch(ctx, batch)
			for range actions {
				if _, err := br.Exec(); err != nil {
					_ = br.Close()
					return fmt.Errorf("queue action for %s: %w", pid, err)
				}
			}
			return br.Close()
		})
	})
}

// TakeDeferredActions deletes and returns the participant's queue in insertion order.
func (s *Storage) TakeDeferredActions(ctx context.Context, pid shared.ParticipantID) ([]string, error) {
	ctx, cancel := s.conn.withTimeout(ctx)
	defer cancel()

	rows, err := s.conn.Query(ctx, `
		WITH taken AS (
			DELETE FROM deferred_actions
			WHERE participant_id = $1
			RETURNING id, action
		)
		SELECT action FROM taken ORDER BY id
	`, pid.String())
	if err != nil {
		return nil, fmt.Errorf("take actions for %s: %w", pid, err)
	}

	actions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan actions for %s: %w", pid, err)
	}
	return actions, nil
}

// PendingParticipants lists participants with queued actions.
func (s *Storage) PendingParticipants(ctx context.Context) ([]shared.ParticipantID, error) {
	ctx, cancel := s.conn.withTimeout(ctx)
	defer cancel()

	rows, err := s.conn.Query(ctx,
		`SELECT DISTINCT participant_id FROM deferred_actions ORDER BY participant_id`)
	if err != nil {
		return nil, fmt.Errorf("pending participants: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan pending participants: %w", err)
	}
	out := make([]shared.ParticipantID, len(ids))
	for i, id := range ids {
		out[i] = shared.ParticipantID(id)
	}
	return out, nil
}

func collectStandings(rows pgx.Rows) ([]tournament.Standing, error) {
	standings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (tournament.Standing, error) {
		var id string
		var score int
		if err := row.Scan(&id, &score); err != nil {
			return tournament.Standing{}, err
		}
		return tournament.Standing{ParticipantID: shared.ParticipantID(id), Score: score}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan standings: %w", err)
	}
	return standings, nil
}
