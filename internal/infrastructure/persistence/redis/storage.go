package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

// ══════════════════════════════════════════════════════════════════════════════
// SORTED-SET STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// Storage implements tournament.Storage and tournament.DeferredActionStore.
//
// Layout per tournament:
//   - "<prefix>tournament:<id>:scores"  ZSET participant -> score
//   - "<prefix>tournament:<id>:reached" ZSET participant -> unix nanos of last score change
//
// Deferred actions live in "<prefix>deferred:<participant>" lists, and
// "<prefix>deferred:pending" holds participants with a non-empty queue.
type Storage struct {
	client redis.UniversalClient
	keys   Keys
	now    func() time.Time
}

var (
	_ tournament.Storage             = (*Storage)(nil)
	_ tournament.DeferredActionStore = (*Storage)(nil)
)

// NewStorage creates a new Storage.
func NewStorage(client redis.UniversalClient, keyPrefix string) *Storage {
	return &Storage{
		client: client,
		keys:   NewKeys(keyPrefix),
		now:    time.Now,
	}
}

// persistScore writes score and moves reached only when the score changed.
var persistScore = redis.NewScript(`
local old = redis.call('ZSCORE', KEYS[1], ARGV[1])
if (not old) or tonumber(old) ~= tonumber(ARGV[2]) then
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
	redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
	return 1
end
return 0
`)

// ─────────────────────────────────────────────────────────────────────────────
// PARTICIPANTS
// ─────────────────────────────────────────────────────────────────────────────

// PersistScoreUpdate upserts the participant's score.
func (s *Storage) PersistScoreUpdate(ctx context.Context, tid shared.TournamentID, pid shared.ParticipantID, score int) error {
	keys := []string{s.keys.Scores(tid.String()), s.keys.Reached(tid.String())}
	if err := persistScore.Run(ctx, s.client, keys, pid.String(), score, s.now().UnixNano()).Err(); err != nil {
		return fmt.Errorf("persist score %s/%s: %w", tid, pid, err)
	}
	return nil
}

// TopRanking returns every participant ordered by score desc, then reach time.
func (s *Storage) TopRanking(ctx context.Context, tid shared.TournamentID) ([]tournament.Standing, error) {
	return s.rangeByScore(ctx, tid, "-inf")
}

// TopRankingAboveScore returns participants with score >= threshold in ranking order.
func (s *Storage) TopRankingAboveScore(ctx context.Context, tid shared.TournamentID, threshold int) ([]shared.ParticipantID, error) {
	standings, err := s.rangeByScore(ctx, tid, strconv.Itoa(threshold))
	if err != nil {
		return nil, err
	}
	ids := make([]shared.ParticipantID, len(standings))
	for i, st := range standings {
		ids[i] = st.ParticipantID
	}
	return ids, nil
}

func (s *Storage) rangeByScore(ctx context.Context, tid shared.TournamentID, min string) ([]tournament.Standing, error) {
	members, err := s.client.ZRangeByScoreWithScores(ctx, s.keys.Scores(tid.String()), &redis.ZRangeBy{
		Min: min,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("ranking %s: %w", tid, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.Member.(string)
	}
	reached, err := s.client.ZMScore(ctx, s.keys.Reached(tid.String()), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("reach times %s: %w", tid, err)
	}
	return rankMembers(members, reached), nil
}

// rankMembers orders by score desc, then earliest reach, then id.
func rankMembers(members []redis.Z, reached []float64) []tournament.Standing {
	type entry struct {
		standing tournament.Standing
		reached  float64
	}
	entries := make([]entry, len(members))
	for i, m := range members {
		var r float64
		if i < len(reached) {
			r = reached[i]
		}
		entries[i] = entry{
			standing: tournament.Standing{
				ParticipantID: shared.ParticipantID(fmt.Sprint(m.Member)),
				Score:         int(m.Score),
			},
			reached: r,
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.standing.Score != b.standing.Score {
			return a.standing.Score > b.standing.Score
		}
		if a.reached != b.reached {
			return a.reached < b.reached
		}
		return a.standing.ParticipantID < b.standing.ParticipantID
	})

	out := make([]tournament.Standing, len(entries))
	for i, e := range entries {
		out[i] = e.standing
	}
	return out
}

// RegisterParticipant adds the row unless it already exists.
func (s *Storage) RegisterParticipant(ctx context.Context, tid shared.TournamentID, pid shared.ParticipantID, score int) error {
	pipe := s.client.TxPipeline()
	pipe.ZAddNX(ctx, s.keys.Scores(tid.String()), redis.Z{Score: float64(score), Member: pid.String()})
	pipe.ZAddNX(ctx, s.keys.Reached(tid.String()), redis.Z{Score: float64(s.now().UnixNano()), Member: pid.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register %s/%s: %w", tid, pid, err)
	}
	return nil
}

// ForgetParticipant removes one participant.
func (s *Storage) ForgetParticipant(ctx context.Context, tid shared.TournamentID, pid shared.ParticipantID) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.keys.Scores(tid.String()), pid.String())
	pipe.ZRem(ctx, s.keys.Reached(tid.String()), pid.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("forget %s/%s: %w", tid, pid, err)
	}
	return nil
}

// ForgetAllParticipants deletes both sorted sets of the tournament.
func (s *Storage) ForgetAllParticipants(ctx context.Context, tid shared.TournamentID) error {
	if err := s.client.Del(ctx, s.keys.Scores(tid.String()), s.keys.Reached(tid.String())).Err(); err != nil {
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

// EnqueueDeferredActions appends all lines in one MULTI/EXEC.
func (s *Storage) EnqueueDeferredActions(ctx context.Context, pid shared.ParticipantID, actions []string) error {
	if len(actions) == 0 {
		return nil
	}
	values := make([]interface{}, len(actions))
	for i, a := range actions {
		values[i] = a
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.keys.Deferred(pid.String()), values...)
	pipe.SAdd(ctx, s.keys.DeferredPending(), pid.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue actions for %s: %w", pid, err)
	}
	return nil
}

// TakeDeferredActions reads and deletes the queue in one MULTI/EXEC.
func (s *Storage) TakeDeferredActions(ctx context.Context, pid shared.ParticipantID) ([]string, error) {
	key := s.keys.Deferred(pid.String())

	pipe := s.client.TxPipeline()
	lrange := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	pipe.SRem(ctx, s.keys.DeferredPending(), pid.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("take actions for %s: %w", pid, err)
	}
	return lrange.Val(), nil
}

// PendingParticipants lists participants with queued actions.
func (s *Storage) PendingParticipants(ctx context.Context) ([]shared.ParticipantID, error) {
	members, err := s.client.SMembers(ctx, s.keys.DeferredPending()).Result()
	if err != nil {
		return nil, fmt.Errorf("pending participants: %w", err)
	}
	sort.Strings(members)
	out := make([]shared.ParticipantID, len(members))
	for i, m := range members {
		out[i] = shared.ParticipantID(m)
	}
	return out, nil
}
