package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

func TestRankMembers_ScoreThenReachedThenID(t *testing.T) {
	members := []redis.Z{
		{Member: "carol", Score: 10},
		{Member: "alice", Score: 20},
		{Member: "bob", Score: 20},
		{Member: "dave", Score: 10},
	}
	reached := []float64{100, 300, 200, 100}

	got := rankMembers(members, reached)

	assert.Equal(t, []tournament.Standing{
		{ParticipantID: "bob", Score: 20},
		{ParticipantID: "alice", Score: 20},
		{ParticipantID: "carol", Score: 10},
		{ParticipantID: "dave", Score: 10},
	}, got)
}

func TestRankMembers_MissingReachedFallsBackToID(t *testing.T) {
	members := []redis.Z{
		{Member: "b", Score: 5},
		{Member: "a", Score: 5},
	}

	got := rankMembers(members, nil)

	require.Len(t, got, 2)
	assert.Equal(t, shared.ParticipantID("a"), got[0].ParticipantID)
	assert.Equal(t, shared.ParticipantID("b"), got[1].ParticipantID)
}

func TestRankMembers_Empty(t *testing.T) {
	assert.Empty(t, rankMembers(nil, nil))
}

func TestKeys_Prefixed(t *testing.T) {
	k := NewKeys("th:")

	assert.Equal(t, "th:tournament:spring:scores", k.Scores("spring"))
	assert.Equal(t, "th:tournament:spring:reached", k.Reached("spring"))
	assert.Equal(t, "th:deferred:p1", k.Deferred("p1"))
	assert.Equal(t, "th:deferred:pending", k.DeferredPending())
	assert.Equal(t, "th:presence:all", k.PresenceAll())
	assert.NotEqual(t, k.Runs("spring"), k.RunTokens("spring"))
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "cache"
	cfg.Port = 6380
	cfg.DB = 2
	cfg.ReadTimeout = 2 * time.Second

	opts := cfg.Options()

	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
	assert.Equal(t, cfg.PoolSize, opts.PoolSize)
}

func TestNewPresence_Defaults(t *testing.T) {
	p := NewPresence(nil, "th:", 0, nil)

	assert.Equal(t, DefaultPresenceTTL, p.ttl)
	require.NotNil(t, p.breaker)
}

func TestNewRunHistory_DefaultSize(t *testing.T) {
	assert.Equal(t, 100, NewRunHistory(nil, "th:", 0).size)
	assert.Equal(t, 5, NewRunHistory(nil, "th:", 5).size)
}
