package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
	"github.com/alem-hub/tournament-hub/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

// DefaultPresenceTTL is how long a player stays online without a heartbeat.
const DefaultPresenceTTL = 5 * time.Minute

// Presence implements tournament.PresenceTracker.
//
// Storage schema:
//   - "<prefix>presence:<id>" holds the last-seen unix time with a TTL
//   - "<prefix>presence:all" ZSET of online players by last seen
//   - "<prefix>players:names" HASH of display names, kept after logout
//
// Calls go through a circuit breaker; while it is open Lookup fails fast
// and the caller treats the player as offline.
type Presence struct {
	client  redis.UniversalClient
	keys    Keys
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	now     func() time.Time
}

var _ tournament.PresenceTracker = (*Presence)(nil)

// NewPresence creates a presence directory.
func NewPresence(client redis.UniversalClient, keyPrefix string, ttl time.Duration, breaker *circuitbreaker.CircuitBreaker) *Presence {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	if breaker == nil {
		breaker = circuitbreaker.PresenceBreaker(nil)
	}
	return &Presence{
		client:  client,
		keys:    NewKeys(keyPrefix),
		ttl:     ttl,
		breaker: breaker,
		now:     time.Now,
	}
}

// Lookup returns the player. Unknown players come back offline without error.
func (p *Presence) Lookup(ctx context.Context, id shared.ParticipantID) (tournament.Player, error) {
	return circuitbreaker.Call(ctx, p.breaker, func(ctx context.Context) (tournament.Player, error) {
		pipe := p.client.Pipeline()
		exists := pipe.Exists(ctx, p.keys.Presence(id.String()))
		name := pipe.HGet(ctx, p.keys.PlayerNames(), id.String())
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return tournament.Player{}, fmt.Errorf("lookup %s: %w", id, err)
		}
		return tournament.Player{
			ID:     id,
			Name:   name.Val(),
			Online: exists.Val() > 0,
		}, nil
	})
}

// SetOnline marks the player online (or refreshes the heartbeat).
// Reports whether the player was offline before.
func (p *Presence) SetOnline(ctx context.Context, id shared.ParticipantID, name string) (bool, error) {
	return circuitbreaker.Call(ctx, p.breaker, func(ctx context.Context) (bool, error) {
		now := p.now()

		pipe := p.client.TxPipeline()
		set := pipe.SetArgs(ctx, p.keys.Presence(id.String()), strconv.FormatInt(now.Unix(), 10), redis.SetArgs{
			TTL: p.ttl,
			Get: true,
		})
		pipe.ZAdd(ctx, p.keys.PresenceAll(), redis.Z{Score: float64(now.Unix()), Member: id.String()})
		if name != "" {
			pipe.HSet(ctx, p.keys.PlayerNames(), id.String(), name)
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return false, fmt.Errorf("set online %s: %w", id, err)
		}
		return errors.Is(set.Err(), redis.Nil), nil
	})
}

// SetOffline removes the presence key. Reports whether the player was online.
func (p *Presence) SetOffline(ctx context.Context, id shared.ParticipantID) (bool, error) {
	return circuitbreaker.Call(ctx, p.breaker, func(ctx context.Context) (bool, error) {
		pipe := p.client.TxPipeline()
		del := pipe.Del(ctx, p.keys.Presence(id.String()))
		pipe.ZRem(ctx, p.keys.PresenceAll(), id.String())
		if _, err := pipe.Exec(ctx); err != nil {
			return false, fmt.Errorf("set offline %s: %w", id, err)
		}
		return del.Val() > 0, nil
	})
}

// OnlineCount counts players seen within the TTL.
func (p *Presence) OnlineCount(ctx context.Context) (int64, error) {
	return circuitbreaker.Call(ctx, p.breaker, func(ctx context.Context) (int64, error) {
		min := strconv.FormatInt(p.now().Add(-p.ttl).Unix(), 10)
		n, err := p.client.ZCount(ctx, p.keys.PresenceAll(), min, "+inf").Result()
		if err != nil {
			return 0, fmt.Errorf("online count: %w", err)
		}
		return n, nil
	})
}

// CleanupStale drops expired players from the online set.
func (p *Presence) CleanupStale(ctx context.Context) (int64, error) {
	max := strconv.FormatInt(p.now().Add(-p.ttl).Unix(), 10)
	return p.client.ZRemRangeByScore(ctx, p.keys.PresenceAll(), "-inf", "("+max).Result()
}
