// Package redis implements Tournament Hub storage on Redis: participant
// scores in sorted sets, deferred actions in lists, player presence with
// TTL keys and a capped run history.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration

	// KeyPrefix namespaces every key, e.g. "th:".
	KeyPrefix string
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		KeyPrefix:    "th:",
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Options converts the config to go-redis options.
func (c Config) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolTimeout:  c.PoolTimeout,
	}
}

// ErrConnection is returned when Redis is unreachable at startup.
var ErrConnection = errors.New("redis: connection failed")

// NewClient creates a client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(cfg.Options())

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return client, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

// Keys builds namespaced key names.
type Keys struct {
	prefix string
}

// NewKeys creates a key builder with the given prefix.
func NewKeys(prefix string) Keys { return Keys{prefix: prefix} }

// Scores is the sorted set of participant scores.
func (k Keys) Scores(tournamentID string) string {
	return k.prefix + "tournament:" + tournamentID + ":scores"
}

// Reached is the sorted set of the instants participants reached their score.
func (k Keys) Reached(tournamentID string) string {
	return k.prefix + "tournament:" + tournamentID + ":reached"
}

// Deferred is the list of queued actions of a participant.
func (k Keys) Deferred(participantID string) string {
	return k.prefix + "deferred:" + participantID
}

// DeferredPending is the set of participants with queued actions.
func (k Keys) DeferredPending() string {
	return k.prefix + "deferred:pending"
}

// Presence is the TTL key marking a player online.
func (k Keys) Presence(participantID string) string {
	return k.prefix + "presence:" + participantID
}

// PresenceAll is the sorted set of online players by last seen time.
func (k Keys) PresenceAll() string {
	return k.prefix + "presence:all"
}

// PlayerNames is the hash of known display names.
func (k Keys) PlayerNames() string {
	return k.prefix + "players:names"
}

// Runs is the capped list of finished runs.
func (k Keys) Runs(tournamentID string) string {
	return k.prefix + "tournament:" + tournamentID + ":runs"
}

// RunTokens is the set of recorded run tokens.
func (k Keys) RunTokens(tournamentID string) string {
	return k.prefix + "tournament:" + tournamentID + ":run_tokens"
}
