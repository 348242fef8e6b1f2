package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
)

const sampleYAML = `
app:
  env: production
  timezone: Asia/Almaty
storage:
  driver: memory
http:
  admin_token_hash: "$2a$10$abcdefghijklmnopqrstuu"
features:
  events_relay: "true"
  scores_auto_join: "25"
tournaments:
  - id: Weekly_Kills
    timeline: weekly
    refresh_interval: 5s
    rewards:
      "1": ["[broadcast] {player} won {tournament}"]
      "2": ["[message] silver"]
    end_actions: ["[broadcast] over"]
    disabled_worlds: [lobby]
  - id: launch_cup
    timeline: specific
    timezone: UTC
    start: "2026-03-01 10:00"
    end: "2026-03-08 10:00"
    challenge_goal: 100
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.App.Debug)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)
	assert.Equal(t, 8, cfg.Runtime.Workers)
	assert.True(t, cfg.Flags.Enabled(FeatureLifecycleWatcher))
	assert.False(t, cfg.Flags.Enabled(FeatureEventRelay))
	assert.Empty(t, cfg.Notify.Telegram.Token)
	assert.Equal(t, "https://api.telegram.org", cfg.Notify.Telegram.BaseURL)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TH_HTTP_ADDR", ":9999")
	t.Setenv("TH_RUNTIME_WORKERS", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, 3, cfg.Runtime.Workers)
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "Asia/Almaty", cfg.App.Location.String())
	assert.True(t, cfg.Flags.Enabled(FeatureEventRelay))
	require.Len(t, cfg.Tournaments, 2)

	defs, err := cfg.Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 2)

	weekly := defs[0]
	assert.Equal(t, shared.TournamentID("weekly_kills"), weekly.ID())
	assert.Equal(t, tournament.TimelineWeekly, weekly.Window().Timeline())
	assert.Equal(t, tournament.MinRefreshInterval, weekly.RefreshInterval())
	assert.Equal(t, []shared.Position{1, 2}, weekly.RewardPositions())
	assert.False(t, weekly.AcceptsScore("Lobby", ""))

	cup := defs[1]
	assert.True(t, cup.IsChallenge())
	assert.Equal(t, 100, cup.ChallengeGoal())
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), cup.Window().Start().UTC())
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := &Config{
		App:         AppConfig{Environment: EnvProduction},
		Storage:     StorageConfig{Driver: DriverPostgres},
		Events:      EventsConfig{Driver: "kafka"},
		HTTP:        HTTPConfig{Enabled: true},
		Notify:      NotifyConfig{Telegram: TelegramConfig{Token: "t"}},
		Tournaments: []TournamentConfig{{ID: "a"}, {ID: "A"}, {}},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"database.url is required",
		"events.driver",
		"runtime.workers",
		"http.admin_token_hash",
		"notify.telegram.chat_id",
		"is duplicated",
		"tournaments[2].id is required",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestTournamentConfig_RejectsBadRewardKey(t *testing.T) {
	tc := TournamentConfig{ID: "x", Timeline: "daily", Rewards: map[string][]string{"first": {"a"}}}

	_, err := tc.Definition(time.UTC)
	assert.ErrorIs(t, err, shared.ErrInvalidPosition)
}

func TestFeatureFlags_Rollout(t *testing.T) {
	ff := LoadFeatureFlags(map[string]string{"scores.auto_join": "0"})
	assert.False(t, ff.EnabledFor(FeatureAutoJoin, "p1"))

	ff.SetParticipantOverride("p1", FeatureAutoJoin, true)
	assert.True(t, ff.EnabledFor(FeatureAutoJoin, "p1"))
	assert.False(t, ff.EnabledFor(FeatureAutoJoin, "p2"))

	require.NoError(t, ff.SetRolloutPercent(FeatureAutoJoin, 100))
	assert.True(t, ff.EnabledFor(FeatureAutoJoin, "p2"))
	assert.ErrorIs(t, ff.SetRolloutPercent("missing", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureAutoJoin, 101), ErrInvalidRolloutPercent)
}

func TestFeatureFlags_StableBuckets(t *testing.T) {
	ff := LoadFeatureFlags(map[string]string{"scores_auto_join": "50"})

	first := ff.EnabledFor(FeatureAutoJoin, "player-42")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.EnabledFor(FeatureAutoJoin, "player-42"))
	}

	enabled := 0
	for i := 0; i < 1000; i++ {
		if ff.EnabledFor(FeatureAutoJoin, "player-"+strconv.Itoa(i)) {
			enabled++
		}
	}
	assert.InDelta(t, 500, enabled, 100)
}

func TestFeatureFlags_Summary(t *testing.T) {
	ff := LoadFeatureFlags(map[string]string{"events_relay": "25%", "nope": "true", "history.runs": "maybe"})

	summary := ff.Summary()
	assert.Contains(t, summary, "events.relay=25")
	assert.Contains(t, summary, "history.runs=100")
	assert.Len(t, summary, 6)
	assert.True(t, ff.Enabled(FeatureEventRelay))
}
