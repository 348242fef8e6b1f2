package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
	"github.com/alem-hub/tournament-hub/pkg/timeutil"
)

// TournamentConfig describes one tournament in the YAML file.
//
//	tournaments:
//	  - id: weekly_kills
//	    timeline: weekly
//	    refresh_interval: 30s
//	    rewards:
//	      "1": ["[broadcast] {player} won {tournament}!"]
type TournamentConfig struct {
	ID       string `mapstructure:"id"`
	Timeline string `mapstructure:"timeline"`
	Timezone string `mapstructure:"timezone"`

	// Start and End are used by the specific timeline ("2006-01-02 15:04").
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`

	// Cron and Duration are used by the cron timeline.
	Cron     string        `mapstructure:"cron"`
	Duration time.Duration `mapstructure:"duration"`

	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	ChallengeGoal   int           `mapstructure:"challenge_goal"`

	// Rewards maps a 1-based position to its actions.
	Rewards      map[string][]string `mapstructure:"rewards"`
	StartActions []string            `mapstructure:"start_actions"`
	EndActions   []string            `mapstructure:"end_actions"`

	Participation  ParticipationConfig `mapstructure:"participation"`
	Objective      string              `mapstructure:"objective"`
	DisabledWorlds []string            `mapstructure:"disabled_worlds"`
	DisabledModes  []string            `mapstructure:"disabled_modes"`
}

// ParticipationConfig mirrors tournament.ParticipationPolicy.
type ParticipationConfig struct {
	Automatic  bool     `mapstructure:"automatic"`
	Cost       float64  `mapstructure:"cost"`
	Permission string   `mapstructure:"permission"`
	Actions    []string `mapstructure:"actions"`
}

// Window builds the time window. fallback is used when Timezone is empty.
func (tc TournamentConfig) Window(fallback *time.Location) (tournament.TimeWindow, error) {
	loc := fallback
	if tc.Timezone != "" {
		l, err := timeutil.LoadLocation(tc.Timezone)
		if err != nil {
			return tournament.TimeWindow{}, err
		}
		loc = l
	}

	tl, err := tournament.ParseTimeline(tc.Timeline)
	if err != nil {
		return tournament.TimeWindow{}, err
	}

	switch tl {
	case tournament.TimelineSpecific:
		start, err := timeutil.ParseDateTime(tc.Start, loc)
		if err != nil {
			return tournament.TimeWindow{}, fmt.Errorf("start: %w", err)
		}
		end, err := timeutil.ParseDateTime(tc.End, loc)
		if err != nil {
			return tournament.TimeWindow{}, fmt.Errorf("end: %w", err)
		}
		return tournament.NewSpecificWindow(start, end, loc)
	case tournament.TimelineCron:
		return tournament.NewCronWindow(tc.Cron, tc.Duration, loc)
	default:
		return tournament.NewRecurringWindow(tl, loc)
	}
}

// Definition converts the entry into a domain definition.
func (tc TournamentConfig) Definition(fallback *time.Location) (*tournament.Definition, error) {
	window, err := tc.Window(fallback)
	if err != nil {
		return nil, fmt.Errorf("tournament %s: %w", tc.ID, err)
	}

	b := tournament.NewBuilder(tc.ID).
		Window(window).
		StartActions(tc.StartActions...).
		EndActions(tc.EndActions...).
		Objective(tc.Objective).
		DisabledWorlds(tc.DisabledWorlds...).
		DisabledModes(tc.DisabledModes...).
		Participation(tournament.ParticipationPolicy{
			Automatic:  tc.Participation.Automatic,
			Cost:       tc.Participation.Cost,
			Permission: tc.Participation.Permission,
			Actions:    tc.Participation.Actions,
		})

	if tc.RefreshInterval > 0 {
		b.RefreshInterval(tc.RefreshInterval)
	}
	if tc.ChallengeGoal != 0 {
		b.Challenge(tc.ChallengeGoal)
	}

	for key, actions := range tc.Rewards {
		pos, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("tournament %s: reward key %q: %w", tc.ID, key, shared.ErrInvalidPosition)
		}
		b.Reward(shared.Position(pos), actions...)
	}

	def, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("tournament %s: %w", tc.ID, err)
	}
	return def, nil
}

// Definitions converts every configured tournament.
func (c *Config) Definitions() ([]*tournament.Definition, error) {
	out := make([]*tournament.Definition, 0, len(c.Tournaments))
	for _, tc := range c.Tournaments {
		def, err := tc.Definition(c.App.Location)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}
