package config

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Flag names. In YAML and env they are written with underscores
// (features.lifecycle_watcher, HUB_FEATURES_LIFECYCLE_WATCHER).
const (
	FeatureLifecycleWatcher = "lifecycle.watcher"         // start/stop tournaments by their windows
	FeatureDeferredDelivery = "rewards.deferred_delivery" // drain queued rewards on login and by schedule
	FeatureAutoJoin         = "scores.auto_join"          // first score joins an automatic tournament
	FeatureRunHistory       = "history.runs"              // record finished runs
	FeatureEventRelay       = "events.relay"              // forward events to other instances
	FeatureRestoreOnBoot    = "lifecycle.restore"         // reload participants from storage at start
)

var (
	ErrFeatureNotFound       = errors.New("feature not found")
	ErrInvalidRolloutPercent = errors.New("rollout percent must be 0-100")
)

// defaultRollout is the percent of participants each flag starts at.
var defaultRollout = map[string]int{
	FeatureLifecycleWatcher: 100,
	FeatureDeferredDelivery: 100,
	FeatureAutoJoin:         100,
	FeatureRunHistory:       100,
	FeatureEventRelay:       0,
	FeatureRestoreOnBoot:    100,
}

// FeatureFlags holds a rollout percent per flag plus per-participant pins.
// A participant's bucket depends only on the flag name and its ID.
type FeatureFlags struct {
	mu      sync.RWMutex
	rollout map[string]int
	pinned  map[string]bool // flag + "\x00" + participant
}

// LoadFeatureFlags applies overrides on top of the defaults. A value is
// "true", "false" or a percent such as "25" or "25%". Unknown names and
// unparsable values are ignored.
func LoadFeatureFlags(overrides map[string]string) *FeatureFlags {
	ff := &FeatureFlags{
		rollout: make(map[string]int, len(defaultRollout)),
		pinned:  make(map[string]bool),
	}
	byKey := make(map[string]string, len(defaultRollout))
	for name, pct := range defaultRollout {
		ff.rollout[name] = pct
		byKey[flagKey(name)] = name
	}

	for key, raw := range overrides {
		name, ok := byKey[flagKey(key)]
		if !ok {
			continue
		}
		if pct, ok := parseRollout(raw); ok {
			ff.rollout[name] = pct
		}
	}
	return ff
}

func flagKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), ".", "_"))
}

func parseRollout(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if on, err := strconv.ParseBool(raw); err == nil {
		if on {
			return 100, true
		}
		return 0, true
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(raw, "%"))
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

// Enabled reports whether a flag is on at all (rollout above zero).
func (ff *FeatureFlags) Enabled(name string) bool {
	if ff == nil {
		return false
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	return ff.rollout[name] > 0
}

// EnabledFor decides for one participant: a pin wins, then the rollout bucket.
func (ff *FeatureFlags) EnabledFor(name, participantID string) bool {
	if ff == nil {
		return false
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if on, ok := ff.pinned[name+"\x00"+participantID]; ok {
		return on
	}
	switch pct := ff.rollout[name]; pct {
	case 0:
		return false
	case 100:
		return true
	default:
		return bucket(name, participantID) < pct
	}
}

func bucket(name, participantID string) int {
	d := xxhash.New()
	_, _ = d.WriteString(name)
	_, _ = d.WriteString(participantID)
	return int(d.Sum64() % 100)
}

// SetParticipantOverride pins a flag on or off for one participant.
func (ff *FeatureFlags) SetParticipantOverride(participantID, name string, on bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.pinned[name+"\x00"+participantID] = on
}

func (ff *FeatureFlags) SetRolloutPercent(name string, pct int) error {
	if pct < 0 || pct > 100 {
		return ErrInvalidRolloutPercent
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if _, ok := ff.rollout[name]; !ok {
		return ErrFeatureNotFound
	}
	ff.rollout[name] = pct
	return nil
}

// Summary lists "name=percent" pairs sorted by name, for the startup log.
func (ff *FeatureFlags) Summary() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	out := make([]string, 0, len(ff.rollout))
	for name, pct := range ff.rollout {
		out = append(out, name+"="+strconv.Itoa(pct))
	}
	slices.Sort(out)
	return out
}
