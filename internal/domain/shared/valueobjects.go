// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// TournamentID is the stable configured identifier of a tournament.
type TournamentID string

// Tournament identifiers are used as storage keys and redis key suffixes.
var tournamentIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,63}$`)

// IsValid checks if the identifier is usable as a storage key.
func (t TournamentID) IsValid() bool {
	return tournamentIDRegex.MatchString(string(t))
}

// String returns the string representation.
func (t TournamentID) String() string {
	return string(t)
}

// NewTournamentID creates a new TournamentID with validation.
func NewTournamentID(id string) (TournamentID, error) {
	tid := TournamentID(strings.ToLower(strings.TrimSpace(id)))
	if !tid.IsValid() {
		return "", ErrInvalidIdentifier
	}
	return tid, nil
}

// ParticipantID identifies a player taking part in tournaments.
type ParticipantID string

// MaxParticipantIDLength bounds participant identifiers.
const MaxParticipantIDLength = 64

// IsValid checks if the participant ID is non-empty and bounded.
func (p ParticipantID) IsValid() bool {
	return p != "" && len(p) <= MaxParticipantIDLength
}

// String returns the string representation.
func (p ParticipantID) String() string {
	return string(p)
}

// IsEmpty checks if the ID is empty.
func (p ParticipantID) IsEmpty() bool {
	return p == ""
}

// NewParticipantID creates a new ParticipantID with validation.
func NewParticipantID(id string) (ParticipantID, error) {
	pid := ParticipantID(strings.TrimSpace(id))
	if !pid.IsValid() {
		return "", ErrInvalidParticipant
	}
	return pid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Position Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Position is a 1-based place in a ranking. Zero means "not ranked".
type Position int

const (
	FirstPosition Position = 1
	Unranked      Position = 0
)

// IsValid checks if the position is a real place.
func (p Position) IsValid() bool {
	return p >= FirstPosition
}

// Int returns the underlying int value.
func (p Position) Int() int {
	return int(p)
}

// IsUnranked checks if the participant is not ranked.
func (p Position) IsUnranked() bool {
	return p == Unranked
}

// IsTop returns true if the position is in the top N.
func (p Position) IsTop(n int) bool {
	return p.IsValid() && int(p) <= n
}

// Medal returns a medal emoji for podium places.
func (p Position) Medal() string {
	switch p {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return ""
	}
}
