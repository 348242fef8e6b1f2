// Package shared contains common domain types, errors and events
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"slices"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR KINDS
// ══════════════════════════════════════════════════════════════════════════════

// Kinds are matched with errors.Is and decide the HTTP status of a failure.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation      = errors.New("validation failed")
	ErrInvalidID       = errors.New("invalid identifier")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("empty value")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrExternalService    = errors.New("external service failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("timed out")
)

// Kind groups, one per Is* helper.
var (
	validationKinds = []error{ErrValidation, ErrInvalidID, ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange, ErrInvalidFormat}
	stateKinds      = []error{ErrStateTransition, ErrInvalidState}
	externalKinds   = []error{ErrExternalService, ErrServiceUnavailable, ErrTimeout}
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERROR
// ══════════════════════════════════════════════════════════════════════════════

// DomainError is a failure of one domain operation. Both Kind and Cause are
// visible to errors.Is and errors.As.
type DomainError struct {
	Domain string // "tournament", "participant", "leaderboard"
	Op     string // "Start", "Join", "Validate"
	Kind   error
	Msg    string
	Cause  error
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Domain)
	b.WriteByte('.')
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *DomainError) Unwrap() []error {
	return slices.DeleteFunc([]error{e.Kind, e.Cause}, func(err error) bool { return err == nil })
}

// NewDomainError creates an error without an underlying cause.
func NewDomainError(domain, op string, kind error, msg string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Msg: msg}
}

// WrapError attaches domain context to cause.
func WrapError(domain, op string, kind error, msg string, cause error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Msg: msg, Cause: cause}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tournament
// ─────────────────────────────────────────────────────────────────────────────

var (
	ErrTournamentNotFound  = NewDomainError("tournament", "Find", ErrNotFound, "tournament not found")
	ErrTournamentExists    = NewDomainError("tournament", "Register", ErrAlreadyExists, "tournament already registered")
	ErrTournamentNotActive = NewDomainError("tournament", "Stop", ErrStateTransition, "tournament is not active")
	ErrInvalidIdentifier   = NewDomainError("tournament", "Validate", ErrInvalidID, "invalid tournament identifier")
	ErrInvalidWindow       = NewDomainError("tournament", "Validate", ErrInvalidInput, "invalid time window")
	ErrInvalidGoal         = NewDomainError("tournament", "Validate", ErrValueOutOfRange, "challenge goal must be positive")
	ErrInvalidPosition     = NewDomainError("tournament", "Validate", ErrValueOutOfRange, "reward position must be positive")
)

// ─────────────────────────────────────────────────────────────────────────────
// Participant
// ─────────────────────────────────────────────────────────────────────────────

var (
	ErrParticipantNotFound = NewDomainError("participant", "Find", ErrNotFound, "participant not found")
	ErrInvalidParticipant  = NewDomainError("participant", "Validate", ErrInvalidID, "invalid participant ID")
	ErrJoinClosed          = NewDomainError("participant", "Join", ErrInvalidState, "tournament does not accept participants")
	ErrPermissionDenied    = NewDomainError("participant", "Join", ErrForbidden, "missing participation permission")
	ErrScoreFiltered       = NewDomainError("participant", "Score", ErrInvalidInput, "score source is excluded")
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

func isAny(err error, kinds []error) bool {
	return slices.ContainsFunc(kinds, func(k error) bool { return errors.Is(err, k) })
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsStateTransition reports a lifecycle precondition violation.
func IsStateTransition(err error) bool { return isAny(err, stateKinds) }

func IsValidation(err error) bool { return isAny(err, validationKinds) }

// IsExternalService reports a failure of a collaborator outside the process.
func IsExternalService(err error) bool { return isAny(err, externalKinds) }
