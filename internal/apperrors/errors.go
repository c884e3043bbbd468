package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a session, slot or patient record does not exist
var ErrNotFound = errors.New("record not found")

// ErrNoBedAvailable is returned when every bed of a slot is held on the date
var ErrNoBedAvailable = errors.New("no bed available")

// InputError reports a request the caller must fix: an unparseable cycle,
// a bed outside the slot, an inverted date range.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Input builds an InputError
func Input(field, format string, args ...interface{}) error {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports a bed already held by another session
type ConflictError struct {
	SessionID uint
	Reason    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("bed conflict with session %d: %s", e.SessionID, e.Reason)
}

// TransitionError reports a lifecycle event that is not valid from the
// session's current state. The session is left untouched.
type TransitionError struct {
	SessionID uint
	From      string
	Event     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session %d: cannot %s from state %s", e.SessionID, e.Event, e.From)
}

// SideEffectFailure wraps a bed-release or equipment-advance error that
// happened after the discharge was committed.
type SideEffectFailure struct {
	SessionID uint
	Effect    string
	Err       error
}

func (e *SideEffectFailure) Error() string {
	return fmt.Sprintf("session %d: %s failed: %v", e.SessionID, e.Effect, e.Err)
}

func (e *SideEffectFailure) Unwrap() error {
	return e.Err
}

// IsInput reports whether err is an InputError
func IsInput(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// IsTransition reports whether err is a TransitionError
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// AsConflict returns the ConflictError in err's chain, if any
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
