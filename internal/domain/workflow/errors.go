package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when the trigger has no transition
	// out of the current state, including any trigger on a terminal state.
	ErrInvalidTransition = errors.New("invalid approval state transition")

	// ErrInvalidState is returned when a request carries a status that is
	// not part of the approval lifecycle.
	ErrInvalidState = errors.New("invalid approval state")

	// ErrGuardFailed is returned when a transition exists but its guard
	// rejected the request's current condition.
	ErrGuardFailed = errors.New("transition guard failed")
)
