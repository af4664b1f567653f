package workflow

import "context"

// StateMachine validates and applies approval lifecycle transitions for a
// single request. Implementations are built per request via Builder, seeded
// with the request's persisted status.
type StateMachine interface {
	// State returns the current lifecycle state.
	State() State

	// CanFire reports whether the trigger is permitted from the current
	// state, including its guard.
	CanFire(trigger Trigger) bool

	// Fire applies the trigger, moving to the target state. It returns
	// ErrInvalidTransition or ErrGuardFailed without changing state when
	// the trigger is not permitted.
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers lists the triggers currently allowed to fire.
	PermittedTriggers() []Trigger
}
