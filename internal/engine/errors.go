package engine

import "errors"

var (
	// ErrInvalidAction is returned when an action is submitted without a run
	// callback.
	ErrInvalidAction = errors.New("action has no run callback")

	// ErrEngineStopped is returned when work is submitted after Shutdown.
	ErrEngineStopped = errors.New("engine is stopped")

	// ErrSelfWaitDeadlock is returned when WaitForAll is called from inside a
	// running action.
	ErrSelfWaitDeadlock = errors.New("wait for all actions called from a worker")

	// ErrCallbackFailure wraps errors returned, or panics raised, by action
	// callbacks.
	ErrCallbackFailure = errors.New("action callback failed")
)
