package signal

import "time"

// Forever makes Wait block until the signal is set.
const Forever time.Duration = -1

// Signal is a manual-reset event.
type Signal interface {
	// Set marks the signal and wakes every waiter.
	Set()

	// Reset clears the signal. Waiters started after Reset block until the
	// next Set.
	Reset()

	// IsSet reports whether the signal is currently set.
	IsSet() bool

	// Wait blocks until the signal is set or timeout elapses and reports
	// whether it was set. A zero timeout polls; Forever never times out.
	Wait(timeout time.Duration) bool
}

// Factory creates a fresh, cleared Signal.
type Factory func() Signal
