package core

import "errors"

var (
	// ErrUnknownEntity marks an operation referencing an entity id that is
	// not in the graph. Callers treat this as a programming error, never a
	// condition to retry.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrBusy signals a step was requested while another holds the step
	// lock. Callers may retry; the request is never queued.
	ErrBusy = errors.New("simulation busy")

	// ErrInvalidResponse marks a generation response that failed strict
	// validation. One stricter re-prompt is attempted before the step is
	// abandoned without mutations.
	ErrInvalidResponse = errors.New("invalid generation response")

	// ErrGenerationTimeout marks a generation call that exceeded its bound.
	ErrGenerationTimeout = errors.New("generation timed out")

	ErrLoopRunning    = errors.New("loop already running")
	ErrLoopNotRunning = errors.New("loop not running")
)
