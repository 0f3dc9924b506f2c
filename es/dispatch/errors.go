package dispatch

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	// ErrEngineStopped is returned by Submit once the engine has completed,
	// faulted or been cancelled. Producers should stop producing.
	ErrEngineStopped = errors.ConstError("dispatch engine stopped")

	// ErrFaulted is the fault reported when Fault is called without a cause.
	ErrFaulted = errors.ConstError("dispatch engine faulted")

	// ErrInvariantViolation is raised as a panic when the registry finds
	// itself in a state that means per-key ordering is already broken.
	ErrInvariantViolation = errors.ConstError("dispatch invariant violation")
)

// HandlerError reports a failure returned (or a panic raised) by the handler
// for an item of the given partition.
type HandlerError struct {
	Key string
	Err error
}

// Error implements error.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handling item of partition %q: %v", e.Key, e.Err)
}

// Unwrap returns the handler's error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
