package errors

import "errors"

// Sentinel error kinds for the terminology core. Callers classify with
// errors.Is after any amount of %w wrapping.
var (
	// ErrNotFound signals a missing branch, component or member.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a concurrent writer or a rebase conflict.
	ErrConflict = errors.New("conflict")
	// ErrLocked signals an open commit already holds the branch lock.
	ErrLocked = errors.New("branch locked")
	// ErrInvalidArgument signals unrecognised input values.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupported signals an ECL construct outside the supported subset.
	ErrUnsupported = errors.New("unsupported")
	// ErrCycleDetected signals an ISA cycle found during index maintenance.
	ErrCycleDetected = errors.New("cycle detected")
	// ErrIntegrity signals a reference to a component missing from the branch view.
	ErrIntegrity = errors.New("integrity violation")
	// ErrInternal signals an invariant broken inside the service itself.
	ErrInternal = errors.New("internal error")
)
