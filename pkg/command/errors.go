package command

import "errors"

// Sentinel errors for contract violations. These fail fast and
// synchronously; failures during an in-flight sequence are surfaced as
// terminal statuses instead (see ResponseStatus).
var (
	// ErrConstruction is returned when a command or sequence cannot be
	// built from the given inputs (empty, too many steps, bad timeout).
	ErrConstruction = errors.New("command: invalid construction")

	// ErrIndexOutOfRange is returned when the sequence cursor is read
	// past the end. Unreachable while the controller invariants hold.
	ErrIndexOutOfRange = errors.New("command: cursor out of range")
)
