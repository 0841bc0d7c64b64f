package command

import "fmt"

// ResponseStatus is the execution status of a command sequence as
// reported by the controller. The set is closed: raw codes outside the
// decodable range collapse to StatusUnknown.
type ResponseStatus uint32

const (
	StatusIdle       ResponseStatus = iota // no command in progress
	StatusSending                          // command is being sent
	StatusWaiting                          // transmitted, awaiting a response
	StatusSubSuccess                       // intermediate step done, proceed
	StatusSuccess                          // whole action completed
	StatusFail                             // command failed
	StatusUserStop                         // stopped by the user
	StatusTimeout                          // execution timed out
	StatusAbort                            // aborted by the system
	StatusRefused                          // refused by the system
	StatusUnknown                          // unrecognized code
)

// DecodeStatus converts a raw controller status code to a ResponseStatus.
// Only values in the closed range [StatusWaiting..StatusRefused] are
// decodable; everything else maps to StatusUnknown and must be ignored
// by the state machine.
func DecodeStatus(raw uint32) ResponseStatus {
	if raw >= uint32(StatusWaiting) && raw <= uint32(StatusRefused) {
		return ResponseStatus(raw)
	}
	return StatusUnknown
}

// Terminal reports whether the status ends execution of the current
// sequence. This is the single terminality predicate: all code that
// interprets statuses, inside the controller or in external pollers,
// must go through it.
func (s ResponseStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusUserStop, StatusTimeout, StatusAbort, StatusFail, StatusRefused:
		return true
	default:
		return false
	}
}

// String returns a human-readable rendering of the status.
func (s ResponseStatus) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusSending:
		return "Sending"
	case StatusWaiting:
		return "Waiting"
	case StatusSubSuccess:
		return "Step Successful"
	case StatusSuccess:
		return "Action Completed"
	case StatusFail:
		return "Fail"
	case StatusUserStop:
		return "User-Stop"
	case StatusTimeout:
		return "Timeout"
	case StatusAbort:
		return "Abort"
	case StatusRefused:
		return "Command Refused"
	default:
		return "Unknown"
	}
}

// RefusedReason is the diagnostic cause attached to a refused status.
// It is opaque pass-through data from the controller; the SDK only
// renders it for logs.
type RefusedReason uint32

const (
	RefusedNone RefusedReason = iota
	RefusedInvalidRequest
	RefusedUnauthorized
	RefusedNotFound
	RefusedServerError
	RefusedTimeout
	RefusedWrongRequestSource
	RefusedSelfCheckInProgress
	RefusedRobotBusy
	RefusedRobotDismatch
)

// String returns a human-readable rendering of the refusal reason.
func (r RefusedReason) String() string {
	switch r {
	case RefusedNone:
		return "None"
	case RefusedInvalidRequest:
		return "InvalidRequest"
	case RefusedUnauthorized:
		return "Unauthorized"
	case RefusedNotFound:
		return "NotFound"
	case RefusedServerError:
		return "ServerError"
	case RefusedTimeout:
		return "Timeout"
	case RefusedWrongRequestSource:
		return "WrongRequestSource"
	case RefusedSelfCheckInProgress:
		return "SelfCheckInProgress"
	case RefusedRobotBusy:
		return "RobotBusy"
	case RefusedRobotDismatch:
		return "RobotDismatch"
	default:
		return fmt.Sprintf("RefusedReason(%d)", uint32(r))
	}
}
