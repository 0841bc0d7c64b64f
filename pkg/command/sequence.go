package command

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wisson-robotics/go-perseus/pkg/state"
)

// MaxSteps is the maximum number of steps in a sequence.
const MaxSteps = 20

// DefaultTotalTimeout is the aggregate budget used when none is given.
const DefaultTotalTimeout = 30 * time.Second

// Sequence is an ordered, bounded batch of command steps submitted to
// the controller as one unit of work.
//
// A sequence is exclusively owned by one controller for its execution
// lifetime: the controller assigns the ID, moves the cursor and sets
// the status. Callers keep their handle for inspection and must not
// resubmit the sequence until a terminal status is observed.
//
// Cursor, Finished and Status are independently atomically readable, so
// a polling goroutine never needs a lock.
type Sequence struct {
	steps        []Step
	totalTimeout time.Duration

	id       atomic.Uint32
	cursor   atomic.Uint32
	finished atomic.Bool
	status   atomic.Uint32
}

// NewSequence builds a sequence from 1..MaxSteps steps. A zero
// totalTimeout defaults to DefaultTotalTimeout.
func NewSequence(steps []Step, totalTimeout time.Duration) (*Sequence, error) {
	n := len(steps)
	if n == 0 || n > MaxSteps {
		return nil, fmt.Errorf("%w: sequence must have 1..%d steps, got %d", ErrConstruction, MaxSteps, n)
	}
	if totalTimeout < 0 {
		return nil, fmt.Errorf("%w: total timeout must not be negative, got %v", ErrConstruction, totalTimeout)
	}
	if totalTimeout == 0 {
		totalTimeout = DefaultTotalTimeout
	}

	s := &Sequence{
		steps:        append([]Step(nil), steps...),
		totalTimeout: totalTimeout,
	}
	s.status.Store(uint32(StatusIdle))
	return s, nil
}

// NewSingle wraps one step in a sequence. The aggregate timeout is the
// step's own timeout.
func NewSingle(step Step) (*Sequence, error) {
	if step == nil {
		return nil, fmt.Errorf("%w: nil step", ErrConstruction)
	}
	return NewSequence([]Step{step}, step.Timeout())
}

// Len returns the number of steps.
func (s *Sequence) Len() int { return len(s.steps) }

// TotalTimeout is the aggregate time budget for the whole sequence,
// independent of and not reset by individual step timeouts.
func (s *Sequence) TotalTimeout() time.Duration { return s.totalTimeout }

// ID returns the process-wide command ID. Zero until the sequence has
// been dispatched.
func (s *Sequence) ID() uint32 { return s.id.Load() }

// SetID assigns the dispatch ID. Called by the controller exactly once
// when execution starts.
func (s *Sequence) SetID(id uint32) { s.id.Store(id) }

// Cursor returns the current step index.
func (s *Sequence) Cursor() int { return int(s.cursor.Load()) }

// HasNext reports whether an unexecuted step remains.
func (s *Sequence) HasNext() bool { return int(s.cursor.Load()) < len(s.steps) }

// Current returns the step at the cursor. ErrIndexOutOfRange is only
// reachable through a state-machine defect and is guarded defensively.
func (s *Sequence) Current() (Step, error) {
	i := int(s.cursor.Load())
	if i >= len(s.steps) {
		return nil, fmt.Errorf("%w: cursor %d, length %d", ErrIndexOutOfRange, i, len(s.steps))
	}
	return s.steps[i], nil
}

// Advance moves the cursor one step forward. No-op at the end; the
// cursor never exceeds the sequence length.
func (s *Sequence) Advance() {
	if int(s.cursor.Load()) < len(s.steps) {
		s.cursor.Add(1)
	}
}

// Finished reports whether a terminal status has been reached.
func (s *Sequence) Finished() bool { return s.finished.Load() }

// Status returns the last-known execution status.
func (s *Sequence) Status() ResponseStatus { return ResponseStatus(s.status.Load()) }

// SetStatus records the last-known status. Driven by the owning
// controller.
func (s *Sequence) SetStatus(st ResponseStatus) { s.status.Store(uint32(st)) }

// MarkFinished flips the completion flag. It transitions false to true
// exactly once; later calls report false.
func (s *Sequence) MarkFinished() bool {
	return s.finished.CompareAndSwap(false, true)
}

// JointPositions projects the joint-target arrays of the motion-typed
// steps, in order. Other step kinds are skipped. Consumed by the
// transport for serialization, never by the controller's decision
// logic.
func (s *Sequence) JointPositions() [][state.JointCount]float64 {
	joints := make([][state.JointCount]float64, 0, len(s.steps))
	for _, step := range s.steps {
		if m, ok := step.(MotionCommand); ok {
			joints = append(joints, m.JointPositions)
		}
	}
	return joints
}

// Timeouts projects the per-step timeouts of all steps regardless of
// kind.
func (s *Sequence) Timeouts() []time.Duration {
	timeouts := make([]time.Duration, 0, len(s.steps))
	for _, step := range s.steps {
		timeouts = append(timeouts, step.Timeout())
	}
	return timeouts
}

// EndEffectorActions projects the action labels of the end-effector
// steps, in order.
func (s *Sequence) EndEffectorActions() []string {
	actions := make([]string, 0, len(s.steps))
	for _, step := range s.steps {
		if e, ok := step.(EndEffectorCommand); ok {
			actions = append(actions, e.Action.String())
		}
	}
	return actions
}
