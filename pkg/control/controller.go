// Package control implements the client-side command execution state
// machine for the Perseus controller.
//
// A Controller accepts one command sequence at a time, drives it step
// by step over the bound network, classifies the status codes reported
// back by the controller firmware, and enforces both per-step and
// aggregate timeouts. Dispatch is fire-and-forget: ExecuteMotion
// returns once the first step has been handed to the transport, and
// completion is observed through the waiting callback or by polling.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/wisson-robotics/go-perseus/internal/log"
	"github.com/wisson-robotics/go-perseus/pkg/command"
)

// ErrInvalidOperation is returned when a call violates the controller's
// contract: dispatching while a sequence is running, a mode mismatch,
// resubmitting an already-executed sequence, or dispatching with no
// network bound.
var ErrInvalidOperation = errors.New("control: invalid operation")

// Network is the transport a controller sends steps through. The
// concrete transport also delivers asynchronous status updates, but it
// does so by calling HandleStatus directly, so the controller only
// needs the send half.
type Network interface {
	Send(step command.Step, seqID uint32) error
}

// Lifecycle states of a controller.
const (
	StateIdle     = "idle"
	StateSending  = "sending"
	StateWaiting  = "waiting"
	StateFinished = "finished"
)

const (
	eventDispatch = "dispatch"
	eventTransmit = "transmit"
	eventAdvance  = "advance"
	eventFinish   = "finish"
	eventReset    = "reset"
)

// EarlySuccessPolicy decides what happens when a whole-sequence success
// code arrives for a non-final step. The firmware is only expected to
// report success on the last step; earlier ones normally report
// sub-success.
type EarlySuccessPolicy int

const (
	// EarlySuccessFinishes ends the whole sequence with StatusSuccess,
	// discarding the remaining steps.
	EarlySuccessFinishes EarlySuccessPolicy = iota

	// EarlySuccessProtocolError treats the code as a firmware protocol
	// violation and ends the sequence with StatusFail.
	EarlySuccessProtocolError
)

// Option configures a Controller.
type Option func(*Controller)

// WithIDGenerator injects a dedicated command-ID generator instead of
// the process-wide one.
func WithIDGenerator(g *IDGenerator) Option {
	return func(c *Controller) { c.ids = g }
}

// WithEarlySuccessPolicy sets the policy for success codes arriving on
// non-final steps.
func WithEarlySuccessPolicy(p EarlySuccessPolicy) Option {
	return func(c *Controller) { c.earlySuccess = p }
}

// Controller drives command sequences against the robot controller.
//
// Three kinds of goroutine touch a controller concurrently: the caller
// dispatching sequences, the transport goroutine delivering status
// updates, and timer goroutines firing timeouts. One internal mutex
// serializes their decisions; the hot flags stay atomic so pollers
// never block.
type Controller struct {
	mode         Mode
	ids          *IDGenerator
	earlySuccess EarlySuccessPolicy

	running atomic.Bool

	mu         sync.Mutex
	lifecycle  *fsm.FSM
	network    Network
	seq        *command.Sequence
	startedAt  time.Time
	stepTimer  *time.Timer
	totalTimer *time.Timer
	waitingCb  func(elapsed time.Duration)
}

// New creates a controller bound to the given mode. The mode is fixed
// for the controller's lifetime.
func New(mode Mode, opts ...Option) *Controller {
	c := &Controller{
		mode: mode,
		ids:  &defaultIDGenerator,
	}
	c.lifecycle = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventDispatch, Src: []string{StateIdle}, Dst: StateSending},
			{Name: eventTransmit, Src: []string{StateSending}, Dst: StateWaiting},
			{Name: eventAdvance, Src: []string{StateWaiting}, Dst: StateSending},
			{Name: eventFinish, Src: []string{StateSending, StateWaiting}, Dst: StateFinished},
			{Name: eventReset, Src: []string{StateFinished}, Dst: StateIdle},
		},
		fsm.Callbacks{},
	)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode returns the mode this controller is bound to.
func (c *Controller) Mode() Mode { return c.mode }

// State returns the current lifecycle state.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lifecycle.Current()
}

// IsControllerRunning reports whether a sequence is in flight. The read
// is lock-free; it may race with a concurrent ExecuteMotion from the
// caller's point of view, but internally only one sequence is ever in
// flight per controller.
func (c *Controller) IsControllerRunning() bool {
	return c.running.Load()
}

// BindNetwork attaches the transport. Returns false for a nil handle
// or while a sequence is running; the prior binding is left unchanged
// in both cases. Rebinding is only permitted while idle.
func (c *Controller) BindNetwork(n Network) bool {
	if n == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return false
	}
	c.network = n
	return true
}

// SetWaitingCallback replaces the completion notifier. It is invoked
// synchronously, exactly once per ExecuteMotion, with the elapsed
// wall-clock time, on whichever goroutine observes the terminal
// condition.
func (c *Controller) SetWaitingCallback(cb func(elapsed time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitingCb = cb
}

// ExecuteMotion dispatches a sequence. It assigns a fresh process-wide
// command ID, sends the first step, arms the aggregate timer and
// returns immediately. ErrInvalidOperation is returned for a running
// controller, a mode mismatch, a resubmitted sequence, or a missing
// network binding.
func (c *Controller) ExecuteMotion(mode Mode, seq *command.Sequence) error {
	if seq == nil {
		return fmt.Errorf("%w: nil sequence", ErrInvalidOperation)
	}
	if mode != c.mode {
		return fmt.Errorf("%w: controller bound to mode %s, got %s", ErrInvalidOperation, c.mode, mode)
	}

	c.mu.Lock()
	if c.running.Load() {
		c.mu.Unlock()
		return fmt.Errorf("%w: a sequence is already running", ErrInvalidOperation)
	}
	if c.network == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: no network bound", ErrInvalidOperation)
	}
	if seq.ID() != 0 || seq.Finished() {
		c.mu.Unlock()
		return fmt.Errorf("%w: sequence was already executed", ErrInvalidOperation)
	}

	seq.SetID(c.ids.Next())
	c.seq = seq
	c.startedAt = time.Now()
	c.running.Store(true)
	c.transition(eventDispatch)
	c.armTotalTimerLocked()

	if err := c.sendCommandLocked(); err != nil {
		notify := c.finishLocked(command.StatusFail)
		c.mu.Unlock()
		notify()
		return err
	}

	log.Info("controller: sequence dispatched",
		"cmd_id", seq.ID(), "steps", seq.Len(), "mode", c.mode.String(),
		"total_timeout", seq.TotalTimeout())
	c.mu.Unlock()
	return nil
}

// HandleStatus is the asynchronous status sink invoked by the transport
// with a raw controller status code. Codes outside the decodable range
// are ignored without a transition. Stale updates (finished or replaced
// sequences) are dropped.
func (c *Controller) HandleStatus(seqID uint32, raw uint32, reason command.RefusedReason) {
	status := command.DecodeStatus(raw)
	if status == command.StatusUnknown {
		log.Debug("controller: ignoring undecodable status code", "cmd_id", seqID, "code", raw)
		return
	}

	c.mu.Lock()
	if c.seq == nil || c.seq.ID() != seqID {
		c.mu.Unlock()
		return
	}

	switch status {
	case command.StatusWaiting:
		// Progress report only.
		c.seq.SetStatus(command.StatusWaiting)
		c.mu.Unlock()

	case command.StatusSubSuccess:
		c.stopStepTimerLocked()
		c.seq.Advance()
		if !c.seq.HasNext() {
			notify := c.finishLocked(command.StatusSuccess)
			c.mu.Unlock()
			notify()
			return
		}
		c.transition(eventAdvance)
		if err := c.sendCommandLocked(); err != nil {
			log.Error("controller: failed to send next step", "cmd_id", seqID, "err", err)
			notify := c.finishLocked(command.StatusFail)
			c.mu.Unlock()
			notify()
			return
		}
		c.mu.Unlock()

	case command.StatusSuccess:
		if c.seq.Cursor() == c.seq.Len()-1 {
			c.seq.Advance()
			notify := c.finishLocked(command.StatusSuccess)
			c.mu.Unlock()
			notify()
			return
		}
		// Success on a non-final step: policy decision, see
		// EarlySuccessPolicy.
		final := command.StatusSuccess
		if c.earlySuccess == EarlySuccessProtocolError {
			log.Warn("controller: success reported on non-final step, treating as protocol error",
				"cmd_id", seqID, "step", c.seq.Cursor(), "steps", c.seq.Len())
			final = command.StatusFail
		}
		notify := c.finishLocked(final)
		c.mu.Unlock()
		notify()

	default:
		// Any other terminal value ends the whole sequence, whichever
		// step it arrived on. Remaining steps are discarded.
		if status == command.StatusRefused {
			log.Warn("controller: command refused", "cmd_id", seqID, "reason", reason.String())
		}
		notify := c.finishLocked(status)
		c.mu.Unlock()
		notify()
	}
}

// sendCommandLocked serializes the current step via the bound network
// and arms the per-step timer on successful handoff. The aggregate
// timer is left untouched. Callers hold c.mu with the lifecycle in
// StateSending.
func (c *Controller) sendCommandLocked() error {
	step, err := c.seq.Current()
	if err != nil {
		return err
	}
	c.seq.SetStatus(command.StatusSending)
	if err := c.network.Send(step, c.seq.ID()); err != nil {
		return fmt.Errorf("control: send step %d of command %d: %w", c.seq.Cursor(), c.seq.ID(), err)
	}
	c.transition(eventTransmit)
	c.seq.SetStatus(command.StatusWaiting)
	c.armStepTimerLocked(step.Timeout())
	log.Debug("controller: step transmitted",
		"cmd_id", c.seq.ID(), "step", c.seq.Cursor(), "timeout", step.Timeout())
	return nil
}

// finishLocked resolves the sequence into its terminal status, releases
// the controller's hold on it and returns the completion notification,
// which the caller must invoke after unlocking.
func (c *Controller) finishLocked(status command.ResponseStatus) func() {
	c.stopStepTimerLocked()
	c.stopTotalTimerLocked()

	seq := c.seq
	seq.SetStatus(status)
	seq.MarkFinished()
	elapsed := time.Since(c.startedAt)

	c.transition(eventFinish)
	c.transition(eventReset)
	c.seq = nil
	c.running.Store(false)

	log.Info("controller: sequence finished",
		"cmd_id", seq.ID(), "status", status.String(), "cursor", seq.Cursor(), "elapsed", elapsed)

	cb := c.waitingCb
	if cb == nil {
		return func() {}
	}
	return func() { cb(elapsed) }
}

// armStepTimerLocked arms the per-step timer with the step's own
// timeout. The fired handler re-checks sequence ID and step index, so a
// timer that lost the race against an advancing cursor is a no-op.
func (c *Controller) armStepTimerLocked(d time.Duration) {
	seqID := c.seq.ID()
	step := c.seq.Cursor()
	c.stepTimer = time.AfterFunc(d, func() { c.onStepTimeout(seqID, step) })
}

func (c *Controller) onStepTimeout(seqID uint32, step int) {
	c.mu.Lock()
	if c.seq == nil || c.seq.ID() != seqID || c.seq.Cursor() != step {
		c.mu.Unlock()
		return
	}
	log.Warn("controller: step timed out", "cmd_id", seqID, "step", step)
	notify := c.finishLocked(command.StatusTimeout)
	c.mu.Unlock()
	notify()
}

// armTotalTimerLocked arms the aggregate timer, measured from the
// sequence's start timestamp and independent of the per-step timer.
func (c *Controller) armTotalTimerLocked() {
	seqID := c.seq.ID()
	c.totalTimer = time.AfterFunc(c.seq.TotalTimeout(), func() { c.onTotalTimeout(seqID) })
}

func (c *Controller) onTotalTimeout(seqID uint32) {
	c.mu.Lock()
	if c.seq == nil || c.seq.ID() != seqID {
		c.mu.Unlock()
		return
	}
	log.Warn("controller: sequence exceeded total timeout",
		"cmd_id", seqID, "step", c.seq.Cursor(), "total_timeout", c.seq.TotalTimeout())
	notify := c.finishLocked(command.StatusTimeout)
	c.mu.Unlock()
	notify()
}

func (c *Controller) stopStepTimerLocked() {
	if c.stepTimer != nil {
		c.stepTimer.Stop()
		c.stepTimer = nil
	}
}

func (c *Controller) stopTotalTimerLocked() {
	if c.totalTimer != nil {
		c.totalTimer.Stop()
		c.totalTimer = nil
	}
}

// transition fires a lifecycle event. A refused transition means a
// state-machine defect; it is logged, never propagated.
func (c *Controller) transition(event string) {
	if err := c.lifecycle.Event(context.Background(), event); err != nil {
		log.Error("controller: lifecycle transition refused",
			"event", event, "state", c.lifecycle.Current(), "err", err)
	}
}
