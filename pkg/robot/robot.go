// Package robot provides the public handle to a Perseus robot: a
// thread-safe facade over the command controllers and the transport.
package robot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wisson-robotics/go-perseus/internal/config"
	"github.com/wisson-robotics/go-perseus/internal/log"
	"github.com/wisson-robotics/go-perseus/pkg/command"
	"github.com/wisson-robotics/go-perseus/pkg/control"
	"github.com/wisson-robotics/go-perseus/pkg/network"
	"github.com/wisson-robotics/go-perseus/pkg/state"
)

// Transport is the connection a Robot talks to the controller through.
// It is shared across repeated sequences, never owned by one of them.
type Transport interface {
	Send(step command.Step, seqID uint32) error
	SendStop() error
	SetStatusHandler(network.StatusHandler)
	SetStateHandler(network.StateHandler)
	ServerVersion() uint32
	Close() error
}

var _ Transport = (*network.Client)(nil)

// Robot maintains a connection to the Perseus robot, provides the
// current robot state and allows commanding the arm. The members of
// this type are threadsafe: a single mutex serializes distinct
// Control/ReadOnce invocations against each other, while state reads
// and status polling never block behind a running command.
//
// Each control mode gets its own controller, created on first use and
// bound to the shared transport. Command IDs are process-wide, so the
// status fan-out below is unambiguous.
type Robot struct {
	transport Transport

	controlMu   sync.Mutex
	controllers map[control.Mode]*control.Controller

	stateMu   sync.RWMutex
	lastState state.RobotState
	updateCh  chan struct{}
}

// Connect establishes a connection using the given configuration and
// waits for the first robot state update, which confirms the controller
// is alive.
func Connect(ctx context.Context, cfg *config.Config) (*Robot, error) {
	client, err := network.Dial(ctx, cfg.ControllerURL())
	if err != nil {
		return nil, err
	}

	r := newRobot(client)

	select {
	case <-r.nextUpdate():
	case <-time.After(cfg.Controller.ConnectTimeout):
		client.Close()
		return nil, fmt.Errorf("%w: timeout waiting for first robot state", network.ErrNetwork)
	case <-ctx.Done():
		client.Close()
		return nil, ctx.Err()
	}

	log.Info("robot: connected", "server_version", client.ServerVersion())
	return r, nil
}

// newRobot wires a transport into a fresh handle. Split out from
// Connect so tests can inject a fake transport.
func newRobot(t Transport) *Robot {
	r := &Robot{
		transport:   t,
		controllers: make(map[control.Mode]*control.Controller),
		updateCh:    make(chan struct{}),
	}
	t.SetStatusHandler(r.handleStatus)
	t.SetStateHandler(r.handleState)
	return r
}

// Close closes the connection to the robot.
func (r *Robot) Close() error {
	return r.transport.Close()
}

// Control dispatches a command sequence in the given mode. It is
// fire-and-forget: it returns once the first step has been handed to
// the transport. Completion is observed via SetWaitingCallback,
// ControlAndWait, or by polling the sequence status / IsRunning.
func (r *Robot) Control(mode control.Mode, seq *command.Sequence) error {
	r.controlMu.Lock()
	defer r.controlMu.Unlock()
	return r.controllerFor(mode).ExecuteMotion(mode, seq)
}

// ControlAndWait dispatches a sequence and blocks until it reaches a
// terminal status or ctx is done. It returns nil on success and an
// error describing the terminal status otherwise. It replaces the
// waiting callback of the mode's controller.
func (r *Robot) ControlAndWait(ctx context.Context, mode control.Mode, seq *command.Sequence) error {
	done := make(chan time.Duration, 1)

	r.controlMu.Lock()
	ctrl := r.controllerFor(mode)
	ctrl.SetWaitingCallback(func(elapsed time.Duration) {
		select {
		case done <- elapsed:
		default:
		}
	})
	err := ctrl.ExecuteMotion(mode, seq)
	r.controlMu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-done:
		if st := seq.Status(); st != command.StatusSuccess {
			return fmt.Errorf("robot: command %d finished with status %s", seq.ID(), st)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetWaitingCallback registers the completion notifier on the given
// mode's controller.
func (r *Robot) SetWaitingCallback(mode control.Mode, cb func(elapsed time.Duration)) {
	r.controlMu.Lock()
	defer r.controlMu.Unlock()
	r.controllerFor(mode).SetWaitingCallback(cb)
}

// ReadOnce waits for the next robot state update and returns it. It
// cannot be executed while a command sequence is running.
func (r *Robot) ReadOnce(ctx context.Context) (*state.RobotState, error) {
	r.controlMu.Lock()
	defer r.controlMu.Unlock()

	if r.anyRunningLocked() {
		return nil, fmt.Errorf("%w: a command sequence is running", control.ErrInvalidOperation)
	}

	ch := r.nextUpdate()
	select {
	case <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("robot: waiting for state update: %w", ctx.Err())
	}

	snapshot := r.State()
	return &snapshot, nil
}

// State returns the last cached robot state snapshot without waiting.
func (r *Robot) State() state.RobotState {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.lastState
}

// Stop asks the controller to stop the running motion. The in-flight
// sequence terminates through a user-stop status update rather than
// synchronously.
func (r *Robot) Stop() error {
	return r.transport.SendStop()
}

// IsRunning reports whether any command sequence is in flight.
func (r *Robot) IsRunning() bool {
	r.controlMu.Lock()
	defer r.controlMu.Unlock()
	return r.anyRunningLocked()
}

// ServerVersion returns the software version reported by the connected
// controller.
func (r *Robot) ServerVersion() uint32 {
	return r.transport.ServerVersion()
}

// controllerFor returns the controller bound to mode, creating it on
// first use. Callers hold controlMu.
func (r *Robot) controllerFor(mode control.Mode) *control.Controller {
	if ctrl, ok := r.controllers[mode]; ok {
		return ctrl
	}
	ctrl := control.New(mode)
	ctrl.BindNetwork(r.transport)
	r.controllers[mode] = ctrl
	return ctrl
}

func (r *Robot) anyRunningLocked() bool {
	for _, ctrl := range r.controllers {
		if ctrl.IsControllerRunning() {
			return true
		}
	}
	return false
}

// handleStatus fans a status update out to the controllers. Command IDs
// are process-wide unique, so every controller but the owner drops the
// update as stale.
func (r *Robot) handleStatus(cmdID uint32, code uint32, reason command.RefusedReason) {
	r.controlMu.Lock()
	ctrls := make([]*control.Controller, 0, len(r.controllers))
	for _, ctrl := range r.controllers {
		ctrls = append(ctrls, ctrl)
	}
	r.controlMu.Unlock()

	for _, ctrl := range ctrls {
		ctrl.HandleStatus(cmdID, code, reason)
	}
}

// handleState caches the snapshot and wakes any waiter blocked on the
// next update.
func (r *Robot) handleState(snapshot state.RobotState) {
	r.stateMu.Lock()
	r.lastState = snapshot
	close(r.updateCh)
	r.updateCh = make(chan struct{})
	r.stateMu.Unlock()
}

// nextUpdate returns a channel closed on the next state update.
func (r *Robot) nextUpdate() <-chan struct{} {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.updateCh
}
