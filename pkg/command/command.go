// Package command defines the command variants accepted by the Perseus
// controller and the bounded sequences they are submitted in.
//
// The three variants (motion, torque, end-effector) form a closed sum:
// Step is a sealed interface, and serialization or projection sites
// switch exhaustively over the concrete types. Commands are built
// through validated factories and are immutable afterwards.
package command

import (
	"fmt"
	"time"

	"github.com/wisson-robotics/go-perseus/pkg/state"
)

// Step is one command variant in a sequence. Exactly three types
// implement it: MotionCommand, TorqueCommand and EndEffectorCommand.
type Step interface {
	// Timeout is this step's own execution budget.
	Timeout() time.Duration

	sealed()
}

// MotionCommand moves the arm to joint or end-effector targets.
type MotionCommand struct {
	JointPositions  [state.JointCount]float64 // target joint positions [rad]
	JointVelocities [state.JointCount]float64 // target joint velocities [rad/s]
	EETransform     [16]float64               // end-effector 4x4 transform, row-major
	EEVelocity      [6]float64                // end-effector velocity (linear + angular)
	Elbow           [2]float64                // optional elbow configuration
	HasElbow        bool

	timeout time.Duration
}

// NewMotion builds a joint-position motion command.
func NewMotion(jointPositions [state.JointCount]float64, timeout time.Duration) (MotionCommand, error) {
	if timeout <= 0 {
		return MotionCommand{}, fmt.Errorf("%w: motion timeout must be positive, got %v", ErrConstruction, timeout)
	}
	return MotionCommand{JointPositions: jointPositions, timeout: timeout}, nil
}

func (c MotionCommand) Timeout() time.Duration { return c.timeout }
func (c MotionCommand) sealed()                {}

// TorqueCommand applies desired joint torques.
type TorqueCommand struct {
	DesiredTorque [state.JointCount]float64 // desired joint torques [Nm]

	timeout time.Duration
}

// NewTorque builds a torque command.
func NewTorque(desiredTorque [state.JointCount]float64, timeout time.Duration) (TorqueCommand, error) {
	if timeout <= 0 {
		return TorqueCommand{}, fmt.Errorf("%w: torque timeout must be positive, got %v", ErrConstruction, timeout)
	}
	return TorqueCommand{DesiredTorque: desiredTorque, timeout: timeout}, nil
}

func (c TorqueCommand) Timeout() time.Duration { return c.timeout }
func (c TorqueCommand) sealed()                {}

// EndEffectorAction is a discrete gripper action.
type EndEffectorAction uint32

const (
	ActionIdle EndEffectorAction = iota
	ActionOpen
	ActionClose
	ActionForceClose
)

// String returns the wire name of the action.
func (a EndEffectorAction) String() string {
	switch a {
	case ActionIdle:
		return "Idle"
	case ActionOpen:
		return "Open"
	case ActionClose:
		return "Close"
	case ActionForceClose:
		return "ForceClose"
	default:
		return "Unknown"
	}
}

// ParseEndEffectorAction converts a wire name back to an action.
// Unrecognized names fall back to ActionIdle.
func ParseEndEffectorAction(s string) EndEffectorAction {
	switch s {
	case "Open":
		return ActionOpen
	case "Close":
		return ActionClose
	case "ForceClose":
		return ActionForceClose
	default:
		return ActionIdle
	}
}

// EndEffectorCommand drives a discrete end-effector action.
type EndEffectorCommand struct {
	Action EndEffectorAction

	timeout time.Duration
}

// NewEndEffector builds an end-effector command.
func NewEndEffector(action EndEffectorAction, timeout time.Duration) (EndEffectorCommand, error) {
	if timeout <= 0 {
		return EndEffectorCommand{}, fmt.Errorf("%w: end-effector timeout must be positive, got %v", ErrConstruction, timeout)
	}
	return EndEffectorCommand{Action: action, timeout: timeout}, nil
}

func (c EndEffectorCommand) Timeout() time.Duration { return c.timeout }
func (c EndEffectorCommand) sealed()                {}
