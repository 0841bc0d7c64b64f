// Package state defines the robot state snapshot reported by the
// Perseus controller. The snapshot is a passive record: the SDK caches
// the latest one received from the controller and hands copies to
// callers, it never mutates a snapshot it handed out.
package state

import (
	"encoding/json"
	"fmt"
)

// Dimensions of the Perseus soft arm.
const (
	// JointCount is the number of controllable joints.
	JointCount = 9

	// ChamberCount is the number of pneumatic pressure chambers.
	ChamberCount = 18
)

// RobotMode describes the robot's coarse operating mode.
type RobotMode int

const (
	ModeIdle RobotMode = iota
	ModeCommandMove
	ModeUserStopped
)

// String returns a human-readable mode name.
func (m RobotMode) String() string {
	switch m {
	case ModeIdle:
		return "Idle"
	case ModeCommandMove:
		return "CommandMove"
	case ModeUserStopped:
		return "UserStopped"
	default:
		return fmt.Sprintf("RobotMode(%d)", int(m))
	}
}

// RobotState is a snapshot of the robot as last reported by the controller.
//
// Q and QErr are expressed in radians. Pressures are expressed in hPa.
// OTEE is the measured end-effector pose in the base frame, a 4x4
// homogeneous transform in column-major order.
type RobotState struct {
	Q        [JointCount]float64   `json:"q"`
	QErr     [JointCount]float64   `json:"q_err"`
	Pressure [ChamberCount]int     `json:"pressure"`
	PSource  int                   `json:"p_source"`
	PSink    int                   `json:"p_sink"`
	MTotal   float64               `json:"m_total"`
	OTEE     [16]float64           `json:"O_T_EE"`
	Mode     RobotMode             `json:"robot_mode"`
}

// Clear resets the snapshot to default values. The mode resets to idle.
func (s *RobotState) Clear() {
	*s = RobotState{Mode: ModeIdle}
}

// String renders the snapshot as a JSON object.
func (s RobotState) String() string {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("RobotState<marshal error: %v>", err)
	}
	return string(data)
}
