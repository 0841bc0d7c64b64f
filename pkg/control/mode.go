package control

import "fmt"

// ControlSpace identifies the space a controller commands in.
type ControlSpace int

const (
	SpaceJoint ControlSpace = iota
	SpaceTask
)

// String returns the space name.
func (s ControlSpace) String() string {
	switch s {
	case SpaceJoint:
		return "Joint"
	case SpaceTask:
		return "Task"
	default:
		return fmt.Sprintf("ControlSpace(%d)", int(s))
	}
}

// ControlType identifies the kind of command stream a controller accepts.
type ControlType int

const (
	TypePosition ControlType = iota
	TypeCommand
)

// String returns the type name.
func (t ControlType) String() string {
	switch t {
	case TypePosition:
		return "Position"
	case TypeCommand:
		return "Command"
	default:
		return fmt.Sprintf("ControlType(%d)", int(t))
	}
}

// Mode is the (space, type) pair a controller is bound to for its whole
// lifetime. Equality is exact: a mode mismatch at dispatch is a hard
// rejection, never an implicit remap.
type Mode struct {
	Space ControlSpace
	Type  ControlType
}

// JointPosition is the mode for joint-space position sequences.
func JointPosition() Mode { return Mode{Space: SpaceJoint, Type: TypePosition} }

// TaskCommand is the mode for task-space command sequences, such as
// end-effector actions.
func TaskCommand() Mode { return Mode{Space: SpaceTask, Type: TypeCommand} }

// String returns "Space/Type".
func (m Mode) String() string {
	return m.Space.String() + "/" + m.Type.String()
}
