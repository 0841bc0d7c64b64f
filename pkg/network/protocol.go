// Package network implements the WebSocket transport between the SDK
// and the Perseus robot controller, and the JSON messages that travel
// over it. The byte-level framing below the JSON layer belongs to the
// controller firmware and is out of scope here.
package network

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wisson-robotics/go-perseus/pkg/command"
	"github.com/wisson-robotics/go-perseus/pkg/state"
)

// MessageType identifies the type of a transport message.
type MessageType string

const (
	// SDK → controller
	TypeHello   MessageType = "hello"   // session handshake
	TypeCommand MessageType = "command" // one command step
	TypeStop    MessageType = "stop"    // user stop request

	// Controller → SDK
	TypeStatus MessageType = "status" // command execution status
	TypeState  MessageType = "state"  // robot state snapshot
)

// Message is the base wrapper for all transport messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("network: marshal %s data: %w", msgType, err)
		}
	}
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct.
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("network: parse %s data: %w", m.Type, err)
	}
	return nil
}

// HelloData opens a session. The controller answers with its own hello
// carrying the server version.
type HelloData struct {
	ClientID      string `json:"client_id"`
	SDKVersion    string `json:"sdk_version,omitempty"`
	ServerVersion uint32 `json:"server_version,omitempty"`
}

// Step kinds on the wire.
const (
	KindMotion      = "motion"
	KindTorque      = "torque"
	KindEndEffector = "end_effector"
)

// CommandData carries one command step. Exactly one kind-specific field
// group is populated, selected by Kind.
type CommandData struct {
	CmdID     uint32 `json:"cmd_id"`
	Kind      string `json:"kind"`
	TimeoutMS int64  `json:"timeout_ms"`

	// Kind == "motion"
	JointPositions  *[state.JointCount]float64 `json:"joint_positions,omitempty"`
	JointVelocities *[state.JointCount]float64 `json:"joint_velocities,omitempty"`
	EETransform     *[16]float64               `json:"ee_transform,omitempty"`
	EEVelocity      *[6]float64                `json:"ee_velocity,omitempty"`
	Elbow           *[2]float64                `json:"elbow,omitempty"`

	// Kind == "torque"
	Torques *[state.JointCount]float64 `json:"torques,omitempty"`

	// Kind == "end_effector"
	Action string `json:"action,omitempty"`
}

// StatusData reports the execution status of a dispatched command. Code
// is an opaque unsigned 32-bit value; decoding it into a ResponseStatus
// is the command package's job, not the transport's.
type StatusData struct {
	CmdID  uint32 `json:"cmd_id"`
	Code   uint32 `json:"code"`
	Reason uint32 `json:"reason,omitempty"`
}

// encodeStep converts one command step into a wire message. The switch
// is exhaustive over the closed step set.
func encodeStep(step command.Step, seqID uint32) (*Message, error) {
	data := CommandData{
		CmdID:     seqID,
		TimeoutMS: step.Timeout().Milliseconds(),
	}

	switch s := step.(type) {
	case command.MotionCommand:
		data.Kind = KindMotion
		joints := s.JointPositions
		data.JointPositions = &joints
		velocities := s.JointVelocities
		data.JointVelocities = &velocities
		transform := s.EETransform
		data.EETransform = &transform
		eeVelocity := s.EEVelocity
		data.EEVelocity = &eeVelocity
		if s.HasElbow {
			elbow := s.Elbow
			data.Elbow = &elbow
		}
	case command.TorqueCommand:
		data.Kind = KindTorque
		torques := s.DesiredTorque
		data.Torques = &torques
	case command.EndEffectorCommand:
		data.Kind = KindEndEffector
		data.Action = s.Action.String()
	default:
		return nil, fmt.Errorf("%w: unhandled step type %T", ErrNetwork, step)
	}

	return NewMessage(TypeCommand, data)
}
