package network

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/wisson-robotics/go-perseus/pkg/command"
	"github.com/wisson-robotics/go-perseus/pkg/state"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
	}{
		{"hello", TypeHello, HelloData{ClientID: "abc", SDKVersion: sdkVersion}},
		{"status", TypeStatus, StatusData{CmdID: 7, Code: 4}},
		{"nil data", TypeStop, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if err != nil {
				t.Fatalf("NewMessage() error = %v", err)
			}
			if msg.Type != tt.msgType {
				t.Errorf("type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("timestamp not set")
			}
			if tt.data == nil && msg.Data != nil {
				t.Error("expected nil data")
			}
		})
	}
}

func TestEncodeStep_Motion(t *testing.T) {
	joints := [state.JointCount]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}
	motion, err := command.NewMotion(joints, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	msg, err := encodeStep(motion, 42)
	if err != nil {
		t.Fatalf("encodeStep() error = %v", err)
	}
	if msg.Type != TypeCommand {
		t.Fatalf("type = %v, want %v", msg.Type, TypeCommand)
	}

	var data CommandData
	if err := msg.ParseData(&data); err != nil {
		t.Fatal(err)
	}
	if data.CmdID != 42 {
		t.Errorf("cmd_id = %d, want 42", data.CmdID)
	}
	if data.Kind != KindMotion {
		t.Errorf("kind = %q, want %q", data.Kind, KindMotion)
	}
	if data.JointPositions == nil || *data.JointPositions != joints {
		t.Errorf("joint_positions = %v, want %v", data.JointPositions, joints)
	}
	if data.TimeoutMS != 5000 {
		t.Errorf("timeout_ms = %d, want 5000", data.TimeoutMS)
	}
	if data.Elbow != nil {
		t.Error("elbow should be omitted when HasElbow is false")
	}
	if data.Torques != nil || data.Action != "" {
		t.Error("non-motion fields must stay empty")
	}
}

func TestEncodeStep_Torque(t *testing.T) {
	torques := [state.JointCount]float64{1, 2, 3}
	torque, err := command.NewTorque(torques, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	msg, err := encodeStep(torque, 9)
	if err != nil {
		t.Fatal(err)
	}

	var data CommandData
	if err := msg.ParseData(&data); err != nil {
		t.Fatal(err)
	}
	if data.Kind != KindTorque {
		t.Errorf("kind = %q, want %q", data.Kind, KindTorque)
	}
	if data.Torques == nil || *data.Torques != torques {
		t.Errorf("torques = %v, want %v", data.Torques, torques)
	}
	if data.JointPositions != nil {
		t.Error("joint_positions must stay empty for torque steps")
	}
}

func TestEncodeStep_EndEffector(t *testing.T) {
	gripper, err := command.NewEndEffector(command.ActionForceClose, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	msg, err := encodeStep(gripper, 3)
	if err != nil {
		t.Fatal(err)
	}

	var data CommandData
	if err := msg.ParseData(&data); err != nil {
		t.Fatal(err)
	}
	if data.Kind != KindEndEffector {
		t.Errorf("kind = %q, want %q", data.Kind, KindEndEffector)
	}
	if data.Action != "ForceClose" {
		t.Errorf("action = %q, want ForceClose", data.Action)
	}
}

func TestStatusData_Roundtrip(t *testing.T) {
	msg, err := NewMessage(TypeStatus, StatusData{CmdID: 11, Code: 9, Reason: 8})
	if err != nil {
		t.Fatal(err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var decoded Message
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatal(err)
	}
	var status StatusData
	if err := decoded.ParseData(&status); err != nil {
		t.Fatal(err)
	}
	if status.CmdID != 11 || status.Code != 9 || status.Reason != 8 {
		t.Errorf("roundtrip mismatch: %+v", status)
	}
}
