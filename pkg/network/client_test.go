package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wisson-robotics/go-perseus/pkg/command"
	"github.com/wisson-robotics/go-perseus/pkg/state"
)

// fakeController is a minimal in-process stand-in for the robot
// controller firmware: it answers the hello handshake, records command
// messages and can push status/state messages to the client.
type fakeController struct {
	t *testing.T

	mu       sync.Mutex
	conn     *websocket.Conn
	commands []CommandData
	ready    chan struct{}
}

func newFakeController(t *testing.T) (*fakeController, *httptest.Server) {
	fc := &fakeController{t: t, ready: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		fc.mu.Lock()
		fc.conn = conn
		fc.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case TypeHello:
				fc.push(TypeHello, HelloData{ServerVersion: 3})
				close(fc.ready)
			case TypeCommand:
				var cmd CommandData
				if err := msg.ParseData(&cmd); err != nil {
					t.Errorf("bad command data: %v", err)
					continue
				}
				fc.mu.Lock()
				fc.commands = append(fc.commands, cmd)
				fc.mu.Unlock()
			}
		}
	}))
	return fc, srv
}

func (fc *fakeController) push(msgType MessageType, data interface{}) {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		fc.t.Errorf("push: %v", err)
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		fc.t.Errorf("push: %v", err)
		return
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if err := fc.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		fc.t.Errorf("push: %v", err)
	}
}

func (fc *fakeController) commandCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.commands)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialTest(t *testing.T) (*fakeController, *Client) {
	t.Helper()
	fc, srv := newFakeController(t)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case <-fc.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("handshake did not complete")
	}
	return fc, client
}

func TestDial_Handshake(t *testing.T) {
	_, client := dialTest(t)

	if client.SessionID() == "" {
		t.Error("session ID not set")
	}

	// The server's hello ack carries its version.
	waitFor(t, func() bool { return client.ServerVersion() == 3 })
}

func TestClient_SendDeliversCommand(t *testing.T) {
	fc, client := dialTest(t)

	motion, err := command.NewMotion([state.JointCount]float64{0.5}, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Send(motion, 21); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	waitFor(t, func() bool { return fc.commandCount() == 1 })

	fc.mu.Lock()
	got := fc.commands[0]
	fc.mu.Unlock()
	if got.CmdID != 21 || got.Kind != KindMotion {
		t.Errorf("unexpected command on the wire: %+v", got)
	}
}

func TestClient_StatusCallback(t *testing.T) {
	fc, client := dialTest(t)

	type update struct {
		cmdID  uint32
		code   uint32
		reason command.RefusedReason
	}
	got := make(chan update, 1)
	client.SetStatusHandler(func(cmdID uint32, code uint32, reason command.RefusedReason) {
		got <- update{cmdID, code, reason}
	})

	fc.push(TypeStatus, StatusData{CmdID: 5, Code: 9, Reason: uint32(command.RefusedRobotBusy)})

	select {
	case u := <-got:
		if u.cmdID != 5 || u.code != 9 || u.reason != command.RefusedRobotBusy {
			t.Errorf("unexpected status update: %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("status callback not invoked")
	}
}

func TestClient_StateCallback(t *testing.T) {
	fc, client := dialTest(t)

	got := make(chan state.RobotState, 1)
	client.SetStateHandler(func(snapshot state.RobotState) {
		got <- snapshot
	})

	var snap state.RobotState
	snap.Q[0] = 0.428
	snap.Pressure[3] = 1013
	snap.Mode = state.ModeCommandMove
	fc.push(TypeState, snap)

	select {
	case s := <-got:
		if s.Q[0] != 0.428 || s.Pressure[3] != 1013 || s.Mode != state.ModeCommandMove {
			t.Errorf("unexpected snapshot: %s", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("state callback not invoked")
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	_, client := dialTest(t)

	if err := client.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
