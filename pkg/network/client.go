package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/wisson-robotics/go-perseus/internal/log"
	"github.com/wisson-robotics/go-perseus/pkg/command"
	"github.com/wisson-robotics/go-perseus/pkg/state"
)

// ErrNetwork wraps transport-level failures. The SDK never retries them
// automatically; the caller constructs a fresh sequence to retry.
var ErrNetwork = errors.New("network: transport failure")

// sdkVersion is reported to the controller in the hello handshake.
const sdkVersion = "0.1.0"

const (
	// handshakeTimeout bounds the websocket upgrade.
	handshakeTimeout = 10 * time.Second

	// writeWait is how long to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum inbound message size.
	maxMessageSize = 64 * 1024
)

// StatusHandler receives asynchronous command status updates. The code
// is the raw wire value; reason is only meaningful for refusals.
type StatusHandler func(cmdID uint32, code uint32, reason command.RefusedReason)

// StateHandler receives robot state snapshots.
type StateHandler func(snapshot state.RobotState)

// Client is a WebSocket connection to the robot controller. It is
// shared, not owned, by the controllers bound to it, and survives
// across repeated command sequences.
//
// A single write mutex keeps the one-writer rule of the underlying
// connection; the read pump is the only reader.
type Client struct {
	conn      *websocket.Conn
	sessionID string

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	onStatus  StatusHandler
	onState   StateHandler

	serverVersion atomic.Uint32

	group     *errgroup.Group
	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to the controller at url, performs the hello handshake
// and starts the read and ping pumps.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrNetwork, url, err)
	}

	c := &Client{
		conn:      conn,
		sessionID: uuid.NewString(),
		closed:    make(chan struct{}),
	}

	if err := c.writeMessage(TypeHello, HelloData{ClientID: c.sessionID, SDKVersion: sdkVersion}); err != nil {
		conn.Close()
		return nil, err
	}

	g, gctx := errgroup.WithContext(context.Background())
	c.group = g
	g.Go(c.readPump)
	g.Go(func() error { return c.pingLoop(gctx) })

	log.Info("network: connected", "url", url, "session_id", c.sessionID)
	return c, nil
}

// SessionID returns the uuid identifying this connection.
func (c *Client) SessionID() string { return c.sessionID }

// ServerVersion returns the controller firmware version from the hello
// handshake, or 0 if it has not been received yet.
func (c *Client) ServerVersion() uint32 { return c.serverVersion.Load() }

// SetStatusHandler registers the asynchronous status sink. Called
// before the first command is dispatched.
func (c *Client) SetStatusHandler(h StatusHandler) {
	c.handlerMu.Lock()
	c.onStatus = h
	c.handlerMu.Unlock()
}

// SetStateHandler registers the robot state sink.
func (c *Client) SetStateHandler(h StateHandler) {
	c.handlerMu.Lock()
	c.onState = h
	c.handlerMu.Unlock()
}

// Send serializes one command step and transmits it. A nil return means
// the step was handed to the connection, not that the controller
// accepted it; acceptance arrives through the status sink.
func (c *Client) Send(step command.Step, seqID uint32) error {
	msg, err := encodeStep(step, seqID)
	if err != nil {
		return err
	}
	return c.write(msg)
}

// SendStop asks the controller to stop the running command. The
// in-flight sequence terminates through a user-stop status update.
func (c *Client) SendStop() error {
	return c.writeMessage(TypeStop, nil)
}

// Close shuts the connection down and waits for the pumps to exit.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
		err = c.group.Wait()
	})
	return err
}

func (c *Client) writeMessage(msgType MessageType, data interface{}) error {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		return err
	}
	return c.write(msg)
}

func (c *Client) write(msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("network: marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrNetwork, msg.Type, err)
	}
	return nil
}

// readPump reads messages from the connection and dispatches them to
// the registered handlers. It is the connection's only reader.
func (c *Client) readPump() error {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return nil
			default:
				return fmt.Errorf("%w: read: %v", ErrNetwork, err)
			}
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("network: dropping malformed message", "err", err)
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *Message) {
	switch msg.Type {
	case TypeHello:
		var hello HelloData
		if err := msg.ParseData(&hello); err != nil {
			log.Warn("network: bad hello message", "err", err)
			return
		}
		c.serverVersion.Store(hello.ServerVersion)
		log.Debug("network: handshake complete", "server_version", hello.ServerVersion)

	case TypeStatus:
		var status StatusData
		if err := msg.ParseData(&status); err != nil {
			log.Warn("network: bad status message", "err", err)
			return
		}
		c.handlerMu.RLock()
		h := c.onStatus
		c.handlerMu.RUnlock()
		if h != nil {
			h(status.CmdID, status.Code, command.RefusedReason(status.Reason))
		}

	case TypeState:
		var snapshot state.RobotState
		if err := msg.ParseData(&snapshot); err != nil {
			log.Warn("network: bad state message", "err", err)
			return
		}
		c.handlerMu.RLock()
		h := c.onState
		c.handlerMu.RUnlock()
		if h != nil {
			h(snapshot)
		}

	default:
		log.Debug("network: ignoring message", "type", msg.Type)
	}
}

// pingLoop keeps the connection alive. The read pump's pong handler
// extends the read deadline.
func (c *Client) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return fmt.Errorf("%w: ping: %v", ErrNetwork, err)
			}
		}
	}
}
