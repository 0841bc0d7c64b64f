package robot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisson-robotics/go-perseus/pkg/command"
	"github.com/wisson-robotics/go-perseus/pkg/control"
	"github.com/wisson-robotics/go-perseus/pkg/network"
	"github.com/wisson-robotics/go-perseus/pkg/state"
)

// fakeTransport records traffic and exposes the handlers the robot
// registers, so tests can feed status and state updates back in.
type fakeTransport struct {
	mu       sync.Mutex
	sends    []sentCommand
	stops    int
	onStatus network.StatusHandler
	onState  network.StateHandler
	closed   bool
}

type sentCommand struct {
	step  command.Step
	seqID uint32
}

func (f *fakeTransport) Send(step command.Step, seqID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentCommand{step, seqID})
	return nil
}

func (f *fakeTransport) SendStop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeTransport) SetStatusHandler(h network.StatusHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onStatus = h
}

func (f *fakeTransport) SetStateHandler(h network.StateHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = h
}

func (f *fakeTransport) ServerVersion() uint32 { return 7 }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) pushStatus(cmdID, code uint32, reason command.RefusedReason) {
	f.mu.Lock()
	h := f.onStatus
	f.mu.Unlock()
	h(cmdID, code, reason)
}

func (f *fakeTransport) pushState(s state.RobotState) {
	f.mu.Lock()
	h := f.onState
	f.mu.Unlock()
	h(s)
}

func (f *fakeTransport) lastSend(t *testing.T) sentCommand {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sends)
	return f.sends[len(f.sends)-1]
}

var _ Transport = (*fakeTransport)(nil)

func newTestRobot(t *testing.T) (*Robot, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	r := newRobot(ft)
	require.NotNil(t, ft.onStatus, "status handler not registered")
	require.NotNil(t, ft.onState, "state handler not registered")
	return r, ft
}

func singleMotion(t *testing.T) *command.Sequence {
	t.Helper()
	motion, err := command.NewMotion([state.JointCount]float64{0.4}, time.Second)
	require.NoError(t, err)
	seq, err := command.NewSingle(motion)
	require.NoError(t, err)
	return seq
}

func TestRobot_ControlAndWait_Success(t *testing.T) {
	r, ft := newTestRobot(t)
	seq := singleMotion(t)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- r.ControlAndWait(ctx, control.JointPosition(), seq)
	}()

	waitFor(t, func() bool { return r.IsRunning() })
	sent := ft.lastSend(t)
	ft.pushStatus(sent.seqID, 4, command.RefusedNone)

	require.NoError(t, <-done)
	assert.Equal(t, command.StatusSuccess, seq.Status())
	assert.False(t, r.IsRunning())
}

func TestRobot_ControlAndWait_Abort(t *testing.T) {
	r, ft := newTestRobot(t)
	seq := singleMotion(t)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- r.ControlAndWait(ctx, control.JointPosition(), seq)
	}()

	waitFor(t, func() bool { return r.IsRunning() })
	ft.pushStatus(ft.lastSend(t).seqID, 8, command.RefusedNone)

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), command.StatusAbort.String())
	assert.Equal(t, command.StatusAbort, seq.Status())
}

func TestRobot_Control_FireAndForget(t *testing.T) {
	r, ft := newTestRobot(t)
	seq := singleMotion(t)

	require.NoError(t, r.Control(control.JointPosition(), seq))
	assert.True(t, r.IsRunning())

	ft.pushStatus(ft.lastSend(t).seqID, 6, command.RefusedNone)
	assert.False(t, r.IsRunning())
	assert.Equal(t, command.StatusUserStop, seq.Status())
}

func TestRobot_TwoModesOneHandle(t *testing.T) {
	r, ft := newTestRobot(t)

	jointSeq := singleMotion(t)
	require.NoError(t, r.Control(control.JointPosition(), jointSeq))
	ft.pushStatus(ft.lastSend(t).seqID, 4, command.RefusedNone)
	require.Equal(t, command.StatusSuccess, jointSeq.Status())

	gripper, err := command.NewEndEffector(command.ActionOpen, time.Second)
	require.NoError(t, err)
	taskSeq, err := command.NewSingle(gripper)
	require.NoError(t, err)

	require.NoError(t, r.Control(control.TaskCommand(), taskSeq))
	assert.NotEqual(t, jointSeq.ID(), taskSeq.ID())

	ft.pushStatus(ft.lastSend(t).seqID, 4, command.RefusedNone)
	assert.Equal(t, command.StatusSuccess, taskSeq.Status())
	assert.False(t, r.IsRunning())
}

func TestRobot_StatusForOtherCommandIgnored(t *testing.T) {
	r, ft := newTestRobot(t)
	seq := singleMotion(t)

	require.NoError(t, r.Control(control.JointPosition(), seq))
	ft.pushStatus(seq.ID()+100, 4, command.RefusedNone)

	assert.True(t, r.IsRunning())
	assert.False(t, seq.Finished())

	ft.pushStatus(seq.ID(), 6, command.RefusedNone)
}

func TestRobot_ReadOnce(t *testing.T) {
	r, ft := newTestRobot(t)

	var snap state.RobotState
	snap.Pressure[0] = 1013
	snap.Mode = state.ModeIdle
	go func() {
		time.Sleep(10 * time.Millisecond)
		ft.pushState(snap)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := r.ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1013, got.Pressure[0])
}

func TestRobot_ReadOnce_RejectedWhileRunning(t *testing.T) {
	r, _ := newTestRobot(t)
	require.NoError(t, r.Control(control.JointPosition(), singleMotion(t)))

	_, err := r.ReadOnce(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, control.ErrInvalidOperation))
}

func TestRobot_State_ReturnsLastSnapshot(t *testing.T) {
	r, ft := newTestRobot(t)

	assert.Equal(t, state.RobotState{}, r.State())

	var snap state.RobotState
	snap.Q[1] = 30
	ft.pushState(snap)
	assert.Equal(t, float64(30), r.State().Q[1])
}

func TestRobot_Stop(t *testing.T) {
	r, ft := newTestRobot(t)

	require.NoError(t, r.Stop())
	ft.mu.Lock()
	stops := ft.stops
	ft.mu.Unlock()
	assert.Equal(t, 1, stops)
}

func TestRobot_CloseAndVersion(t *testing.T) {
	r, ft := newTestRobot(t)

	assert.Equal(t, uint32(7), r.ServerVersion())
	require.NoError(t, r.Close())
	ft.mu.Lock()
	defer ft.mu.Unlock()
	assert.True(t, ft.closed)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
