package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterPortRejectsDuplicateNames(t *testing.T) {
	var e = NewFake()
	require.NoError(t, e.SetBufferSize(64))
	var _, err = e.RegisterPort("capture_1", PortIsOutput|PortIsPhysical)
	require.NoError(t, err)
	_, err = e.RegisterPort("capture_1", PortIsOutput|PortIsPhysical)
	require.Error(t, err)
}

func TestSetBufferSizeResizesExistingPortBuffers(t *testing.T) {
	var e = NewFake()
	require.NoError(t, e.SetBufferSize(32))
	var p, err = e.RegisterPort("capture_1", PortIsOutput)
	require.NoError(t, err)
	require.Len(t, e.PortGetBuffer(p, 32), 32)

	require.NoError(t, e.SetBufferSize(64))
	require.Len(t, e.PortGetBuffer(p, 64), 64)
}

func TestProcessLoopsInputToOutput(t *testing.T) {
	var e = NewFake()
	require.NoError(t, e.SetBufferSize(4))
	var in, _ = e.RegisterPort("capture_1", PortIsOutput|PortIsPhysical)
	var out, _ = e.RegisterPort("playback_1", PortIsInput|PortIsPhysical)

	e.ProcessFunc = func(e *Fake, nframes int) int {
		copy(e.PortGetBuffer(out, nframes), e.PortGetBuffer(in, nframes))
		return 0
	}

	copy(e.PortGetBuffer(in, 4), []float32{0.1, 0.2, 0.3, 0.4})
	require.Equal(t, 0, e.Process(4))
	require.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, e.PortGetBuffer(out, 4))
}

func TestProcessPropagatesNonzeroReturn(t *testing.T) {
	var e = NewFake()
	require.NoError(t, e.SetBufferSize(4))
	e.ProcessFunc = func(e *Fake, nframes int) int { return -1 }
	require.Equal(t, -1, e.Process(4))
}

func TestNotifyMonitorAndClockSyncRecordCalls(t *testing.T) {
	var e = NewFake()
	e.NotifyMonitor(2, true)
	e.NotifyClockSync(2, NoLock)
	require.Equal(t, []MonitorCall{{Channel: 2, On: true}}, e.MonitorCalls)
	require.Equal(t, []ClockSyncCall{{Channel: 2, Status: NoLock}}, e.ClockSyncCalls)
}

func TestActivateSetsActivatedFlag(t *testing.T) {
	var e = NewFake()
	require.False(t, e.Activated())
	require.NoError(t, e.Activate())
	require.True(t, e.Activated())
}
