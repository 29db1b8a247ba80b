package driver

import (
	"context"
	"testing"

	"github.com/doismellburning/jackio/internal/engine"
	"github.com/doismellburning/jackio/internal/iocycle"
	"github.com/doismellburning/jackio/internal/soundio"
	"github.com/stretchr/testify/require"
)

func newShell(t *testing.T, channels int) (*Shell, *engine.Fake) {
	t.Helper()
	var iface = soundio.NewLoopbackInterface(2)
	var shell, err = Construct(Config{
		DeviceName:       "loop",
		DriverName:       "Generic Card",
		FramesPerCycle:   32,
		SampleRate:       44100,
		CaptureChannels:  channels,
		PlaybackChannels: channels,
	}, iface)
	require.NoError(t, err)
	require.Equal(t, StateConfigured, shell.State())

	var fake = engine.NewFake()
	require.NoError(t, shell.Attach(fake))
	require.Equal(t, StateAttached, shell.State())
	return shell, fake
}

func TestConstructAttachStartStopLifecycle(t *testing.T) {
	var shell, fake = newShell(t, 2)

	require.NoError(t, shell.Start())
	require.Equal(t, StateRunning, shell.State())
	require.True(t, fake.Activated())

	var outcome, err = shell.WaitOneCycle(context.Background())
	require.NoError(t, err)
	require.Contains(t, []string{"ok", "skipped"}, outcome.String())

	require.NoError(t, shell.Stop())
	require.Equal(t, StateStopped, shell.State())

	require.NoError(t, shell.Destroy())
	require.Equal(t, StateDestroyed, shell.State())
}

func TestStartRejectedBeforeAttach(t *testing.T) {
	var iface = soundio.NewLoopbackInterface(2)
	var shell, err = Construct(Config{DeviceName: "loop", FramesPerCycle: 32, SampleRate: 44100, CaptureChannels: 1, PlaybackChannels: 1}, iface)
	require.NoError(t, err)
	require.Error(t, shell.Start())
}

func TestRequestMonitorInputOutOfRangeIsNoOp(t *testing.T) {
	var shell, _ = newShell(t, 2)
	require.NotPanics(t, func() {
		shell.RequestMonitorInput(99, true)
		shell.RequestMonitorInput(-1, true)
	})
}

func TestRequestMonitorInputRefCounts(t *testing.T) {
	var shell, fake = newShell(t, 2)

	shell.RequestMonitorInput(0, true)
	shell.RequestMonitorInput(0, true)
	require.Len(t, fake.MonitorCalls, 1, "second request on the same channel shouldn't re-notify")

	shell.RequestMonitorInput(0, false)
	require.Len(t, fake.MonitorCalls, 1, "refcount still > 0 after one retraction")

	shell.RequestMonitorInput(0, false)
	require.Len(t, fake.MonitorCalls, 2, "refcount hit zero, should notify monitor-off")
	require.False(t, fake.MonitorCalls[1].On)
}

func TestStartPrimesOnlyPrimingPeriodsNotWholeBuffer(t *testing.T) {
	var iface = soundio.NewLoopbackInterface(2)
	var shell, err = Construct(Config{
		DeviceName:       "loop",
		FramesPerCycle:   32,
		SampleRate:       44100,
		CaptureChannels:  1,
		PlaybackChannels: 1,
		PrimingPeriods:   1,
	}, iface)
	require.NoError(t, err)
	require.NoError(t, shell.Attach(engine.NewFake()))
	require.NoError(t, shell.Start())

	var delayFrames, delayErr = shell.capture.Delay()
	require.NoError(t, delayErr)
	require.Equal(t, shell.negotiated.PeriodFrames, delayFrames, "PrimingPeriods: 1 should prime exactly one period, not the whole (2-period) buffer")
}

func TestStartDefaultsPrimingPeriodsToTwo(t *testing.T) {
	var shell, _ = newShell(t, 1)
	require.NoError(t, shell.Start())

	var delayFrames, delayErr = shell.capture.Delay()
	require.NoError(t, delayErr)
	require.Equal(t, shell.negotiated.BufferFrames, delayFrames, "zero-value PrimingPeriods should default to 2, priming the full (2-period) buffer")
}

func TestRequestMonitorInputThenCycleNotifiesOnlyOnce(t *testing.T) {
	var shell, fake = newShell(t, 2)
	require.NoError(t, shell.Start())

	shell.RequestMonitorInput(0, true)
	require.Len(t, fake.MonitorCalls, 1, "request itself must be the only notify for this transition")

	var _, err = shell.WaitOneCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, fake.MonitorCalls, 1, "running a cycle after the request must not re-notify")

	shell.RequestMonitorInput(0, false)
	require.Len(t, fake.MonitorCalls, 2, "retraction is the only notify for this transition")

	var _, err2 = shell.WaitOneCycle(context.Background())
	require.NoError(t, err2)
	require.Len(t, fake.MonitorCalls, 2, "running a cycle after the retraction must not re-notify")
}

func TestMarkChannelSilentOutOfRangeIsNoOp(t *testing.T) {
	var shell, _ = newShell(t, 2)
	require.NotPanics(t, func() { shell.MarkChannelSilent(999) })
}

func TestDetachClearsEngineReference(t *testing.T) {
	var shell, _ = newShell(t, 1)
	require.NoError(t, shell.Detach())
	require.Equal(t, StateConfigured, shell.State())
	var _, err = shell.WaitOneCycle(context.Background())
	require.Error(t, err)
}

func TestStatsCountsCyclesAndFrames(t *testing.T) {
	var shell, _ = newShell(t, 1)
	require.NoError(t, shell.Start())
	require.Equal(t, 0, shell.Stats().CyclesRun)

	var _, err = shell.WaitOneCycle(context.Background())
	require.NoError(t, err)

	var stats = shell.Stats()
	require.Equal(t, 1, stats.CyclesRun)
	require.Positive(t, stats.FramesProcessed)
}

func TestStatsZeroBeforeAttach(t *testing.T) {
	var iface = soundio.NewLoopbackInterface(2)
	var shell, err = Construct(Config{DeviceName: "loop", FramesPerCycle: 32, SampleRate: 44100, CaptureChannels: 1, PlaybackChannels: 1}, iface)
	require.NoError(t, err)
	require.Equal(t, iocycle.Stats{}, shell.Stats())
}

func TestClockSyncStatusDefaultsToLockOnGenericProfile(t *testing.T) {
	var shell, _ = newShell(t, 1)
	require.Equal(t, 0, int(shell.ClockSyncStatus(0))) // hwprofile.Lock == 0
}
