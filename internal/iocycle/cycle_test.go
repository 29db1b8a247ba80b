package iocycle

import (
	"context"
	"testing"

	"github.com/doismellburning/jackio/internal/channelmap"
	"github.com/doismellburning/jackio/internal/codec"
	"github.com/doismellburning/jackio/internal/configurator"
	"github.com/doismellburning/jackio/internal/engine"
	"github.com/doismellburning/jackio/internal/hwprofile"
	"github.com/doismellburning/jackio/internal/soundio"
	"github.com/stretchr/testify/require"
)

// harness bundles a fully negotiated loopback capture/playback pair, a
// Fake engine with matching physical ports, and the Cycle wired against
// them, mirroring how DriverShell would assemble these pieces.
type harness struct {
	t             *testing.T
	iface         *soundio.LoopbackInterface
	capture       soundio.Stream
	playback      soundio.Stream
	fake          *engine.Fake
	channels      int
	cycle         *Cycle
	control       *ControlState
	capturePorts  []engine.Port
	playbackPorts []engine.Port
}

func newHarness(t *testing.T, channels int) *harness {
	t.Helper()
	var iface = soundio.NewLoopbackInterface(2)
	var capture, cErr = iface.OpenCapture("loop")
	require.NoError(t, cErr)
	var playback, pErr = iface.OpenPlayback("loop")
	require.NoError(t, pErr)

	var negotiated, negErr = configurator.Configure(iface, capture, playback, 44100, 32, channels, channels)
	require.NoError(t, negErr)

	var fake = engine.NewFake()
	require.NoError(t, fake.SetBufferSize(negotiated.PeriodFrames))

	var capturePorts = make([]engine.Port, channels)
	var playbackPorts = make([]engine.Port, channels)
	for c := 0; c < channels; c++ {
		var cp, _ = fake.RegisterPort("capture_"+string(rune('1'+c)), engine.PortIsOutput|engine.PortIsPhysical)
		var pp, _ = fake.RegisterPort("playback_"+string(rune('1'+c)), engine.PortIsInput|engine.PortIsPhysical)
		capturePorts[c] = cp
		playbackPorts[c] = pp
	}

	// Default engine behavior: loop capture straight to playback, like
	// a client patched input to output.
	fake.ProcessFunc = func(e *engine.Fake, nframes int) int {
		for c := 0; c < channels; c++ {
			copy(e.PortGetBuffer(playbackPorts[c], nframes), e.PortGetBuffer(capturePorts[c], nframes))
		}
		return 0
	}

	var control = NewControlState(channels)
	var chanMap = channelmap.New(channels, negotiated.BufferFrames)

	var cycle = New(Config{
		Capture:        capture,
		Playback:       playback,
		Engine:         fake,
		Codec:          codec.New(negotiated.Format, codec.Levels{}),
		Format:         negotiated.Format,
		Profile:        hwprofile.Generic{},
		Control:        control,
		CapturePorts:   capturePorts,
		PlaybackPorts:  playbackPorts,
		ChannelMap:     chanMap,
		FramesPerCycle: negotiated.PeriodFrames,
	})

	return &harness{
		t: t, iface: iface, capture: capture, playback: playback, fake: fake, channels: channels,
		cycle: cycle, control: control, capturePorts: capturePorts, playbackPorts: playbackPorts,
	}
}

func TestRunOnceNoOpOnPollTimeout(t *testing.T) {
	var h = newHarness(t, 1)
	soundio.InjectPollTimeout(h.playback)

	var outcome, err = h.cycle.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, outcome)
}

func TestRunOnceSkipsOnPollInterrupt(t *testing.T) {
	var h = newHarness(t, 1)
	soundio.InjectPollInterrupt(h.playback)

	var outcome, err = h.cycle.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome)
}

func TestRunOnceRecoversFromCaptureXrun(t *testing.T) {
	var h = newHarness(t, 1)
	h.iface.InjectCaptureXrun()

	var outcome, err = h.cycle.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome)
}

func TestRunOnceFatalOnEngineProcessError(t *testing.T) {
	var h = newHarness(t, 1)
	h.fake.ProcessFunc = func(e *engine.Fake, nframes int) int { return -1 }

	var outcome, err = h.cycle.RunOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, OutcomeFatal, outcome)
	var procErr *EngineProcessErr
	require.ErrorAs(t, err, &procErr)
}

func TestRunOnceSilencesUnconnectedChannelOutput(t *testing.T) {
	var h = newHarness(t, 2)
	// Client only patches channel 0 through; channel 1's playback port
	// is never written, so it must come out silent.
	h.fake.ProcessFunc = func(e *engine.Fake, nframes int) int {
		var in = e.PortGetBuffer(h.capturePorts[0], nframes)
		copy(e.PortGetBuffer(h.playbackPorts[0], nframes), in)
		return 0
	}

	for i := 0; i < 3; i++ {
		var _, err = h.cycle.RunOnce(context.Background())
		require.NoError(t, err)
	}

	// The loopback capture side now presents an earlier committed
	// playback period; channel 1's samples in it must all be zero.
	var areas, _, _, err = h.capture.MMapBegin()
	require.NoError(t, err)
	for _, b := range areas[1].Base {
		require.Equal(t, byte(0), b)
	}
}

func TestRunOnceMultipleCyclesDoNotError(t *testing.T) {
	var h = newHarness(t, 1)
	for i := 0; i < 5; i++ {
		var outcome, err = h.cycle.RunOnce(context.Background())
		require.NoError(t, err)
		require.Equal(t, OutcomeOK, outcome)
	}
}

// mutableClockProfile is a Profile stub whose ClockSyncStatus can be
// changed between RunOnce calls, for exercising pollClockSync.
type mutableClockProfile struct {
	hwprofile.Profile
	status hwprofile.ClockSyncStatus
}

func (p *mutableClockProfile) ClockSyncStatus(_ int) hwprofile.ClockSyncStatus { return p.status }

func TestRunOnceNotifiesClockSyncOnlyOnChange(t *testing.T) {
	var h = newHarness(t, 1)
	var profile = &mutableClockProfile{Profile: hwprofile.Generic{}, status: hwprofile.Lock}
	h.cycle.cfg.Profile = profile

	var _, err = h.cycle.RunOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, h.fake.ClockSyncCalls, "status unchanged from the default Lock reading shouldn't notify")

	profile.status = hwprofile.NoLock
	_, err = h.cycle.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, h.fake.ClockSyncCalls, 1)
	require.Equal(t, engine.NoLock, h.fake.ClockSyncCalls[0].Status)

	_, err = h.cycle.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, h.fake.ClockSyncCalls, 1, "unchanged status on the next cycle shouldn't re-notify")
}
