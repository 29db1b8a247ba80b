package soundio

import (
	"testing"

	"github.com/doismellburning/jackio/internal/codec"
	"github.com/stretchr/testify/require"
)

func setUpStream(t *testing.T, s Stream, channels int, access AccessMode) {
	t.Helper()
	require.NoError(t, s.HWParamsAny())
	require.NoError(t, s.SetAccess(access))
	require.NoError(t, s.SetFormat(codec.S16LE))
	var _, err = s.SetRateNear(44100)
	require.NoError(t, err)
	require.NoError(t, s.SetChannels(channels))
	var _, periodErr = s.SetPeriodSizeNear(64)
	require.NoError(t, periodErr)
	require.NoError(t, s.SetPeriodCount(2))
	require.NoError(t, s.SetBufferSize(128))
	require.NoError(t, s.CommitHWParams())
	require.NoError(t, s.ConfigureSWParams(SWParams{AvailMin: 64}))
}

// Testable property 4: a known waveform written to playback reproduces
// on capture after the first two-period startup delay.
func TestLoopbackRoundTripAfterStartupDelay(t *testing.T) {
	var iface = NewLoopbackInterface(2)
	var capture, cErr = iface.OpenCapture("loop")
	require.NoError(t, cErr)
	var playback, pErr = iface.OpenPlayback("loop")
	require.NoError(t, pErr)

	setUpStream(t, capture, 1, NonInterleaved)
	setUpStream(t, playback, 1, NonInterleaved)

	var sent [][]byte // what we wrote to playback each cycle

	// Each cycle reads capture before committing playback, the same
	// order IOCycle uses.
	for cycle := 0; cycle < 4; cycle++ {
		var cAreas, _, cContig, cErr2 = capture.MMapBegin()
		require.NoError(t, cErr2)
		require.Equal(t, 64, cContig)

		if cycle < 2 {
			for _, b := range cAreas[0].Base {
				require.Equal(t, byte(0), b, "expected silence before startup delay elapses, cycle %d", cycle)
			}
		} else {
			require.Equal(t, sent[cycle-2], cAreas[0].Base, "capture should reproduce playback from two cycles prior")
		}

		var areas, offset, contig, err = playback.MMapBegin()
		require.NoError(t, err)
		require.Equal(t, 64, contig)

		for i := 0; i < contig; i++ {
			areas[0].Base[i] = byte(cycle*64 + i)
		}
		var snapshot = make([]byte, len(areas[0].Base))
		copy(snapshot, areas[0].Base)
		sent = append(sent, snapshot)

		require.NoError(t, playback.MMapCommit(offset, contig))
	}
}

func TestLoopbackXrunInjection(t *testing.T) {
	var iface = NewLoopbackInterface(2)
	var capture, _ = iface.OpenCapture("loop")
	var playback, _ = iface.OpenPlayback("loop")
	setUpStream(t, capture, 1, NonInterleaved)
	setUpStream(t, playback, 1, NonInterleaved)

	var avail, err = capture.AvailUpdate()
	require.NoError(t, err)
	require.False(t, avail.BrokenPipe)

	iface.InjectCaptureXrun()

	avail, err = capture.AvailUpdate()
	require.NoError(t, err)
	require.True(t, avail.BrokenPipe)

	// Only fires once.
	avail, err = capture.AvailUpdate()
	require.NoError(t, err)
	require.False(t, avail.BrokenPipe)
}

func TestInterleavedSplitAreas(t *testing.T) {
	var raw = make([]byte, 16) // 2 channels, 4 frames, 2 bytes each
	var areas = splitAreas(raw, Interleaved, 2, codec.S16LE)
	require.Len(t, areas, 2)
	require.Equal(t, 0, areas[0].FirstBit)
	require.Equal(t, 32, areas[0].Step) // 2 channels * 2 bytes * 8 bits
	require.Equal(t, 16, areas[1].FirstBit)
}
