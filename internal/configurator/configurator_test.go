package configurator

import (
	"testing"

	"github.com/doismellburning/jackio/internal/codec"
	"github.com/doismellburning/jackio/internal/soundio"
	"github.com/stretchr/testify/require"
)

func openPair(t *testing.T) (soundio.Interface, soundio.Stream, soundio.Stream) {
	t.Helper()
	var iface = soundio.NewLoopbackInterface(2)
	var capture, cErr = iface.OpenCapture("loop")
	require.NoError(t, cErr)
	var playback, pErr = iface.OpenPlayback("loop")
	require.NoError(t, pErr)
	return iface, capture, playback
}

func TestConfigureNegotiatesDefaults(t *testing.T) {
	var iface, capture, playback = openPair(t)
	var negotiated, err = Configure(iface, capture, playback, 44100, 64, 2, 2)
	require.NoError(t, err)
	require.Equal(t, codec.S32LE, negotiated.Format)
	require.Equal(t, soundio.NonInterleaved, negotiated.Access)
	require.Equal(t, 44100, negotiated.Rate)
	require.Equal(t, 64, negotiated.PeriodFrames)
	require.Equal(t, 2, negotiated.PeriodCount)
	require.Equal(t, 128, negotiated.BufferFrames)
	require.True(t, negotiated.CapturePlaybackLinked)
}

func TestConfigureFallsBackToInterleavedAccess(t *testing.T) {
	var iface, capture, playback = openPair(t)
	soundio.RejectAccess(capture, soundio.NonInterleaved)
	soundio.RejectAccess(playback, soundio.NonInterleaved)

	var negotiated, err = Configure(iface, capture, playback, 44100, 64, 2, 2)
	require.NoError(t, err)
	require.Equal(t, soundio.Interleaved, negotiated.Access)
}

func TestConfigureFallsBackToS16(t *testing.T) {
	var iface, capture, playback = openPair(t)
	soundio.RejectFormat(capture, codec.S32LE)
	soundio.RejectFormat(playback, codec.S32LE)

	var negotiated, err = Configure(iface, capture, playback, 44100, 64, 2, 2)
	require.NoError(t, err)
	require.Equal(t, codec.S16LE, negotiated.Format)
}

func TestConfigureFailsWhenNoAccessModeWorks(t *testing.T) {
	var iface, capture, playback = openPair(t)
	soundio.RejectAccess(capture, soundio.NonInterleaved)
	soundio.RejectAccess(capture, soundio.Interleaved)

	var _, err = Configure(iface, capture, playback, 44100, 64, 2, 2)
	require.Error(t, err)
}

func TestConfigureRejectsCrossStreamAccessMismatch(t *testing.T) {
	var iface, capture, playback = openPair(t)
	soundio.RejectAccess(playback, soundio.NonInterleaved)

	var _, err = Configure(iface, capture, playback, 44100, 64, 2, 2)
	require.ErrorIs(t, err, soundio.ErrFormatMismatch)
}

// sentinelChannelStream wraps a real Stream but reports an ALSA
// "unconfigured default device" max-channels sentinel, to exercise the
// clamp-to-stereo branch of step 6.
type sentinelChannelStream struct {
	soundio.Stream
}

func (s sentinelChannelStream) MaxChannels() (int, error) { return 4096, nil }

func TestConfigureClampsOversizedMaxChannelsSentinel(t *testing.T) {
	var iface, capture, playback = openPair(t)
	var wrapped = sentinelChannelStream{Stream: capture}

	var negotiated, err = Configure(iface, wrapped, playback, 44100, 64, 6, 2)
	require.NoError(t, err)
	require.Equal(t, 2, negotiated.Channels)
}
