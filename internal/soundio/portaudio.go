package soundio

import (
	"fmt"
	"sync"

	"github.com/doismellburning/jackio/internal/codec"
	"github.com/gordonklaus/portaudio"
)

// PortAudioInterface is a real-hardware SoundInterface backend built on
// github.com/gordonklaus/portaudio. PortAudio is callback-driven rather
// than mmap-driven, so this adapter bridges the two: a single duplex
// portaudio.Stream callback drains/fills small ring buffers, and the
// Stream methods this driver's IOCycle calls (AvailUpdate, MMapBegin,
// MMapCommit) operate purely against those ring buffers.
//
// Samples cross the callback boundary as float32 (PortAudio's native
// domain) and are converted to/from this driver's packed S32LE mmap
// representation via internal/codec, the same conversion the IOCycle
// hot loop would otherwise apply against real DMA memory.
type PortAudioInterface struct {
	mu       sync.Mutex
	stream   *portaudio.Stream
	capture  *padStream
	playback *padStream
	samples  codec.Codec
}

// ringPeriods is how many periods of headroom each ring buffer keeps,
// absorbing jitter between the callback thread and the audio thread
// without the callback ever blocking.
const ringPeriods = 4

// NewPortAudioInterface opens the host's default duplex device.
func NewPortAudioInterface() (*PortAudioInterface, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("soundio: portaudio init: %w", err)
	}
	return &PortAudioInterface{samples: codec.New(codec.S32LE, codec.Levels{})}, nil
}

func (p *PortAudioInterface) OpenCapture(device string) (Stream, error) {
	p.capture = &padStream{dir: captureDir, iface: p}
	return p.capture, nil
}

func (p *PortAudioInterface) OpenPlayback(device string) (Stream, error) {
	p.playback = &padStream{dir: playbackDir, iface: p}
	return p.playback, nil
}

// LinkStreams always reports false: PortAudio opens one duplex stream
// internally once both sides are configured (see startDuplex), but it
// offers no separate hardware-level start/stop link the way two ALSA
// PCM handles might, so capture_and_playback_not_synced stays true and
// DriverShell prepares/starts/stops both sides itself.
func (p *PortAudioInterface) LinkStreams(capture, playback Stream) bool {
	return false
}

func (p *PortAudioInterface) Close() error {
	p.mu.Lock()
	var stream = p.stream
	p.stream = nil
	p.mu.Unlock()

	var err error
	if stream != nil {
		err = stream.Close()
	}
	if tErr := portaudio.Terminate(); tErr != nil && err == nil {
		err = tErr
	}
	return err
}

// startDuplex opens the actual portaudio.Stream once both capture and
// playback have negotiated channels/rate/period, mirroring how the real
// driver only commits hardware parameters after both directions agree.
func (p *PortAudioInterface) startDuplex() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return nil
	}
	if p.capture == nil || p.playback == nil {
		return fmt.Errorf("soundio: portaudio duplex requires both capture and playback streams configured")
	}
	if p.capture.ring == nil || p.playback.ring == nil {
		// The other direction hasn't committed its parameters yet; its
		// CommitHWParams call opens the stream.
		return nil
	}

	var host, err = portaudio.DefaultHostApi()
	if err != nil {
		return fmt.Errorf("soundio: default host api: %w", err)
	}

	var params = portaudio.LowLatencyParameters(host.DefaultInputDevice, host.DefaultOutputDevice)
	params.Input.Channels = p.capture.channels
	params.Output.Channels = p.playback.channels
	params.SampleRate = float64(p.capture.rate)
	params.FramesPerBuffer = p.capture.period

	var stream, openErr = portaudio.OpenStream(params, p.callback)
	if openErr != nil {
		return fmt.Errorf("soundio: open duplex stream: %w", openErr)
	}

	p.stream = stream
	return nil
}

// callback runs on PortAudio's real-time thread. It must not allocate on
// the steady-state path; ring buffers are pre-sized in CommitHWParams.
func (p *PortAudioInterface) callback(in, out []float32) {
	if p.capture != nil {
		p.capture.ring.pushFloat(in)
	}
	if p.playback != nil {
		p.playback.ring.popFloat(out)
	}
}

type padStream struct {
	dir      direction
	iface    *PortAudioInterface
	access   AccessMode
	format   codec.Format
	channels int
	rate     int
	period   int
	periods  int
	buffer   int
	sw       SWParams
	started  bool
	ring     *floatRing

	// pendingRaw holds the backing array handed out by the most recent
	// MMapBegin call, mirroring loopbackStream.pendingCommit.
	pendingRaw []byte
}

func (s *padStream) HWParamsAny() error { return nil }

func (s *padStream) SetAccess(a AccessMode) error {
	// PortAudio always interleaves multi-channel buffers internally, so
	// only interleaved access is offered; negotiation falls back to it.
	if a != Interleaved {
		return fmt.Errorf("soundio: portaudio offers interleaved access only")
	}
	s.access = a
	return nil
}

func (s *padStream) SetFormat(f codec.Format) error {
	s.format = f
	return nil
}

func (s *padStream) SetRateNear(rate int) (int, error) {
	s.rate = rate
	return rate, nil
}

func (s *padStream) MaxChannels() (int, error) {
	var host, err = portaudio.DefaultHostApi()
	if err != nil {
		return 0, err
	}
	if s.dir == captureDir {
		return host.DefaultInputDevice.MaxInputChannels, nil
	}
	return host.DefaultOutputDevice.MaxOutputChannels, nil
}

func (s *padStream) SetChannels(n int) error {
	s.channels = n
	return nil
}

func (s *padStream) SetPeriodSizeNear(frames int) (int, error) {
	s.period = frames
	return frames, nil
}

func (s *padStream) SetPeriodCount(n int) error {
	s.periods = n
	return nil
}

func (s *padStream) SetBufferSize(frames int) error {
	s.buffer = frames
	return nil
}

func (s *padStream) CommitHWParams() error {
	s.ring = newFloatRing(s.channels, s.period*ringPeriods)
	return s.iface.startDuplex()
}

func (s *padStream) ConfigureSWParams(p SWParams) error {
	s.sw = p
	return nil
}

func (s *padStream) Prepare() error {
	s.started = false
	return nil
}

func (s *padStream) Start() error {
	s.started = true
	return s.iface.stream.Start()
}

func (s *padStream) Drop() error {
	s.started = false
	if s.iface.stream == nil {
		return nil
	}
	return s.iface.stream.Stop()
}

func (s *padStream) Poll(timeoutMS int) (PollResult, error) {
	// PortAudio has no pollable descriptor; a period is always
	// considered ready since the callback thread drives timing.
	return PollResult{Writable: true}, nil
}

func (s *padStream) AvailUpdate() (AvailResult, error) {
	var frames = s.ring.available(s.dir)
	if frames > s.period {
		frames = s.period
	}
	return AvailResult{Frames: frames}, nil
}

func (s *padStream) MMapBegin() ([]ChannelArea, int, int, error) {
	var raw = make([]byte, s.period*bytesPerFrame(s.format, s.channels))
	if s.dir == captureDir {
		var samples = s.ring.popFloatN(s.period)
		s.iface.samples.Write(raw, samples, len(samples), 0, 1.0)
	}
	s.pendingRaw = raw
	return splitAreas(raw, s.access, s.channels, s.format), 0, s.period, nil
}

func (s *padStream) MMapCommit(offset int, frames int) error {
	if s.dir != playbackDir || s.pendingRaw == nil {
		return nil
	}
	var samples = make([]float32, frames*s.channels)
	s.iface.samples.Read(samples, s.pendingRaw, len(samples), 0)
	s.ring.pushFloatN(samples)
	s.pendingRaw = nil
	return nil
}

func (s *padStream) Delay() (int, error) {
	return s.ring.available(s.dir), nil
}

func (s *padStream) Access() AccessMode  { return s.access }
func (s *padStream) Format() codec.Format { return s.format }
func (s *padStream) Channels() int       { return s.channels }
func (s *padStream) PeriodFrames() int   { return s.period }
func (s *padStream) BufferFrames() int   { return s.buffer }

func (s *padStream) Close() error { return nil }

var _ Interface = (*PortAudioInterface)(nil)
var _ Stream = (*padStream)(nil)
