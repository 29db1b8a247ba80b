package soundio

import (
	"fmt"

	"github.com/doismellburning/jackio/internal/codec"
)

// LoopbackInterface is a zero-latency-free test harness standing in for
// real hardware: it physically loops whatever is committed to the
// playback stream back into the capture stream after a fixed number of
// periods, the way testable property 4's round-trip test wants.
//
// It is not meant to be fast or general — it models exactly the part of
// the sound-interface contract IOCycle actually exercises, at
// one-period granularity.
type LoopbackInterface struct {
	delayPeriods int
	delayLine    [][]byte

	capture  *loopbackStream
	playback *loopbackStream
}

// NewLoopbackInterface returns a loopback harness whose capture stream
// reproduces playback data after delayPeriods periods (default 2,
// matching the double-buffered period count negotiates).
func NewLoopbackInterface(delayPeriods int) *LoopbackInterface {
	if delayPeriods <= 0 {
		delayPeriods = 2
	}
	return &LoopbackInterface{delayPeriods: delayPeriods}
}

func (l *LoopbackInterface) OpenCapture(device string) (Stream, error) {
	l.capture = &loopbackStream{dir: captureDir, iface: l}
	return l.capture, nil
}

func (l *LoopbackInterface) OpenPlayback(device string) (Stream, error) {
	l.playback = &loopbackStream{dir: playbackDir, iface: l}
	return l.playback, nil
}

func (l *LoopbackInterface) LinkStreams(capture, playback Stream) bool {
	// The loopback harness always supports a linked start/stop.
	return true
}

func (l *LoopbackInterface) Close() error { return nil }

type direction int

const (
	captureDir direction = iota
	playbackDir
)

type loopbackStream struct {
	dir      direction
	iface    *LoopbackInterface
	access   AccessMode
	format   codec.Format
	channels int
	rate     int
	period   int
	periods  int
	buffer   int
	sw       SWParams
	started  bool

	// pendingCommit holds the backing array handed out by the most
	// recent MMapBegin call, so MMapCommit knows what to push onto the
	// interface's delay line.
	pendingCommit []byte

	// Test hooks.
	injectBrokenPipeOnce bool
	injectPollTimeout    bool
	injectPollInterrupt  bool
	rejectAccess         map[AccessMode]bool
	rejectFormat         map[codec.Format]bool
}

func (s *loopbackStream) HWParamsAny() error { return nil }

func (s *loopbackStream) SetAccess(a AccessMode) error {
	if s.rejectAccess[a] {
		return fmt.Errorf("soundio: access mode %v rejected", a)
	}
	s.access = a
	return nil
}

func (s *loopbackStream) SetFormat(f codec.Format) error {
	if s.rejectFormat[f] {
		return fmt.Errorf("soundio: format %v rejected", f)
	}
	s.format = f
	return nil
}

func (s *loopbackStream) SetRateNear(rate int) (int, error) {
	s.rate = rate
	return rate, nil
}

func (s *loopbackStream) MaxChannels() (int, error) {
	return 2, nil
}

func (s *loopbackStream) SetChannels(n int) error {
	s.channels = n
	return nil
}

func (s *loopbackStream) SetPeriodSizeNear(frames int) (int, error) {
	s.period = frames
	return frames, nil
}

func (s *loopbackStream) SetPeriodCount(n int) error {
	s.periods = n
	return nil
}

func (s *loopbackStream) SetBufferSize(frames int) error {
	s.buffer = frames
	return nil
}

func (s *loopbackStream) CommitHWParams() error { return nil }

func (s *loopbackStream) ConfigureSWParams(p SWParams) error {
	s.sw = p
	return nil
}

func (s *loopbackStream) Prepare() error {
	s.started = false
	return nil
}

func (s *loopbackStream) Start() error {
	s.started = true
	return nil
}

func (s *loopbackStream) Drop() error {
	s.started = false
	return nil
}

func (s *loopbackStream) Poll(timeoutMS int) (PollResult, error) {
	if s.injectPollInterrupt {
		s.injectPollInterrupt = false
		return PollResult{Interrupted: true}, nil
	}
	if s.injectPollTimeout {
		s.injectPollTimeout = false
		return PollResult{TimedOut: true}, nil
	}
	return PollResult{Writable: true}, nil
}

func (s *loopbackStream) AvailUpdate() (AvailResult, error) {
	if s.dir == captureDir && s.injectBrokenPipeOnce {
		s.injectBrokenPipeOnce = false
		return AvailResult{BrokenPipe: true}, nil
	}
	return AvailResult{Frames: s.period}, nil
}

func (s *loopbackStream) periodBytes() int {
	return s.period * bytesPerFrame(s.format, s.channels)
}

// MMapBegin hands back one ChannelArea per channel, sliced out of a
// freshly allocated period-sized scratch buffer. For the playback
// stream the buffer starts zeroed (silence) and the caller fills it in;
// for the capture stream it is pre-filled from the delay line.
func (s *loopbackStream) MMapBegin() ([]ChannelArea, int, int, error) {
	var raw = make([]byte, s.periodBytes())

	if s.dir == captureDir {
		if len(s.iface.delayLine) >= s.iface.delayPeriods {
			var front = s.iface.delayLine[0]
			s.iface.delayLine = s.iface.delayLine[1:]
			copy(raw, front)
		}
		// else: not enough periods have been committed yet — present
		// silence, modeling the startup delay.
	}

	if s.dir == playbackDir {
		s.pendingCommit = raw
	}

	var areas = splitAreas(raw, s.access, s.channels, s.format)
	return areas, 0, s.period, nil
}

func (s *loopbackStream) MMapCommit(offset int, frames int) error {
	if s.dir != playbackDir {
		return nil
	}
	if s.pendingCommit != nil {
		var snapshot = make([]byte, len(s.pendingCommit))
		copy(snapshot, s.pendingCommit)
		s.iface.delayLine = append(s.iface.delayLine, snapshot)
		s.pendingCommit = nil
	}
	return nil
}

func (s *loopbackStream) Delay() (int, error) {
	return len(s.iface.delayLine) * s.period, nil
}

func (s *loopbackStream) Access() AccessMode      { return s.access }
func (s *loopbackStream) Format() codec.Format     { return s.format }
func (s *loopbackStream) Channels() int            { return s.channels }
func (s *loopbackStream) PeriodFrames() int        { return s.period }
func (s *loopbackStream) BufferFrames() int        { return s.buffer }

func (s *loopbackStream) Close() error { return nil }

// splitAreas carves a raw period buffer into per-channel ChannelAreas
// according to the negotiated access mode.
func splitAreas(raw []byte, access AccessMode, channels int, format codec.Format) []ChannelArea {
	var sampleBytes = format.Bytes()
	var areas = make([]ChannelArea, channels)

	if access == Interleaved {
		var step = sampleBytes * channels * 8
		for c := 0; c < channels; c++ {
			areas[c] = ChannelArea{Base: raw, FirstBit: c * sampleBytes * 8, Step: step}
		}
		return areas
	}

	var chanBytes = len(raw) / channels
	for c := 0; c < channels; c++ {
		areas[c] = ChannelArea{Base: raw[c*chanBytes : (c+1)*chanBytes], FirstBit: 0, Step: sampleBytes * 8}
	}
	return areas
}

var _ Interface = (*LoopbackInterface)(nil)
var _ Stream = (*loopbackStream)(nil)

// InjectCaptureXrun arranges for the next AvailUpdate on the capture
// stream to report a broken-pipe xrun, for exercising step 4 / S3.
func (l *LoopbackInterface) InjectCaptureXrun() {
	if l.capture != nil {
		l.capture.injectBrokenPipeOnce = true
	}
}

// RejectAccess makes subsequent SetAccess(mode) calls on s fail, for
// exercising the access/format fallback steps of the negotiation
// procedure.
func RejectAccess(s Stream, mode AccessMode) {
	var lb, ok = s.(*loopbackStream)
	if !ok {
		return
	}
	if lb.rejectAccess == nil {
		lb.rejectAccess = make(map[AccessMode]bool)
	}
	lb.rejectAccess[mode] = true
}

// RejectFormat makes subsequent SetFormat(f) calls on s fail.
func RejectFormat(s Stream, f codec.Format) {
	var lb, ok = s.(*loopbackStream)
	if !ok {
		return
	}
	if lb.rejectFormat == nil {
		lb.rejectFormat = make(map[codec.Format]bool)
	}
	lb.rejectFormat[f] = true
}

// InjectPollTimeout arranges for the next Poll call on s to report a
// timeout (the "device is paused" no-op cycle, step 1).
func InjectPollTimeout(s Stream) {
	if lb, ok := s.(*loopbackStream); ok {
		lb.injectPollTimeout = true
	}
}

// InjectPollInterrupt arranges for the next Poll call on s to report an
// interrupted system call.
func InjectPollInterrupt(s Stream) {
	if lb, ok := s.(*loopbackStream); ok {
		lb.injectPollInterrupt = true
	}
}
