// Package soundio defines the contract this driver needs from a kernel
// sound interface, treated as an external collaborator, along with two
// implementations: an in-memory Loopback used by tests, and a
// PortAudio-backed adapter for real hardware.
package soundio

import (
	"errors"

	"github.com/doismellburning/jackio/internal/codec"
)

// AccessMode is the mmap access pattern negotiated for a stream.
type AccessMode int

const (
	// NonInterleaved gives each channel its own contiguous region.
	NonInterleaved AccessMode = iota
	// Interleaved packs all channels into one region, sample by sample.
	Interleaved
)

// ChannelArea describes one channel's view into a stream's mmap'd
// region for the current cycle: a byte slice, a first-bit offset (for
// parity with hardware interfaces that can start mid-word — always a
// multiple of 8 here, since our model never splits a byte across
// channels) and the bit step between successive samples.
type ChannelArea struct {
	Base     []byte
	FirstBit int
	Step     int // bits between successive samples of this channel
}

// SWParams are the software parameters configured after hardware
// parameters are committed.
type SWParams struct {
	StartThreshold   uint
	StopThreshold    uint
	SilenceThreshold uint
	SilenceSize      uint
	AvailMin         uint
}

// AvailResult is the result of AvailUpdate.
type AvailResult struct {
	Frames     int
	BrokenPipe bool // an xrun occurred on this stream
}

// PollResult is the result of Stream.Poll.
type PollResult struct {
	Writable    bool
	ErrorRevent bool
	TimedOut    bool
	Interrupted bool
}

// ErrFormatMismatch is returned by configuration callers (not Stream
// itself) when capture and playback disagree on a cross-stream
// invariant; kept here so both configurator and soundio tests can refer
// to one sentinel.
var ErrFormatMismatch = errors.New("soundio: capture/playback parameter mismatch")

// Stream is one direction (capture or playback) of a PCM device.
//
// The hw-params/sw-params methods are used only during negotiation
// and may allocate. Prepare, Start and Drop are called from the
// driver's lifecycle methods and from xrun recovery; Poll, AvailUpdate,
// MMapBegin, MMapCommit and Delay are called from the audio thread each
// cycle. Both implementations in this package allocate a period-sized
// buffer in MMapBegin, and the PortAudio one also in MMapCommit.
type Stream interface {
	// HWParamsAny resets this stream's working hardware-parameter
	// space to "any", the starting point for negotiation.
	HWParamsAny() error
	SetAccess(AccessMode) error
	SetFormat(codec.Format) error
	// SetRateNear requests rate and returns what was actually granted.
	SetRateNear(rate int) (actual int, err error)
	MaxChannels() (int, error)
	SetChannels(n int) error
	// SetPeriodSizeNear requests a period size in frames and returns
	// what the device actually granted.
	SetPeriodSizeNear(frames int) (actual int, err error)
	SetPeriodCount(n int) error
	SetBufferSize(frames int) error
	CommitHWParams() error
	ConfigureSWParams(SWParams) error

	Prepare() error
	Start() error
	Drop() error

	// Poll waits up to timeoutMS milliseconds for this stream to
	// become ready, per step 1. Only meaningful on a playback
	// stream in this driver's usage.
	Poll(timeoutMS int) (PollResult, error)

	AvailUpdate() (AvailResult, error)
	// MMapBegin returns one ChannelArea per channel for the current
	// contiguous span, the frame offset within the ring buffer, and
	// how many frames are contiguously available from that offset.
	MMapBegin() (areas []ChannelArea, offset int, contiguous int, err error)
	MMapCommit(offset int, frames int) error
	// Delay reports frames of latency currently queued (used for xrun
	// recovery reporting).
	Delay() (frames int, err error)

	Access() AccessMode
	Format() codec.Format
	Channels() int
	PeriodFrames() int
	BufferFrames() int

	Close() error
}

// Interface is the sound-interface contract this driver consumes.
type Interface interface {
	OpenCapture(device string) (Stream, error)
	OpenPlayback(device string) (Stream, error)
	// LinkStreams attempts to hardware-link two streams so their
	// start/stop are synchronized. Returns whether linking succeeded;
	// an unlinked pair must be prepared/started/stopped independently.
	LinkStreams(capture, playback Stream) bool
	Close() error
}

// bytesPerFrame returns how many bytes one frame (all channels) takes
// for the given format/channel count.
func bytesPerFrame(format codec.Format, channels int) int {
	return format.Bytes() * channels
}
