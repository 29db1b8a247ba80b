// Package channelmap tracks, per I/O cycle, which playback channels the
// engine has written and which still owe silence, and the running count
// of frames silenced since each channel's last real write.
package channelmap

import "github.com/doismellburning/jackio/internal/bitset"

// State is the per-cycle bookkeeping for P playback channels.
//
// It is owned by a single audio thread; nothing here is safe for
// concurrent use, matching the single-reader audio-thread discipline the
// rest of this driver follows.
type State struct {
	channels int

	channelsNotDone *bitset.Set
	silencePending  *bitset.Set

	silent      []int // frames of silence already written, saturating at bufferFrames
	bufferFrames int
}

// New returns a State for the given playback channel count and the
// buffer size (in frames) at which silent[p] saturates.
func New(channels int, bufferFrames int) *State {
	return &State{
		channels:        channels,
		channelsNotDone: bitset.New(channels),
		silencePending:  bitset.New(channels),
		silent:          make([]int, channels),
		bufferFrames:    bufferFrames,
	}
}

// BeginCycle resets channelsNotDone to "every output channel still owes
// a write this cycle".
func (s *State) BeginCycle() {
	s.channelsNotDone.SetAll()
}

// MarkDone records that channel p was written (or explicitly silenced as
// a write) this cycle: its "not done" bit clears and its silence run
// resets to zero.
func (s *State) MarkDone(p int) {
	s.channelsNotDone.Clear(p)
	s.silent[p] = 0
}

// Done reports whether channel p has been written this cycle.
func (s *State) Done(p int) bool {
	return !s.channelsNotDone.Test(p)
}

// MarkPendingSilence requests that channel p be force-silenced at the
// start of the NEXT cycle — used when a monitor bit is cleared, so
// lingering signal doesn't keep playing once the route is dropped.
func (s *State) MarkPendingSilence(p int) {
	s.silencePending.Set(p)
}

// ConsumePendingSilence writes `span` silent frames to every channel
// with a pending-silence request via writeSilence, then clears the
// request set.
func (s *State) ConsumePendingSilence(span int, writeSilence func(channel int, frames int)) {
	s.silencePending.Range(func(p int) {
		writeSilence(p, span)
	})
	s.silencePending.ClearAll()
}

// SilenceUntouched writes `span` silent frames, via writeSilence, to
// every channel still marked "not done", advancing its silence run
// unless it has already saturated at bufferFrames: once
// silent[p] == bufferFrames, silencing that channel is a no-op.
func (s *State) SilenceUntouched(span int, writeSilence func(channel int, frames int)) {
	s.channelsNotDone.Range(func(p int) {
		if s.silent[p] >= s.bufferFrames {
			return
		}
		writeSilence(p, span)
		s.silent[p] += span
		if s.silent[p] > s.bufferFrames {
			s.silent[p] = s.bufferFrames
		}
	})
}

// Silent returns the current silence run length for channel p.
func (s *State) Silent(p int) int {
	return s.silent[p]
}

// AnyNotDone reports whether any output channel still owes a write or
// silence this cycle.
func (s *State) AnyNotDone() bool {
	return !s.channelsNotDone.IsZero()
}
