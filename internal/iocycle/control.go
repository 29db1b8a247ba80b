package iocycle

import (
	"sync/atomic"

	"github.com/doismellburning/jackio/internal/bitset"
)

// ControlState holds the fields the engine's control thread mutates
// concurrently with the audio thread's per-cycle reads: the input
// monitor mask, the all-monitor-in and hardware-monitoring flags, and
// channels awaiting a pending silence. Every field here is published
// with atomic operations under a single-writer (control thread),
// single-reader (audio thread) discipline — the audio thread takes one
// consistent snapshot at the top of each cycle rather than reading
// these fields individually mid-cycle.
type ControlState struct {
	mask           atomic.Pointer[bitset.Set]
	pendingSilence atomic.Pointer[bitset.Set]
	allMonitorIn   atomic.Bool
	hwMonitoring   atomic.Bool
}

// NewControlState returns a ControlState sized for maxChannels monitor
// slots, with an empty mask and no pending silence requests.
func NewControlState(maxChannels int) *ControlState {
	var c = &ControlState{}
	c.mask.Store(bitset.New(maxChannels))
	c.pendingSilence.Store(bitset.New(maxChannels))
	return c
}

// SetInputMonitorMask publishes a new monitor mask wholesale. Callers
// pass ownership of mask; ControlState clones it so later caller-side
// mutation can't race the audio thread's read.
func (c *ControlState) SetInputMonitorMask(mask *bitset.Set) {
	c.mask.Store(mask.Clone())
}

// SetAllMonitorIn toggles the force-monitor-everything flag.
func (c *ControlState) SetAllMonitorIn(on bool) { c.allMonitorIn.Store(on) }

// SetHardwareMonitoring toggles whether hardware-native monitoring is
// in effect (as opposed to the software copy-loop fallback).
func (c *ControlState) SetHardwareMonitoring(on bool) { c.hwMonitoring.Store(on) }

// RequestSilence marks channel p to be silenced starting the next
// cycle, e.g. when retracting the last outstanding monitor request on
// it so lingering signal doesn't continue to the output.
func (c *ControlState) RequestSilence(p int) {
	var current = c.pendingSilence.Load()
	var next = current.Clone()
	next.Set(p)
	c.pendingSilence.Store(next)
}

// Snapshot is the consistent view the audio thread takes at the top of
// a cycle.
type Snapshot struct {
	Mask           *bitset.Set
	AllMonitorIn   bool
	HWMonitoring   bool
}

// Take returns a Snapshot of the non-silence fields, and separately
// returns the pending-silence set, replacing it with an empty set of the
// same size via compare-and-swap. A RequestSilence racing with Take is
// never lost: its channel lands in the set this cycle consumes or the
// next one. In that race the channels already pending can be returned
// again by the next Take as well.
func (c *ControlState) Take() (Snapshot, *bitset.Set) {
	var mask = c.mask.Load()
	var snap = Snapshot{Mask: mask, AllMonitorIn: c.allMonitorIn.Load(), HWMonitoring: c.hwMonitoring.Load()}

	var old = c.pendingSilence.Load()
	c.pendingSilence.CompareAndSwap(old, bitset.New(old.Len()))
	return snap, old
}
