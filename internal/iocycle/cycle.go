// Package iocycle implements the real-time audio I/O hot loop: wait,
// acquire, process, commit, with xrun detection and recovery.
// Every exported method here is meant to be called from exactly one
// real-time audio thread; cross-thread configuration changes flow in
// through ControlState instead.
package iocycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doismellburning/jackio/internal/bitset"
	"github.com/doismellburning/jackio/internal/channelmap"
	"github.com/doismellburning/jackio/internal/codec"
	"github.com/doismellburning/jackio/internal/engine"
	"github.com/doismellburning/jackio/internal/hwprofile"
	"github.com/doismellburning/jackio/internal/soundio"
	"github.com/doismellburning/jackio/internal/xlog"
)

// Outcome is the tri-state result of one cycle.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeSkipped
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "fatal"
	}
}

// ErrUnrecoverableXrun names an xrun that cannot be recovered. RunOnce
// does not return it: the Engine contract has no way to declare xruns
// fatal, and every xrun is handled by recoverXrun's stop+start.
var ErrUnrecoverableXrun = errors.New("iocycle: unrecoverable xrun")

// PollErr wraps a poll-phase failure other than a retried interrupt.
type PollErr struct{ Err error }

func (e *PollErr) Error() string { return fmt.Sprintf("iocycle: poll error: %v", e.Err) }
func (e *PollErr) Unwrap() error { return e.Err }

// EngineProcessErr wraps a non-zero return from engine.Process.
type EngineProcessErr struct{ Code int }

func (e *EngineProcessErr) Error() string {
	return fmt.Sprintf("iocycle: engine.Process returned %d", e.Code)
}

// Config wires a Cycle to its collaborators. CapturePorts[c] and
// PlaybackPorts[p] are this driver's physical port handles, already
// registered with Engine; ChannelMap must be sized to len(PlaybackPorts).
type Config struct {
	Capture  soundio.Stream
	Playback soundio.Stream
	Engine   engine.Engine
	Codec    codec.Codec
	Format   codec.Format
	Profile  hwprofile.Profile
	Control  *ControlState

	CapturePorts  []engine.Port
	PlaybackPorts []engine.Port
	ChannelMap    *channelmap.State

	FramesPerCycle int

	// RetryPollInterrupt mirrors the "running under a debugger" flag:
	// when true, an interrupted poll retries instead of returning a
	// skipped cycle.
	RetryPollInterrupt bool

	// Now returns the current time; overridable in tests. Defaults to
	// time.Now.
	Now func() time.Time

	Log *xlog.Logger
}

// Cycle runs the hot loop against one capture/playback stream pair.
type Cycle struct {
	cfg Config

	// previousMask is the audio thread's own record of the
	// input-monitor mask as of the last cycle, used to detect changes
	// that must be pushed to hardware without re-reading
	// the cross-thread snapshot mid-comparison.
	previousMask *bitset.Set

	// previousClockSync is the last clock-lock reading seen per capture
	// channel, so a change only notifies the engine once.
	previousClockSync []hwprofile.ClockSyncStatus

	cycleIndex int

	stats Stats
}

// Stats is a snapshot of running totals since the Cycle was
// constructed, for a caller that wants to log or export basic health
// numbers without instrumenting the hot loop itself.
type Stats struct {
	CyclesRun       int
	CyclesSkipped   int
	XrunsRecovered  int
	FramesProcessed int
}

// Stats returns the current running totals.
func (c *Cycle) Stats() Stats { return c.stats }

// New constructs a Cycle. cfg.ChannelMap must already be sized to
// len(cfg.PlaybackPorts).
func New(cfg Config) *Cycle {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cycle{
		cfg:               cfg,
		previousMask:      bitset.New(maxInt(len(cfg.CapturePorts), len(cfg.PlaybackPorts))),
		previousClockSync: make([]hwprofile.ClockSyncStatus, len(cfg.CapturePorts)),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// RunOnce executes exactly one hot-loop iteration. It blocks for
// at most 1000ms inside the poll step.
func (c *Cycle) RunOnce(ctx context.Context) (Outcome, error) {
	c.cycleIndex++
	c.stats.CyclesRun++

	// Step 1: poll.
	for {
		var poll, err = c.cfg.Playback.Poll(1000)
		if err != nil {
			return OutcomeFatal, &PollErr{Err: err}
		}
		if poll.Interrupted {
			if c.cfg.RetryPollInterrupt {
				select {
				case <-ctx.Done():
					c.stats.CyclesSkipped++
					return OutcomeSkipped, nil
				default:
					continue
				}
			}
			c.stats.CyclesSkipped++
			return OutcomeSkipped, nil
		}
		if poll.ErrorRevent {
			return OutcomeFatal, &PollErr{Err: fmt.Errorf("error revent on playback descriptor")}
		}
		if poll.TimedOut {
			return OutcomeOK, nil
		}
		break
	}

	// Step 2: timestamp (kept for xrun-recovery elapsed-time reporting).
	var timeAtInterrupt = c.cfg.Now()

	// Step 3: query available frames.
	var captureAvail, capErr = c.cfg.Capture.AvailUpdate()
	if capErr != nil {
		return OutcomeFatal, fmt.Errorf("iocycle: capture avail_update: %w", capErr)
	}
	var playbackAvail, playErr = c.cfg.Playback.AvailUpdate()
	if playErr != nil {
		return OutcomeFatal, fmt.Errorf("iocycle: playback avail_update: %w", playErr)
	}

	// Step 4: xrun detection and recovery.
	if captureAvail.BrokenPipe || playbackAvail.BrokenPipe {
		return c.recoverXrun(timeAtInterrupt)
	}

	// Step 5.
	var avail = minInt(captureAvail.Frames, playbackAvail.Frames)

	var snapshot, pendingSilence = c.cfg.Control.Take()
	pendingSilence.Range(func(p int) { c.cfg.ChannelMap.MarkPendingSilence(p) })

	c.pollClockSync()

	// Step 6.
	for avail > 0 {
		var workUnit = avail
		if workUnit > c.cfg.FramesPerCycle {
			workUnit = c.cfg.FramesPerCycle
		}

		var captureAreas, captureOffset, captureContig, cErr = c.cfg.Capture.MMapBegin()
		if cErr != nil {
			return OutcomeFatal, fmt.Errorf("iocycle: capture mmap_begin: %w", cErr)
		}
		var playbackAreas, playbackOffset, playbackContig, pErr = c.cfg.Playback.MMapBegin()
		if pErr != nil {
			return OutcomeFatal, fmt.Errorf("iocycle: playback mmap_begin: %w", pErr)
		}

		var contiguous = minInt(minInt(captureContig, playbackContig), workUnit)
		if contiguous <= 0 {
			break
		}

		// Step d: apply pending silences queued through
		// ControlState.RequestSilence (a retracted monitor request or
		// MarkChannelSilent).
		c.cfg.ChannelMap.ConsumePendingSilence(contiguous, func(channel, frames int) {
			c.writeSilence(playbackAreas[channel], frames)
		})

		// Step e.
		c.cfg.ChannelMap.BeginCycle()

		// Step f: push a changed monitor mask to hardware. Notifying the
		// engine and queuing pending silence for a retracted channel
		// already happened synchronously when the monitor request came
		// in (driver.Shell.RequestMonitorInput); this step only mirrors
		// the mask to hardware, matching what the wait loop this is
		// ported from does.
		if !snapshot.Mask.Equal(c.previousMask) {
			if snapshot.HWMonitoring && !snapshot.AllMonitorIn {
				var channels []int
				snapshot.Mask.Range(func(i int) { channels = append(channels, i) })
				if err := c.cfg.Profile.SetInputMonitorMask(channels); err != nil {
					c.logf("set_input_monitor_mask failed: %v", err)
				}
			}
			c.previousMask = snapshot.Mask.Clone()
		}

		// Capture-side copy-in, standing in for the "second process
		// hook": populate capture port buffers before the engine
		// graph runs so clients observe this cycle's frames.
		for ch, port := range c.cfg.CapturePorts {
			var area = captureAreas[ch]
			var src, srcStride = channelBytes(area, captureOffset)
			var dst = c.cfg.Engine.PortGetBuffer(port, contiguous)
			c.cfg.Codec.Read(dst, src, contiguous, srcStride)
		}

		// Step g.
		if code := c.cfg.Engine.Process(contiguous); code != 0 {
			return OutcomeFatal, &EngineProcessErr{Code: code}
		}

		// Step h: playback port buffers -> playback channels.
		for ch, port := range c.cfg.PlaybackPorts {
			var area = playbackAreas[ch]
			var dst, dstStride = channelBytes(area, playbackOffset)
			var src = c.cfg.Engine.PortGetBuffer(port, contiguous)
			c.cfg.Codec.Write(dst, src, contiguous, dstStride, 1.0)
			c.cfg.ChannelMap.MarkDone(ch)
		}

		// Step i: software monitoring fallback.
		if !snapshot.HWMonitoring && (snapshot.AllMonitorIn || !snapshot.Mask.IsZero()) {
			var limit = minInt(len(c.cfg.CapturePorts), len(c.cfg.PlaybackPorts))
			for ch := 0; ch < limit; ch++ {
				if !snapshot.AllMonitorIn && !snapshot.Mask.Test(ch) {
					continue
				}
				var src, srcStride = channelBytes(captureAreas[ch], captureOffset)
				var dst, dstStride = channelBytes(playbackAreas[ch], playbackOffset)
				c.cfg.Codec.Copy(dst, src, contiguous*c.cfg.Format.Bytes(), dstStride, srcStride)
				c.cfg.ChannelMap.MarkDone(ch)
			}
		}

		// Step j.
		c.cfg.ChannelMap.SilenceUntouched(contiguous, func(channel, frames int) {
			c.writeSilence(playbackAreas[channel], frames)
		})

		// Step k.
		if err := c.cfg.Capture.MMapCommit(captureOffset, contiguous); err != nil {
			return OutcomeFatal, fmt.Errorf("iocycle: capture mmap_commit: %w", err)
		}
		if err := c.cfg.Playback.MMapCommit(playbackOffset, contiguous); err != nil {
			return OutcomeFatal, fmt.Errorf("iocycle: playback mmap_commit: %w", err)
		}

		// Step l.
		avail -= contiguous
		c.stats.FramesProcessed += contiguous
	}

	return OutcomeOK, nil
}

// pollClockSync reports the HardwareProfile's clock-lock reading for
// every capture channel to the engine, once per cycle, but only when
// it has changed since the last reading.
func (c *Cycle) pollClockSync() {
	for ch := range c.previousClockSync {
		var status = c.cfg.Profile.ClockSyncStatus(ch)
		if status == c.previousClockSync[ch] {
			continue
		}
		c.previousClockSync[ch] = status
		c.cfg.Engine.NotifyClockSync(ch, engineClockSyncStatus(status))
	}
}

// engineClockSyncStatus converts a HardwareProfile reading into the
// Engine package's own enum; the two are defined independently so a
// profile and an engine implementation can live in separate modules.
func engineClockSyncStatus(s hwprofile.ClockSyncStatus) engine.ClockSyncStatus {
	if s == hwprofile.NoLock {
		return engine.NoLock
	}
	return engine.Lock
}

// recoverXrun reports the xrun, then stops and restarts both streams,
// discarding the current cycle's work.
func (c *Cycle) recoverXrun(at time.Time) (Outcome, error) {
	c.stats.XrunsRecovered++
	var delay, _ = c.cfg.Capture.Delay()
	c.logf("xrun detected: capture delay %d frames, elapsed since %s", delay, xlog.FormatElapsed(at))

	if err := c.cfg.Capture.Drop(); err != nil {
		return OutcomeFatal, fmt.Errorf("iocycle: xrun stop capture: %w", err)
	}
	if err := c.cfg.Playback.Drop(); err != nil {
		return OutcomeFatal, fmt.Errorf("iocycle: xrun stop playback: %w", err)
	}
	if err := c.cfg.Capture.Prepare(); err != nil {
		return OutcomeFatal, fmt.Errorf("iocycle: xrun restart capture: %w", err)
	}
	if err := c.cfg.Playback.Prepare(); err != nil {
		return OutcomeFatal, fmt.Errorf("iocycle: xrun restart playback: %w", err)
	}
	if err := c.cfg.Capture.Start(); err != nil {
		return OutcomeFatal, fmt.Errorf("iocycle: xrun restart capture: %w", err)
	}
	if err := c.cfg.Playback.Start(); err != nil {
		return OutcomeFatal, fmt.Errorf("iocycle: xrun restart playback: %w", err)
	}

	return OutcomeSkipped, nil
}

func (c *Cycle) logf(format string, args ...any) {
	if c.cfg.Log == nil {
		return
	}
	c.cfg.Log.WithCycle(c.cycleIndex, c.cfg.FramesPerCycle).Warn(fmt.Sprintf(format, args...))
}

// writeSilence zeroes frames worth of samples in area via the codec's
// strided memset.
func (c *Cycle) writeSilence(area soundio.ChannelArea, frames int) {
	var dst, stride = channelBytes(area, 0)
	var unit = c.cfg.Format.Bytes()
	c.cfg.Codec.MemsetStrided(dst, frames*unit, unit, stride)
}

// channelBytes converts a ChannelArea's bit-addressed offset/step into
// a byte slice and byte stride, advancing by offsetFrames frames first.
func channelBytes(area soundio.ChannelArea, offsetFrames int) ([]byte, int) {
	var strideBytes = area.Step / 8
	var startByte = area.FirstBit/8 + offsetFrames*strideBytes
	return area.Base[startByte:], strideBytes
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
