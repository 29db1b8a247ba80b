// Package configurator negotiates ALSA-style hardware and software
// parameters on a capture/playback stream pair, following the nine-step
// procedure a real driver runs once at construction time.
package configurator

import (
	"errors"
	"fmt"
	"math"

	"github.com/doismellburning/jackio/internal/codec"
	"github.com/doismellburning/jackio/internal/soundio"
)

// channelsMaxSentinel is the value ALSA reports for an unconfigured
// default device's maximum channel count; anything above it is not a
// real hardware limit and gets clamped to a sane stereo default.
const channelsMaxSentinel = 1024

// Negotiated holds the outcome of a successful negotiation: the
// parameters both streams ended up agreeing on.
type Negotiated struct {
	Access               soundio.AccessMode
	Format               codec.Format
	Rate                 int
	Channels             int
	PeriodFrames         int
	PeriodCount          int
	BufferFrames         int
	CapturePlaybackLinked bool
}

// Configure runs the full negotiation against capture and
// playback, asserting the cross-stream invariants (period size, format,
// access mode) once both sides have committed.
func Configure(iface soundio.Interface, capture, playback soundio.Stream, rate, framesPerCycle, captureChannels, playbackChannels int) (Negotiated, error) {
	var capResult, capErr = configureOne(capture, rate, framesPerCycle, captureChannels)
	if capErr != nil {
		return Negotiated{}, fmt.Errorf("configurator: capture: %w", capErr)
	}
	var playResult, playErr = configureOne(playback, rate, framesPerCycle, playbackChannels)
	if playErr != nil {
		return Negotiated{}, fmt.Errorf("configurator: playback: %w", playErr)
	}

	if capResult.PeriodFrames != playResult.PeriodFrames {
		return Negotiated{}, fmt.Errorf("%w: capture period %d != playback period %d", soundio.ErrFormatMismatch, capResult.PeriodFrames, playResult.PeriodFrames)
	}
	if capResult.Format != playResult.Format {
		return Negotiated{}, fmt.Errorf("%w: capture format %v != playback format %v", soundio.ErrFormatMismatch, capResult.Format, playResult.Format)
	}
	if capResult.Access != playResult.Access {
		return Negotiated{}, fmt.Errorf("%w: capture access %v != playback access %v", soundio.ErrFormatMismatch, capResult.Access, playResult.Access)
	}

	var linked = iface.LinkStreams(capture, playback)

	return Negotiated{
		Access:                capResult.Access,
		Format:                capResult.Format,
		Rate:                  capResult.Rate,
		Channels:              capResult.Channels,
		PeriodFrames:          capResult.PeriodFrames,
		PeriodCount:           capResult.PeriodCount,
		BufferFrames:          capResult.BufferFrames,
		CapturePlaybackLinked: linked,
	}, nil
}

// configureOne runs the nine-step procedure against a single
// stream.
func configureOne(s soundio.Stream, rate, framesPerCycle, requestedChannels int) (Negotiated, error) {
	// Step 1: request "any" hardware configuration.
	if err := s.HWParamsAny(); err != nil {
		return Negotiated{}, fmt.Errorf("hw_params_any: %w", err)
	}

	// Step 2 is implicit: SetPeriodSizeNear below requires an
	// integer-valued period, which every Stream implementation here
	// guarantees by construction.

	// Step 3: prefer non-interleaved, fall back to interleaved.
	var access = soundio.NonInterleaved
	if err := s.SetAccess(access); err != nil {
		access = soundio.Interleaved
		if err2 := s.SetAccess(access); err2 != nil {
			return Negotiated{}, fmt.Errorf("no usable access mode: %w", errors.Join(err, err2))
		}
	}

	// Step 4: prefer 32-bit, fall back to 16-bit.
	var format = codec.S32LE
	if err := s.SetFormat(format); err != nil {
		format = codec.S16LE
		if err2 := s.SetFormat(format); err2 != nil {
			return Negotiated{}, fmt.Errorf("no usable sample format: %w", errors.Join(err, err2))
		}
	}

	// Step 5: set rate exactly.
	var actualRate, rateErr = s.SetRateNear(rate)
	if rateErr != nil {
		return Negotiated{}, fmt.Errorf("set_rate_near: %w", rateErr)
	}
	if actualRate != rate {
		return Negotiated{}, fmt.Errorf("rate %d not available, device offered %d", rate, actualRate)
	}

	// Step 6: read max channels; clamp the "unconfigured default
	// device" sentinel down to stereo.
	var maxChannels, maxErr = s.MaxChannels()
	if maxErr != nil {
		return Negotiated{}, fmt.Errorf("max_channels: %w", maxErr)
	}
	var channels = requestedChannels
	if maxChannels > channelsMaxSentinel {
		channels = int(math.Min(float64(channels), 2))
	} else if channels > maxChannels {
		channels = maxChannels
	}

	// Step 7: set channels, period size, period count, buffer size.
	if err := s.SetChannels(channels); err != nil {
		return Negotiated{}, fmt.Errorf("set_channels(%d): %w", channels, err)
	}
	var actualPeriod, periodErr = s.SetPeriodSizeNear(framesPerCycle)
	if periodErr != nil {
		return Negotiated{}, fmt.Errorf("set_period_size_near: %w", periodErr)
	}
	const periodCount = 2
	if err := s.SetPeriodCount(periodCount); err != nil {
		return Negotiated{}, fmt.Errorf("set_period_count: %w", err)
	}
	var bufferFrames = 2 * actualPeriod
	if err := s.SetBufferSize(bufferFrames); err != nil {
		return Negotiated{}, fmt.Errorf("set_buffer_size: %w", err)
	}

	// Step 8: commit hardware parameters.
	if err := s.CommitHWParams(); err != nil {
		return Negotiated{}, fmt.Errorf("commit hw_params: %w", err)
	}

	// Step 9: software parameters — never auto-trigger, no silence
	// threshold (we manage silence ourselves), avail-min one period.
	var sw = soundio.SWParams{
		StartThreshold:   math.MaxUint32,
		StopThreshold:    math.MaxUint32,
		SilenceThreshold: 0,
		SilenceSize:      uint(actualPeriod * periodCount),
		AvailMin:         uint(actualPeriod),
	}
	if err := s.ConfigureSWParams(sw); err != nil {
		return Negotiated{}, fmt.Errorf("configure sw_params: %w", err)
	}

	return Negotiated{
		Access:       access,
		Format:       format,
		Rate:         actualRate,
		Channels:     channels,
		PeriodFrames: actualPeriod,
		PeriodCount:  periodCount,
		BufferFrames: bufferFrames,
	}, nil
}
