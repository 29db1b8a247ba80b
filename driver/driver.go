// Package driver assembles the sound-interface, hardware-profile,
// configurator, channel-map, and io-cycle pieces into the lifecycle the
// engine actually drives: construct, attach, start, stop, detach,
// destroy, plus the monitor-request control API.
package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/doismellburning/jackio/internal/bitset"
	"github.com/doismellburning/jackio/internal/channelmap"
	"github.com/doismellburning/jackio/internal/codec"
	"github.com/doismellburning/jackio/internal/configurator"
	"github.com/doismellburning/jackio/internal/engine"
	"github.com/doismellburning/jackio/internal/hwprofile"
	"github.com/doismellburning/jackio/internal/iocycle"
	"github.com/doismellburning/jackio/internal/soundio"
	"github.com/doismellburning/jackio/internal/xlog"
)

// State is the driver's lifecycle state.
type State int

const (
	StateConfigured State = iota
	StateAttached
	StateRunning
	StateXrunRecovering
	StateStopped
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateAttached:
		return "attached"
	case StateRunning:
		return "running"
	case StateXrunRecovering:
		return "xrun-recovering"
	case StateStopped:
		return "stopped"
	default:
		return "destroyed"
	}
}

// Config are the constructor parameters.
type Config struct {
	DeviceName       string
	DriverName       string // card's advertised driver name, for HardwareProfile.Select
	FramesPerCycle   int
	SampleRate       int
	CaptureChannels  int
	PlaybackChannels int
	// MinLevel/MaxLevel override the codec's default clamp range; zero
	// means "use the format default".
	MinLevel, MaxLevel int32
	// PrimingPeriods is how many negotiated periods of playback silence
	// Start writes before the stream starts running; zero means the
	// default of 2. Only the leading PrimingPeriods*PeriodFrames frames
	// of the buffer are primed, not the whole buffer, matching how the
	// original driver primed a configurable number of fragments rather
	// than rewriting the entire ring on every start.
	PrimingPeriods int
	Log            *xlog.Logger
}

// defaultPrimingPeriods is used when Config.PrimingPeriods is zero.
const defaultPrimingPeriods = 2

// Shell is one physical device's driver instance. Attach registers its
// ports with the engine directly; it does not create a named engine
// client.
type Shell struct {
	cfg Config

	iface    soundio.Interface
	capture  soundio.Stream
	playback soundio.Stream

	negotiated configurator.Negotiated
	profile    hwprofile.Profile
	sampleCodec codec.Codec

	eng     engine.Engine
	control *iocycle.ControlState
	chanMap *channelmap.State
	cycle   *iocycle.Cycle

	capturePorts  []engine.Port
	playbackPorts []engine.Port

	mu              sync.Mutex
	monitorRequests []int
	allMonitorIn    bool
	hwMonitoring    bool

	state State
}

// Construct runs StreamConfigurator against a freshly opened
// capture/playback pair and selects a HardwareProfile, but does not yet
// attach to an engine.
func Construct(cfg Config, iface soundio.Interface) (*Shell, error) {
	var capture, capErr = iface.OpenCapture(cfg.DeviceName)
	if capErr != nil {
		return nil, fmt.Errorf("driver: open capture %q: %w", cfg.DeviceName, capErr)
	}
	var playback, playErr = iface.OpenPlayback(cfg.DeviceName)
	if playErr != nil {
		return nil, fmt.Errorf("driver: open playback %q: %w", cfg.DeviceName, playErr)
	}

	var negotiated, negErr = configurator.Configure(iface, capture, playback, cfg.SampleRate, cfg.FramesPerCycle, cfg.CaptureChannels, cfg.PlaybackChannels)
	if negErr != nil {
		return nil, fmt.Errorf("driver: negotiate parameters: %w", negErr)
	}

	var profile = hwprofile.Select(cfg.DriverName)

	var levels codec.Levels
	if cfg.MinLevel != 0 || cfg.MaxLevel != 0 {
		levels = codec.Levels{Min: cfg.MinLevel, Max: cfg.MaxLevel}
	}

	var maxChannels = negotiated.Channels
	if cfg.CaptureChannels > maxChannels {
		maxChannels = cfg.CaptureChannels
	}

	return &Shell{
		cfg:             cfg,
		iface:           iface,
		capture:         capture,
		playback:        playback,
		negotiated:      negotiated,
		profile:         profile,
		sampleCodec:     codec.New(negotiated.Format, levels),
		control:         iocycle.NewControlState(maxChannels),
		chanMap:         channelmap.New(negotiated.Channels, negotiated.BufferFrames),
		monitorRequests: make([]int, maxChannels),
		state:           StateConfigured,
	}, nil
}

// Attach stores the engine, pushes negotiated parameters to it,
// registers physical ports, and activates the client.
func (s *Shell) Attach(e engine.Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfigured {
		return fmt.Errorf("driver: Attach called in state %v, want Configured", s.state)
	}

	if err := e.SetBufferSize(s.negotiated.PeriodFrames); err != nil {
		return fmt.Errorf("driver: set_buffer_size: %w", err)
	}
	if err := e.SetSampleRate(s.negotiated.Rate); err != nil {
		return fmt.Errorf("driver: set_sample_rate: %w", err)
	}

	s.capturePorts = make([]engine.Port, s.negotiated.Channels)
	s.playbackPorts = make([]engine.Port, s.negotiated.Channels)
	for c := 0; c < s.negotiated.Channels; c++ {
		var inPort, inErr = e.RegisterPort(fmt.Sprintf("Input %d", c+1), engine.PortIsOutput|engine.PortIsPhysical|engine.PortCanMonitor)
		if inErr != nil {
			return fmt.Errorf("driver: register capture port %d: %w", c, inErr)
		}
		var outPort, outErr = e.RegisterPort(fmt.Sprintf("Output %d", c+1), engine.PortIsInput|engine.PortIsPhysical)
		if outErr != nil {
			return fmt.Errorf("driver: register playback port %d: %w", c, outErr)
		}
		s.capturePorts[c] = inPort
		s.playbackPorts[c] = outPort
	}

	s.eng = e
	s.cycle = iocycle.New(iocycle.Config{
		Capture:        s.capture,
		Playback:       s.playback,
		Engine:         e,
		Codec:          s.sampleCodec,
		Format:         s.negotiated.Format,
		Profile:        s.profile,
		Control:        s.control,
		CapturePorts:   s.capturePorts,
		PlaybackPorts:  s.playbackPorts,
		ChannelMap:     s.chanMap,
		FramesPerCycle: s.negotiated.PeriodFrames,
		Log:            s.cfg.Log,
	})

	if err := e.Activate(); err != nil {
		return fmt.Errorf("driver: activate: %w", err)
	}

	s.state = StateAttached
	return nil
}

// Start prepares both streams, primes the playback buffer with
// silence, and starts the audio flowing.
func (s *Shell) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAttached && s.state != StateStopped {
		return fmt.Errorf("driver: Start called in state %v", s.state)
	}

	if err := s.playback.Prepare(); err != nil {
		return fmt.Errorf("driver: prepare playback: %w", err)
	}
	if !s.negotiated.CapturePlaybackLinked {
		if err := s.capture.Prepare(); err != nil {
			return fmt.Errorf("driver: prepare capture: %w", err)
		}
	}

	if s.hwMonitoring {
		s.pushMonitorMaskLocked()
	}

	if err := s.primePlaybackBuffer(); err != nil {
		return fmt.Errorf("driver: prime playback buffer: %w", err)
	}

	if err := s.playback.Start(); err != nil {
		return fmt.Errorf("driver: start playback: %w", err)
	}
	if !s.negotiated.CapturePlaybackLinked {
		if err := s.capture.Start(); err != nil {
			return fmt.Errorf("driver: start capture: %w", err)
		}
	}

	s.pushMonitorMaskLocked()

	s.state = StateRunning
	return nil
}

// primePlaybackBuffer acquires PrimingPeriods periods' worth of the
// playback mmap region (clamped to BufferFrames) and commits it
// zeroed, so Start doesn't hand the engine whatever garbage was last
// in the ring.
func (s *Shell) primePlaybackBuffer() error {
	var periods = s.cfg.PrimingPeriods
	if periods <= 0 {
		periods = defaultPrimingPeriods
	}
	var remaining = periods * s.negotiated.PeriodFrames
	if remaining > s.negotiated.BufferFrames {
		remaining = s.negotiated.BufferFrames
	}
	for remaining > 0 {
		var areas, offset, contig, err = s.playback.MMapBegin()
		if err != nil {
			return err
		}
		if contig > remaining {
			contig = remaining
		}
		if contig <= 0 {
			break
		}
		for _, area := range areas {
			var unit = s.negotiated.Format.Bytes()
			s.sampleCodec.MemsetStrided(area.Base[area.FirstBit/8:], contig*unit, unit, area.Step/8)
		}
		if err := s.playback.MMapCommit(offset, contig); err != nil {
			return err
		}
		remaining -= contig
	}
	return nil
}

// Stop drops both streams and clears the hardware monitor mask.
func (s *Shell) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning && s.state != StateXrunRecovering {
		return fmt.Errorf("driver: Stop called in state %v", s.state)
	}

	var playErr = s.playback.Drop()
	var capErr error
	if !s.negotiated.CapturePlaybackLinked {
		capErr = s.capture.Drop()
	}
	if err := s.profile.SetInputMonitorMask(nil); err != nil {
		s.logf("clear monitor mask on stop failed: %v", err)
	}

	s.state = StateStopped
	if playErr != nil {
		return fmt.Errorf("driver: drop playback: %w", playErr)
	}
	if capErr != nil {
		return fmt.Errorf("driver: drop capture: %w", capErr)
	}
	return nil
}

// Detach drops the engine reference; port unregistration is the
// engine's responsibility once it sees the client disappear.
func (s *Shell) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eng = nil
	s.cycle = nil
	s.capturePorts = nil
	s.playbackPorts = nil
	s.state = StateConfigured
	return nil
}

// Destroy releases every resource this Shell owns.
func (s *Shell) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if err := s.capture.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.playback.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.profile.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := s.iface.Close(); err != nil {
		errs = append(errs, err)
	}
	s.state = StateDestroyed

	if len(errs) > 0 {
		return fmt.Errorf("driver: destroy: %v", errs)
	}
	return nil
}

// WaitOneCycle runs a single IOCycle iteration.
func (s *Shell) WaitOneCycle(ctx context.Context) (iocycle.Outcome, error) {
	if s.cycle == nil {
		return iocycle.OutcomeFatal, fmt.Errorf("driver: WaitOneCycle called before Attach")
	}
	var outcome, err = s.cycle.RunOnce(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateXrunRecovering
		s.mu.Unlock()
	}
	return outcome, err
}

// RequestMonitorInput adjusts channel c's monitor reference count.
// Channels outside [0, M) are a no-op.
func (s *Shell) RequestMonitorInput(c int, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c < 0 || c >= len(s.monitorRequests) {
		return
	}

	var before = s.monitorRequests[c]
	if on {
		s.monitorRequests[c]++
	} else if s.monitorRequests[c] > 0 {
		s.monitorRequests[c]--
	}
	var after = s.monitorRequests[c]

	if before == 0 && after > 0 {
		s.setMonitorBitLocked(c, true)
	} else if before > 0 && after == 0 {
		s.setMonitorBitLocked(c, false)
		if !s.hwMonitoring {
			s.control.RequestSilence(c)
		}
	}
}

func (s *Shell) setMonitorBitLocked(c int, on bool) {
	var mask = bitsetFromRequests(s.monitorRequests)
	if on {
		mask.Set(c)
	} else {
		mask.Clear(c)
	}
	s.control.SetInputMonitorMask(mask)
	if s.eng != nil {
		s.eng.NotifyMonitor(c, on)
	}
	if s.hwMonitoring {
		s.pushMonitorMaskLocked()
	}
}

// RequestAllMonitorInput toggles force-monitor-everything.
func (s *Shell) RequestAllMonitorInput(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allMonitorIn = on
	s.control.SetAllMonitorIn(on)
	if s.hwMonitoring {
		s.pushMonitorMaskLocked()
	}
}

// SetHWMonitoring toggles hardware-native monitoring.
func (s *Shell) SetHWMonitoring(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hwMonitoring = on
	s.control.SetHardwareMonitoring(on)
	s.pushMonitorMaskLocked()
}

// pushMonitorMaskLocked pushes either all-ones (force-all) or the
// per-channel request mask to hardware. Callers must hold s.mu.
func (s *Shell) pushMonitorMaskLocked() {
	var channels []int
	if s.allMonitorIn {
		for c := range s.monitorRequests {
			channels = append(channels, c)
		}
	} else {
		for c, n := range s.monitorRequests {
			if n > 0 {
				channels = append(channels, c)
			}
		}
	}
	if err := s.profile.SetInputMonitorMask(channels); err != nil {
		s.logf("push monitor mask failed: %v", err)
	}
}

// ChangeSampleClock delegates to the HardwareProfile.
func (s *Shell) ChangeSampleClock(mode hwprofile.ClockMode) error {
	return s.profile.ChangeSampleClock(mode)
}

// ClockSyncStatus delegates to the HardwareProfile. The Generic
// profile always reports Lock.
func (s *Shell) ClockSyncStatus(c int) hwprofile.ClockSyncStatus {
	return s.profile.ClockSyncStatus(c)
}

// MarkChannelSilent requests an immediate pending silence on playback
// channel p.
func (s *Shell) MarkChannelSilent(p int) {
	if p < 0 || p >= s.negotiated.Channels {
		return
	}
	s.control.RequestSilence(p)
}

// FramesSinceCycleStart reports frames elapsed since the current
// cycle's mmap span began. This driver processes a whole negotiated
// period per cycle rather than sub-period chunks, so it always reports
// the full period length; a hardware profile with finer-grained delay
// telemetry would refine this.
func (s *Shell) FramesSinceCycleStart() int {
	return s.negotiated.PeriodFrames
}

// Stats reports running totals from the hot loop: cycles run and
// skipped, xruns recovered, and frames processed. It returns the zero
// value before Attach has built a Cycle.
func (s *Shell) Stats() iocycle.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle == nil {
		return iocycle.Stats{}
	}
	return s.cycle.Stats()
}

// State reports the current lifecycle state.
func (s *Shell) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// bitsetFromRequests builds a fresh monitor-mask bitset with bit c set
// wherever requests[c] > 0.
func bitsetFromRequests(requests []int) *bitset.Set {
	var mask = bitset.New(len(requests))
	for c, n := range requests {
		if n > 0 {
			mask.Set(c)
		}
	}
	return mask
}

func (s *Shell) logf(format string, args ...any) {
	if s.cfg.Log == nil {
		return
	}
	s.cfg.Log.Warn(fmt.Sprintf(format, args...))
}
