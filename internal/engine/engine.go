// Package engine defines the audio-graph engine contract this
// driver pushes captured frames into and pulls rendered frames from
// each cycle, along with a deterministic Fake implementation used by
// the iocycle and driver package tests in place of a real JACK-style
// graph engine.
package engine

// PortFlags describe one registered port, mirroring jack_port_flags_t.
type PortFlags uint

const (
	PortIsInput PortFlags = 1 << iota
	PortIsOutput
	PortIsPhysical
	PortCanMonitor
)

// Port identifies a registered port by opaque handle.
type Port int

// ClockSyncStatus reports whether a digital input channel is locked to
// its incoming clock.
type ClockSyncStatus int

const (
	Lock ClockSyncStatus = iota
	NoLock
)

// Engine is the contract the driver needs from the audio-graph engine
// it is attached to. A real implementation runs client graph
// dispatch inside Process. The driver calls SetBufferSize,
// SetSampleRate, RegisterPort and Activate once each (RegisterPort once
// per port) from Shell.Attach; PortGetBuffer, Process and
// NotifyClockSync from the audio thread each cycle; and NotifyMonitor
// from Shell.RequestMonitorInput, on whichever goroutine calls it.
type Engine interface {
	// SetBufferSize notifies the engine of the frames-per-cycle value
	// negotiated for the attached device.
	SetBufferSize(frames int) error

	// SetSampleRate notifies the engine of the negotiated sample rate.
	SetSampleRate(hz int) error

	// RegisterPort creates a port owned by the driver (the "physical"
	// ports backing hardware channels) and returns its handle.
	RegisterPort(name string, flags PortFlags) (Port, error)

	// PortGetBuffer returns the engine's buffer for port, sized nframes
	// float32 samples. The driver writes captured frames into its output
	// ports before Process and reads rendered frames from its input
	// ports after Process.
	PortGetBuffer(port Port, nframes int) []float32

	// Process runs one cycle of the client graph and returns 0 on
	// success or a nonzero engine-process error code.
	Process(nframes int) int

	// Activate transitions the engine to running state once the driver
	// has finished registering its physical ports.
	Activate() error

	// NotifyMonitor tells the engine a physical input channel's monitor
	// state changed, so it can reflect this to clients watching that
	// port's monitor flag.
	NotifyMonitor(channel int, on bool)

	// NotifyClockSync reports a digital input channel's clock-lock
	// state, surfaced to clients via the port's clock sync flag.
	NotifyClockSync(channel int, status ClockSyncStatus)
}
