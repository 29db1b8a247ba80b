// Package hwprofile abstracts the handful of things that differ between
// sound card models: whether the card can route inputs to outputs
// entirely in hardware, and how its sample clock source is selected.
//
// Only two variants exist today: a Generic profile that does nothing
// beyond the negotiated PCM parameters, and a Hammerfall (RME9652-style)
// profile that can push an input-monitor mask straight to the card. New
// variants are added by implementing Profile and extending Select.
package hwprofile

import "fmt"

// Capability is a bitmask of what a Profile can do.
type Capability uint

const (
	// HardwareMonitoring means the card can route captured input
	// directly to a playback output without round-tripping through
	// software; when enabled, the per-cycle software monitor copy is
	// skipped.
	HardwareMonitoring Capability = 1 << iota
	// ClockLockReporting marks a card with clock-lock inputs. The
	// Hammerfall profile advertises it, but its ClockSyncStatus still
	// returns Lock unconditionally, the same as Generic.
	ClockLockReporting
)

// ClockMode selects the card's sample clock source.
type ClockMode int

const (
	// ClockMaster means the card generates its own word clock.
	ClockMaster ClockMode = iota
	// ClockSlaveDigital means the card locks to an external digital
	// input (S/PDIF, ADAT, word clock in).
	ClockSlaveDigital
)

// ClockSyncStatus is the reading returned by Profile.ClockSyncStatus.
type ClockSyncStatus int

const (
	// Lock means the clock is locked and stable.
	Lock ClockSyncStatus = iota
	// NoLock means the clock is unlocked (e.g. no digital source
	// present while slaved).
	NoLock
)

// Profile is the per-card capability abstraction.
type Profile interface {
	// Capabilities reports what this profile supports.
	Capabilities() Capability

	// SetInputMonitorMask pushes a channel bitmask (as a slice of set
	// channel indices) to the card's direct monitoring control surface.
	// A Profile without HardwareMonitoring treats this as a no-op.
	SetInputMonitorMask(channels []int) error

	// ChangeSampleClock sets the card's clock source.
	ChangeSampleClock(mode ClockMode) error

	// ClockSyncStatus reports the current lock state for channel c.
	ClockSyncStatus(channel int) ClockSyncStatus

	// Release frees any card-specific state (GPIO lines, handles).
	Release() error
}

// Select picks the Profile matching a card's advertised driver name,
// the same matching DriverShell construction performs against
// the string the control interface reports.
func Select(driverName string, opts ...HammerfallOption) Profile {
	switch driverName {
	case "RME9652", "Hammerfall", "Hammerfall-DSP":
		return newHammerfall(opts...)
	default:
		return Generic{}
	}
}

// Generic is the capability-free profile used for any card that isn't
// specifically recognized: it exposes no hardware monitoring and treats
// every operation but Release as a no-op.
type Generic struct{}

func (Generic) Capabilities() Capability { return 0 }

func (Generic) SetInputMonitorMask(_ []int) error { return nil }

func (Generic) ChangeSampleClock(_ ClockMode) error { return nil }

// ClockSyncStatus unconditionally reports Lock: a stub, same as the
// source this is ported from — the card has no clock-lock telemetry to
// report in the generic case.
func (Generic) ClockSyncStatus(_ int) ClockSyncStatus { return Lock }

func (Generic) Release() error { return nil }

var _ Profile = Generic{}

// ErrNoGPIOController reports that no GPIO controller is available for
// the Hammerfall monitor mask. Nothing in this package returns it:
// newHammerfall opens no lines up front, and a failed line request
// surfaces from SetInputMonitorMask as the requester's own error.
var ErrNoGPIOController = fmt.Errorf("hwprofile: no GPIO controller available for Hammerfall monitor mask")
