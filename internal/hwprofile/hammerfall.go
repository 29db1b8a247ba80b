package hwprofile

import "github.com/warthog618/go-gpiocdev"

// monitorLine is the subset of *gpiocdev.Line this package depends on,
// so tests can substitute a fake without opening a real GPIO chip.
type monitorLine interface {
	SetValue(int) error
	Close() error
}

// lineRequester opens one GPIO output line per monitor-capable channel.
// The real implementation wraps gpiocdev.RequestLine; it is swappable so
// Hammerfall can be unit tested without a /dev/gpiochipN present.
type lineRequester func(chip string, offset int) (monitorLine, error)

func defaultLineRequester(chip string, offset int) (monitorLine, error) {
	return gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
}

// HammerfallOption configures a Hammerfall profile.
type HammerfallOption func(*hammerfallConfig)

type hammerfallConfig struct {
	chip       string
	baseOffset int
	request    lineRequester
}

// WithGPIOChip selects the gpiochip device the card's monitor-enable
// lines are exposed on. Defaults to "gpiochip0".
func WithGPIOChip(chip string) HammerfallOption {
	return func(c *hammerfallConfig) { c.chip = chip }
}

// WithGPIOBaseOffset selects the first line offset used for channel 0's
// monitor-enable control; channel c uses offset+c.
func WithGPIOBaseOffset(offset int) HammerfallOption {
	return func(c *hammerfallConfig) { c.baseOffset = offset }
}

func withLineRequester(r lineRequester) HammerfallOption {
	return func(c *hammerfallConfig) { c.request = r }
}

// hammerfall is the RME9652-style profile: it can route captured inputs
// straight to outputs via a per-channel GPIO-backed monitor-enable
// control, standing in for the card's native mixer-control ioctl.
type hammerfall struct {
	cfg    hammerfallConfig
	clock  ClockMode
	lines  map[int]monitorLine
	active map[int]bool
}

func newHammerfall(opts ...HammerfallOption) *hammerfall {
	var cfg = hammerfallConfig{
		chip:       "gpiochip0",
		baseOffset: 0,
		request:    defaultLineRequester,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &hammerfall{
		cfg:    cfg,
		lines:  make(map[int]monitorLine),
		active: make(map[int]bool),
	}
}

func (h *hammerfall) Capabilities() Capability {
	return HardwareMonitoring | ClockLockReporting
}

func (h *hammerfall) lineFor(channel int) (monitorLine, error) {
	if l, ok := h.lines[channel]; ok {
		return l, nil
	}
	var l, err = h.cfg.request(h.cfg.chip, h.cfg.baseOffset+channel)
	if err != nil {
		return nil, err
	}
	h.lines[channel] = l
	return l, nil
}

// SetInputMonitorMask enables the monitor-enable line for every channel
// in the mask and disables it for every previously-enabled channel that
// isn't, pushing the new state to hardware in a single call as step
// 6f expects.
func (h *hammerfall) SetInputMonitorMask(channels []int) error {
	var want = make(map[int]bool, len(channels))
	for _, c := range channels {
		want[c] = true
	}

	for c := range h.active {
		if !want[c] {
			var l, err = h.lineFor(c)
			if err != nil {
				return err
			}
			if err := l.SetValue(0); err != nil {
				return err
			}
			delete(h.active, c)
		}
	}

	for c := range want {
		var l, err = h.lineFor(c)
		if err != nil {
			return err
		}
		if err := l.SetValue(1); err != nil {
			return err
		}
		h.active[c] = true
	}
	return nil
}

func (h *hammerfall) ChangeSampleClock(mode ClockMode) error {
	h.clock = mode
	return nil
}

// ClockSyncStatus unconditionally reports Lock. Reading the real
// clock-lock state needs hardware this driver hasn't been run against.
func (h *hammerfall) ClockSyncStatus(_ int) ClockSyncStatus { return Lock }

func (h *hammerfall) Release() error {
	var firstErr error
	for c, l := range h.lines {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(h.lines, c)
	}
	h.active = make(map[int]bool)
	return firstErr
}

var _ Profile = (*hammerfall)(nil)
