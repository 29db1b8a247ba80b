package main

import (
	"context"
	"fmt"
	"os"

	"github.com/doismellburning/jackio/config"
	"github.com/doismellburning/jackio/driver"
	"github.com/doismellburning/jackio/internal/carddiscovery"
	"github.com/doismellburning/jackio/internal/engine"
	"github.com/doismellburning/jackio/internal/soundio"
	"github.com/doismellburning/jackio/internal/xlog"
)

// fleet drives one DriverShell per configured device entry, so a
// multi-card rig attaches one Shell per sound card instead of assuming
// a single device.
type fleet struct {
	shells []*driver.Shell
	logs   []*xlog.Logger
}

// newFleet constructs, attaches, and starts one Shell per device in
// devices. On any failure it stops and destroys whatever shells it had
// already started before returning the error.
func newFleet(devices []config.Config) (*fleet, error) {
	var f fleet
	var cards, cardErr = carddiscovery.List()

	for _, cfg := range devices {
		var log = xlog.New(os.Stderr, cfg.DeviceName)
		log.SetLevel(cfg.LogLevel)

		if cfg.DriverName == "" && cardErr == nil {
			for _, c := range cards {
				if c.Device == cfg.DeviceName {
					cfg.DriverName = c.DriverName
					break
				}
			}
		}

		var iface, ifaceErr = soundio.NewPortAudioInterface()
		if ifaceErr != nil {
			f.stop()
			return nil, fmt.Errorf("fleet: open sound interface for %s: %w", cfg.DeviceName, ifaceErr)
		}

		var shell, constructErr = driver.Construct(driver.Config{
			DeviceName:       cfg.DeviceName,
			DriverName:       cfg.DriverName,
			FramesPerCycle:   cfg.FramesPerCycle,
			SampleRate:       cfg.SampleRate,
			CaptureChannels:  cfg.CaptureChannels,
			PlaybackChannels: cfg.PlaybackChannels,
			MinLevel:         cfg.MinLevel,
			MaxLevel:         cfg.MaxLevel,
			PrimingPeriods:   cfg.PrimingPeriods,
			Log:              log,
		}, iface)
		if constructErr != nil {
			f.stop()
			return nil, fmt.Errorf("fleet: construct driver for %s: %w", cfg.DeviceName, constructErr)
		}

		if err := shell.Attach(engine.NewFake()); err != nil {
			f.stop()
			return nil, fmt.Errorf("fleet: attach engine for %s: %w", cfg.DeviceName, err)
		}
		if err := shell.Start(); err != nil {
			f.stop()
			return nil, fmt.Errorf("fleet: start driver for %s: %w", cfg.DeviceName, err)
		}

		f.shells = append(f.shells, shell)
		f.logs = append(f.logs, log)
	}

	return &f, nil
}

// run drives every shell's hot loop concurrently until ctx is done or
// one of them returns a fatal error.
func (f *fleet) run(ctx context.Context) error {
	var runCtx, cancel = context.WithCancel(ctx)
	defer cancel()

	var errs = make(chan error, len(f.shells))
	for i, shell := range f.shells {
		go func(s *driver.Shell, log *xlog.Logger) {
			for {
				select {
				case <-runCtx.Done():
					errs <- nil
					return
				default:
				}
				if _, err := s.WaitOneCycle(runCtx); err != nil {
					log.Error("cycle error", "err", err)
					errs <- err
					return
				}
			}
		}(shell, f.logs[i])
	}

	var firstErr error
	for range f.shells {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}

// stop stops and destroys every shell in the fleet.
func (f *fleet) stop() {
	for _, shell := range f.shells {
		_ = shell.Stop()
		_ = shell.Destroy()
	}
}
