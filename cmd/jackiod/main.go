// Command jackiod attaches one physical sound card to an audio-graph
// engine as a low-latency I/O driver.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/doismellburning/jackio/config"
	"github.com/doismellburning/jackio/driver"
	"github.com/doismellburning/jackio/internal/announce"
	"github.com/doismellburning/jackio/internal/carddiscovery"
	"github.com/doismellburning/jackio/internal/engine"
	"github.com/doismellburning/jackio/internal/soundio"
	"github.com/doismellburning/jackio/internal/xlog"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "jackiod:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg = config.Defaults()

	var flags = config.RegisterFlags(nil, cfg)
	var fleetConfigPath = pflag.String("fleet-config", "", "YAML file listing multiple devices to run as one fleet")
	pflag.Parse()

	if *fleetConfigPath != "" {
		return runFleet(*fleetConfigPath)
	}

	if *flags.ConfigPath != "" {
		var loaded, err = config.LoadYAML(cfg, *flags.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg = config.ApplyFlags(cfg, flags)

	var log = xlog.New(os.Stderr, cfg.DeviceName)
	log.SetLevel(cfg.LogLevel)

	if cfg.DriverName == "" {
		if cards, err := carddiscovery.List(); err == nil {
			for _, c := range cards {
				if c.Device == cfg.DeviceName {
					cfg.DriverName = c.DriverName
					break
				}
			}
		} else {
			log.Warn("card discovery failed, falling back to Generic hardware profile", "err", err)
		}
	}

	var iface, ifaceErr = soundio.NewPortAudioInterface()
	if ifaceErr != nil {
		return fmt.Errorf("open sound interface: %w", ifaceErr)
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
		return fmt.Errorf("construct driver: %w", constructErr)
	}

	var eng = engine.NewFake()
	if err := shell.Attach(eng); err != nil {
		return fmt.Errorf("attach engine: %w", err)
	}
	if err := shell.Start(); err != nil {
		return fmt.Errorf("start driver: %w", err)
	}
	log.Info("driver running", "device", cfg.DeviceName, "rate", cfg.SampleRate, "frames", cfg.FramesPerCycle)

	if cfg.Announce {
		var stop, err = announce.Start(cfg.DeviceName, 0)
		if err != nil {
			log.Warn("DNS-SD announce failed", "err", err)
		} else {
			defer stop()
		}
	}

	var ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			if err := shell.Stop(); err != nil {
				log.Error("stop failed", "err", err)
			}
			return shell.Destroy()
		default:
		}

		var outcome, err = shell.WaitOneCycle(ctx)
		if err != nil {
			log.Error("cycle error", "outcome", outcome.String(), "err", err)
			return err
		}

		if stats := shell.Stats(); stats.CyclesRun > 0 && stats.CyclesRun%statsLogInterval == 0 {
			log.Info("cycle stats", "cycles", stats.CyclesRun, "skipped", stats.CyclesSkipped,
				"xruns", stats.XrunsRecovered, "frames", stats.FramesProcessed)
		}
	}
}

// statsLogInterval is how many cycles pass between periodic stats log
// lines; at a typical few-ms period this logs once every few seconds
// without flooding stderr.
const statsLogInterval = 1000

// runFleet loads a multi-device config from path and drives every
// device's hot loop until interrupted or one of them fails.
func runFleet(path string) error {
	var fleetCfg, err = config.LoadFleetYAML(path)
	if err != nil {
		return err
	}

	var f, newErr = newFleet(fleetCfg.Devices)
	if newErr != nil {
		return newErr
	}

	var ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var runErr = f.run(ctx)
	f.stop()
	return runErr
}
