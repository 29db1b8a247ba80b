// Package config loads DriverShell construction parameters from an
// optional YAML file overlaid with command-line flags, a two-layer
// approach in the same spirit as the rest of this codebase's device
// and appserver configuration tooling.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the full set of constructor parameters for one driver
// instance, plus the ambient logging/runtime knobs cmd/jackiod needs.
type Config struct {
	DeviceName       string `yaml:"device"`
	DriverName       string `yaml:"driver_name"`
	FramesPerCycle   int    `yaml:"frames_per_cycle"`
	SampleRate       int    `yaml:"sample_rate"`
	CaptureChannels  int    `yaml:"capture_channels"`
	PlaybackChannels int    `yaml:"playback_channels"`
	MinLevel         int32  `yaml:"min_level"`
	MaxLevel         int32  `yaml:"max_level"`
	PrimingPeriods   int    `yaml:"priming_periods"`
	LogLevel         string `yaml:"log_level"`
	Announce         bool   `yaml:"announce"`
}

// Defaults returns the baseline configuration, overridden by a YAML
// file (if configPath is non-empty) and then by flags.
func Defaults() Config {
	return Config{
		DeviceName:       "hw:0",
		FramesPerCycle:   256,
		SampleRate:       48000,
		CaptureChannels:  2,
		PlaybackChannels: 2,
		PrimingPeriods:   2,
		LogLevel:         "info",
	}
}

// LoadYAML overlays cfg with values from the YAML file at path.
func LoadYAML(cfg Config, path string) (Config, error) {
	var data, err = os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// FleetConfig lists several device configs to run as one fleet, for a
// host with more than one card attached that should all feed the same
// engine.
type FleetConfig struct {
	Devices []Config `yaml:"devices"`
}

// LoadFleetYAML reads a FleetConfig from path. Each device entry is
// unmarshalled independently, so a field left out of one entry just
// zero-values rather than inheriting from another entry or Defaults.
func LoadFleetYAML(path string) (FleetConfig, error) {
	var fleet FleetConfig
	var data, err = os.ReadFile(path)
	if err != nil {
		return fleet, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return fleet, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return fleet, nil
}

// Flags are the pflag-bound values a caller should register before
// calling pflag.Parse(), then feed back into ApplyFlags.
type Flags struct {
	Device         *string
	DriverName     *string
	FramesPerCycle *int
	SampleRate     *int
	Channels       *int
	PrimingPeriods *int
	LogLevel       *string
	ConfigPath     *string
	Announce       *bool
}

// RegisterFlags registers this driver's flags on fs (pflag.CommandLine
// if fs is nil), seeded from cfg's current values.
func RegisterFlags(fs *pflag.FlagSet, cfg Config) Flags {
	if fs == nil {
		fs = pflag.CommandLine
	}
	return Flags{
		Device:         fs.StringP("device", "d", cfg.DeviceName, "ALSA-style device name, e.g. hw:0"),
		DriverName:     fs.String("driver-name", cfg.DriverName, "card driver name override for HardwareProfile selection"),
		FramesPerCycle: fs.IntP("frames", "f", cfg.FramesPerCycle, "frames per I/O cycle"),
		SampleRate:     fs.IntP("rate", "r", cfg.SampleRate, "sample rate in Hz"),
		Channels:       fs.IntP("channels", "c", cfg.CaptureChannels, "capture and playback channel count"),
		PrimingPeriods: fs.Int("priming-periods", cfg.PrimingPeriods, "periods of silence to prime the playback buffer with on start"),
		LogLevel:       fs.String("log-level", cfg.LogLevel, "debug, info, warn, or error"),
		ConfigPath:     fs.StringP("config", "C", "", "optional YAML config file"),
		Announce:       fs.Bool("announce", cfg.Announce, "advertise this device over DNS-SD"),
	}
}

// ApplyFlags overlays parsed flag values onto cfg. Call pflag.Parse()
// before this.
func ApplyFlags(cfg Config, f Flags) Config {
	cfg.DeviceName = *f.Device
	if *f.DriverName != "" {
		cfg.DriverName = *f.DriverName
	}
	cfg.FramesPerCycle = *f.FramesPerCycle
	cfg.SampleRate = *f.SampleRate
	cfg.CaptureChannels = *f.Channels
	cfg.PlaybackChannels = *f.Channels
	cfg.PrimingPeriods = *f.PrimingPeriods
	cfg.LogLevel = *f.LogLevel
	cfg.Announce = *f.Announce
	return cfg
}
