// Package config holds the tunable settings for the profiler and the demo
// host, with calm defaults and an optional TOML file overlay.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config models everything the host can tune. Zero values mean "use the
// default" for the numeric fields, which lets a TOML file override only
// what it cares about.
type Config struct {
	// Profiler core.
	Capacity      int  `toml:"capacity"`
	TopN          int  `toml:"top_n"`
	DumpIntervalS int  `toml:"dump_interval_seconds"`
	DrainOnDump   bool `toml:"drain_on_dump"`
	ResetOnEnable bool `toml:"reset_on_enable"`

	// Log sink.
	LogPath     string `toml:"log_path"`
	MaxLogBytes int64  `toml:"max_log_bytes"`
	KeepRotated int    `toml:"keep_rotated"`

	// Demo host loop.
	TargetFPS     float64 `toml:"target_fps"`
	ShowStatusBar bool    `toml:"status_bar"`
	Debug         bool    `toml:"debug"`
}

// Defaults returns the settings the demo ships with.
func Defaults() Config {
	return Config{
		Capacity:      512,
		TopN:          20,
		DumpIntervalS: 10,
		LogPath:       "profiler/profiler.log",
		MaxLogBytes:   2 << 20,
		KeepRotated:   3,
		TargetFPS:     60,
		ShowStatusBar: true,
	}
}

// Load reads a TOML file over the defaults. Fields absent from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// DumpInterval returns the dump cadence as a duration.
func (c Config) DumpInterval() time.Duration {
	return time.Duration(c.DumpIntervalS) * time.Second
}

// Validate rejects settings the host cannot run with.
func (c Config) Validate() error {
	if c.TargetFPS <= 0 {
		return fmt.Errorf("config: target_fps must be positive (got %.2f)", c.TargetFPS)
	}
	if c.LogPath == "" {
		return fmt.Errorf("config: log_path must not be empty")
	}
	if c.Capacity < 0 || c.TopN < 0 || c.DumpIntervalS < 0 {
		return fmt.Errorf("config: capacity, top_n and dump_interval_seconds must not be negative")
	}
	return nil
}
