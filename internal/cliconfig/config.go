// Package cliconfig holds the configuration of the pixelpruner command and
// its layering: defaults, then the TOML file, then PIXELPRUNER_* environment
// variables, then flags.
package cliconfig

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"

	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/engine"
	"github.com/sebnyberg/pixelpruner/pngx"
)

// AppName names the XDG directories of the tool.
const AppName = "pixelpruner"

// Config holds CLI configuration for pixelpruner.
type Config struct {
	OutputDir      string
	WebP           bool
	Backend        string
	PNGCompression string

	Display string
	Preset  string
	Zoom    float64

	Listen string

	InputDir string
	Debounce time.Duration

	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		OutputDir:      filepath.Join(xdg.DataHome, AppName, "crops"),
		WebP:           true,
		Backend:        string(engine.BackendImage),
		PNGCompression: "default",
		Display:        pixelpruner.DefaultDisplay,
		Preset:         "512x512",
		Zoom:           1,
		Listen:         "127.0.0.1:7860",
		Debounce:       500 * time.Millisecond,
		LogLevel:       "info",
		LogFormat:      "auto",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output-dir is required")
	}
	if _, err := engine.ParseBackend(c.Backend); err != nil {
		return err
	}
	if _, err := pngx.ParseCompression(c.PNGCompression); err != nil {
		return err
	}
	if _, err := pixelpruner.LookupDisplay(c.Display); err != nil {
		return err
	}
	if _, err := pixelpruner.LookupPreset(c.Preset); err != nil {
		return err
	}
	if c.Zoom < pixelpruner.MinZoom || c.Zoom > pixelpruner.MaxZoom {
		return fmt.Errorf("zoom must be within [%v, %v], got %v", pixelpruner.MinZoom, pixelpruner.MaxZoom, c.Zoom)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}
	switch c.LogFormat {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// configSetter applies values unless the corresponding flag was set
// explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	s.setFloat(flag, f, dst)
	return nil
}

// setBoolFromString accepts the forms of strconv.ParseBool.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = b
	return nil
}
