package cliconfig

import "os"

// EnvPrefix prefixes the environment variables read by ApplyEnvConfig.
const EnvPrefix = "PIXELPRUNER_"

// ApplyEnvConfig applies configuration from environment variables
// (PIXELPRUNER_*). Flags present in changed keep their values.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(key string) string { return os.Getenv(EnvPrefix + key) }

	s.setString("output-dir", env("OUTPUT_DIR"), &cfg.OutputDir)
	s.setString("backend", env("BACKEND"), &cfg.Backend)
	s.setString("png-compression", env("PNG_COMPRESSION"), &cfg.PNGCompression)
	s.setString("display", env("DISPLAY"), &cfg.Display)
	s.setString("preset", env("PRESET"), &cfg.Preset)
	s.setString("listen", env("LISTEN"), &cfg.Listen)
	s.setString("input-dir", env("INPUT_DIR"), &cfg.InputDir)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", env("LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setBoolFromString("webp", env("WEBP"), &cfg.WebP); err != nil {
		return err
	}
	if err := s.setFloatFromString("zoom", env("ZOOM"), &cfg.Zoom); err != nil {
		return err
	}
	return s.setDuration("debounce", env("DEBOUNCE"), &cfg.Debounce)
}
