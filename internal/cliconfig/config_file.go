package cliconfig

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with TOML friendly types.
type FileConfig struct {
	OutputDir      string  `toml:"output_dir"`
	WebP           *bool   `toml:"webp"`
	Backend        string  `toml:"backend"`
	PNGCompression string  `toml:"png_compression"`
	Display        string  `toml:"display"`
	Preset         string  `toml:"preset"`
	Zoom           float64 `toml:"zoom"`
	Listen         string  `toml:"listen"`
	InputDir       string  `toml:"input_dir"`
	Debounce       string  `toml:"debounce"`
	LogLevel       string  `toml:"log_level"`
	LogFormat      string  `toml:"log_format"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/pixelpruner/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.toml")
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// ApplyFileConfig applies configuration from a file to cfg. Flags present in
// changed keep their values.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("output-dir", fc.OutputDir, &cfg.OutputDir)
	s.setBool("webp", fc.WebP, &cfg.WebP)
	s.setString("backend", fc.Backend, &cfg.Backend)
	s.setString("png-compression", fc.PNGCompression, &cfg.PNGCompression)
	s.setString("display", fc.Display, &cfg.Display)
	s.setString("preset", fc.Preset, &cfg.Preset)
	s.setFloat("zoom", fc.Zoom, &cfg.Zoom)
	s.setString("listen", fc.Listen, &cfg.Listen)
	s.setString("input-dir", fc.InputDir, &cfg.InputDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	return s.setDuration("debounce", fc.Debounce, &cfg.Debounce)
}
