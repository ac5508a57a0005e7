// Package config loads the generator's configuration: a YAML file with
// defaults applied on load and environment overrides applied last. It
// is read once at process start; nothing else in the pipeline touches
// the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/PoOnesNerfect/oofs/internal/capture"
)

// DefaultPath is where the generator looks when --config is not given.
const DefaultPath = ".oofgen.yaml"

// Config holds all oofgen configuration.
type Config struct {
	// Capture is the global capture mode: auto, always, or disabled.
	Capture string `yaml:"capture"`

	// Profile selects the auto mode's behavior: development or release.
	Profile string `yaml:"profile"`

	// RuntimeImport is the import path generated code calls into.
	RuntimeImport string `yaml:"runtime_import"`

	// Exclude lists glob patterns (matched against the file's base
	// name) whose files are never rewritten.
	Exclude []string `yaml:"exclude"`

	// Logging configures the generator's own output.
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Capture:       "auto",
		Profile:       "development",
		RuntimeImport: "github.com/PoOnesNerfect/oofs",
		Exclude:       []string{"*_test.go", "*.gen.go"},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if mode := os.Getenv("OOFGEN_CAPTURE"); mode != "" {
		c.Capture = mode
	}
	if profile := os.Getenv("OOFGEN_PROFILE"); profile != "" {
		c.Profile = profile
	}
	if imp := os.Getenv("OOFGEN_RUNTIME_IMPORT"); imp != "" {
		c.RuntimeImport = imp
	}
}

// CaptureConfig validates the capture/profile spellings and returns
// the resolved policy configuration.
func (c *Config) CaptureConfig() (capture.Config, error) {
	mode, err := capture.ParseMode(c.Capture)
	if err != nil {
		return capture.Config{}, err
	}
	profile, err := capture.ParseProfile(c.Profile)
	if err != nil {
		return capture.Config{}, err
	}
	return capture.Config{Mode: mode, Profile: profile}, nil
}

// Excluded reports whether path matches any exclude pattern.
func (c *Config) Excluded(path string) bool {
	base := filepath.Base(path)
	for _, pat := range c.Exclude {
		if ok, err := filepath.Match(pat, base); err == nil && ok {
			return true
		}
	}
	return false
}
