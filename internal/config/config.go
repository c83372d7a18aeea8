// Package config holds the gatecap run configuration: capture
// behavior, spoofing identity, and browser plumbing. Values come from
// the YAML file, then environment overrides, then CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"gatecap/internal/catalog"
)

// Validation sentinels. The CLI fails fast on these before any
// browser is launched.
var (
	ErrInvalidCountry  = errors.New("config: unknown country code")
	ErrInvalidLanguage = errors.New("config: malformed language tag")
	ErrInvalidProxy    = errors.New("config: malformed proxy URL")
	ErrInvalidTimeout  = errors.New("config: timeout must be positive")
	ErrInvalidEngine   = errors.New("config: engine must be auto, standard or stealth")
)

var (
	languageRe = regexp.MustCompile(`^[a-z]{2,3}(-[A-Z]{2})?$`)
	proxyRe    = regexp.MustCompile(`^(socks5|http)://[^\s:/]+:\d+$`)
)

// Config holds all gatecap configuration.
type Config struct {
	// Capture settings
	OutputDir     string `yaml:"output_dir"`
	TimeoutSec    int    `yaml:"timeout_sec"`
	Workers       int    `yaml:"workers"`
	PlainProgress bool   `yaml:"plain_progress"`

	// Browser plumbing
	Headful bool   `yaml:"headful"`
	Proxy   string `yaml:"proxy"`

	// Spoofed identity
	Spoof SpoofConfig `yaml:"spoof"`

	// Logging
	Verbose bool `yaml:"verbose"`
}

// SpoofConfig selects the fingerprint the session projects.
type SpoofConfig struct {
	Country    string `yaml:"country"`
	Language   string `yaml:"language"`
	UASelector string `yaml:"ua"`      // "OS;;Browser" catalog key
	UAFull     string `yaml:"ua_full"` // literal UA string, wins over ua
	Engine     string `yaml:"engine"`  // auto, standard, stealth
	Referrer   string `yaml:"referrer"`

	// Gates toggles individual gates off; absent means enabled.
	Gates map[string]bool `yaml:"gates"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:  "captures",
		TimeoutSec: 90,
		Workers:    4,
		Spoof: SpoofConfig{
			Engine: "auto",
		},
	}
}

// Load reads a YAML config, layering it over the defaults. A missing
// file is not an error; environment overrides apply either way.
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
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if proxy := os.Getenv("GATECAP_PROXY"); proxy != "" {
		c.Proxy = proxy
	}
	if raw := os.Getenv("GATECAP_TIMEOUT"); raw != "" {
		if sec, err := strconv.Atoi(raw); err == nil {
			c.TimeoutSec = sec
		}
	}
	if dir := os.Getenv("GATECAP_OUTPUT_DIR"); dir != "" {
		c.OutputDir = dir
	}
	if raw := os.Getenv("GATECAP_VERBOSE"); raw == "1" || raw == "true" {
		c.Verbose = true
	}
}

// Validate checks the configuration before a run starts.
func (c *Config) Validate() error {
	if c.Spoof.Country != "" && !catalog.HasCountry(c.Spoof.Country) {
		return fmt.Errorf("%w: %q", ErrInvalidCountry, c.Spoof.Country)
	}
	if c.Spoof.Language != "" && !languageRe.MatchString(c.Spoof.Language) {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, c.Spoof.Language)
	}
	if c.Proxy != "" && !proxyRe.MatchString(c.Proxy) {
		return fmt.Errorf("%w: %q", ErrInvalidProxy, c.Proxy)
	}
	if c.TimeoutSec <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTimeout, c.TimeoutSec)
	}
	switch c.Spoof.Engine {
	case "", "auto", "standard", "stealth":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEngine, c.Spoof.Engine)
	}
	return nil
}

// Timeout returns the outer per-URL deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}
