package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeoutMs     = 1200
	DefaultLogLevel      = "info"
	DefaultListen        = "127.0.0.1:9464"
	DefaultSTUNTimeoutMs = 3000
)

// ErrNoConfig is returned by Load when path is empty.
var ErrNoConfig = errors.New("no config path given")

// Config holds probe, logging and reporting settings.
type Config struct {
	Probe  ProbeConfig  `yaml:"probe"`
	Log    LogConfig    `yaml:"log"`
	Report ReportConfig `yaml:"report"`
	STUN   STUNConfig   `yaml:"stun"`
}

// ProbeConfig describes the two probe targets.
//
// DirectTarget should point at an IPv6 literal and ResolvedTarget at a hostname
// that only has AAAA records. An empty DirectTarget abandons the measurement.
type ProbeConfig struct {
	DirectTarget   string `yaml:"direct_target"`
	ResolvedTarget string `yaml:"resolved_target"`
	TimeoutMs      int    `yaml:"timeout_ms"`
	Secure         bool   `yaml:"secure"`
	DNSServer      string `yaml:"dns_server,omitempty"`
}

type LogConfig struct {
	Dir   string `yaml:"dir,omitempty"`
	Level string `yaml:"level"`
}

type ReportConfig struct {
	CSVPath string `yaml:"csv_path,omitempty"`
	Listen  string `yaml:"listen"`
}

type STUNConfig struct {
	Servers   []string `yaml:"servers,omitempty"`
	TimeoutMs int      `yaml:"timeout_ms"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, ErrNoConfig
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects malformed values. A missing direct target is not an error.
func Validate(cfg Config) error {
	if cfg.Probe.TimeoutMs < 0 {
		return fmt.Errorf("probe.timeout_ms must be >= 0")
	}
	if cfg.STUN.TimeoutMs < 0 {
		return fmt.Errorf("stun.timeout_ms must be >= 0")
	}
	if err := validateTarget("probe.direct_target", cfg.Probe.DirectTarget); err != nil {
		return err
	}
	if err := validateTarget("probe.resolved_target", cfg.Probe.ResolvedTarget); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug|info|warn|error", cfg.Log.Level)
	}
	return nil
}

func validateTarget(key, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https", key)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: host is required", key)
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Probe.TimeoutMs == 0 {
		cfg.Probe.TimeoutMs = DefaultTimeoutMs
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Report.Listen == "" {
		cfg.Report.Listen = DefaultListen
	}
	if cfg.STUN.TimeoutMs == 0 {
		cfg.STUN.TimeoutMs = DefaultSTUNTimeoutMs
	}
}
