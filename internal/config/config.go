package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml. Environment variables override file values.
type Config struct {
	FrameYieldMS int    `yaml:"frame_yield_ms" env:"COOPSCHED_FRAME_YIELD_MS"` // 5 (by default)
	FrameRate    int    `yaml:"frame_rate" env:"COOPSCHED_FRAME_RATE"`         // 0 (by default): use frame_yield_ms
	HostPosting  string `yaml:"host_posting" env:"COOPSCHED_HOST_POSTING"`     // immediate (by default) or timer
	LogLevel     string `yaml:"log_level" env:"COOPSCHED_LOG_LEVEL"`           // info (by default)
	LogFormat    string `yaml:"log_format" env:"COOPSCHED_LOG_FORMAT"`         // text (by default) or json
	MetricsAddr  string `yaml:"metrics_addr" env:"COOPSCHED_METRICS_ADDR"`     // empty: metrics are not served
	EventCSV     string `yaml:"event_csv" env:"COOPSCHED_EVENT_CSV"`           // empty: no event log
}

var (
	// ErrReadConfig is returned when the config file exists but cannot be read.
	ErrReadConfig = errors.New("failed to read config file")

	// ErrParseConfig is returned when the config file or environment cannot be parsed.
	ErrParseConfig = errors.New("failed to parse config")
)

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		FrameYieldMS: 5,
		FrameRate:    0,
		HostPosting:  "immediate",
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load reads YAML from path over the defaults, then applies environment
// overrides. An empty path or a missing file means defaults only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, errors.Join(ErrReadConfig, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, errors.Join(ErrParseConfig, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Join(ErrParseConfig, err)
	}

	cfg.clamp()
	return cfg, nil
}

// sanity clamps
func (c *Config) clamp() {
	if c.FrameYieldMS <= 0 {
		c.FrameYieldMS = 5
	}
	if c.FrameRate < 0 || c.FrameRate > 125 {
		c.FrameRate = 0
	}
	c.HostPosting = strings.ToLower(c.HostPosting)
	if c.HostPosting != "immediate" && c.HostPosting != "timer" {
		c.HostPosting = "immediate"
	}
}

// FrameInterval returns the default yield budget.
func (c Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameYieldMS) * time.Millisecond
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
