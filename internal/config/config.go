// Package config loads the runtime configuration of the cache service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// TokenEnv overrides the configured token when set
const TokenEnv = "DISCORD_TOKEN"

type Config struct {
	Token       string            `json:"token" yaml:"token"`
	History     HistoryConfig     `json:"history" yaml:"history"`
	Sweep       SweepConfig       `json:"sweep" yaml:"sweep"`
	Permissions PermissionsConfig `json:"permissions" yaml:"permissions"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
	Log         LogConfig         `json:"log" yaml:"log"`
}

type HistoryConfig struct {
	Capacity int      `json:"capacity" yaml:"capacity"`
	GCIdle   Duration `json:"gc_idle" yaml:"gc_idle"`
	PageSize int      `json:"page_size" yaml:"page_size"`
	// Retained messages stay alive after leaving their channel window
	Retained int `json:"retained" yaml:"retained"`
}

type SweepConfig struct {
	Interval Duration `json:"interval" yaml:"interval"`
}

type PermissionsConfig struct {
	NumCounters int64 `json:"num_counters" yaml:"num_counters"`
	MaxCost     int64 `json:"max_cost" yaml:"max_cost"`
}

type MetricsConfig struct {
	// Addr of the /metrics listener; "-" disables it
	Addr string `json:"addr" yaml:"addr"`
}

type LogConfig struct {
	Development bool `json:"development" yaml:"development"`
}

// Duration reads "90s" style strings from both YAML and JSON
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Default is the configuration used when no file is given
func Default() Config {
	var c Config
	c.withDefaults()
	return c
}

// Load reads a YAML (.yaml, .yml) or JSON file. Zero values fall back to
// defaults and TokenEnv overrides the token.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading %s: %w", path, err)
	}

	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	default:
		err = json.Unmarshal(data, &c)
	}
	if err != nil {
		return Config{}, fmt.Errorf("error parsing %s: %w", path, err)
	}

	c.withDefaults()
	return c, nil
}

// withDefaults fills every zero field
func (c *Config) withDefaults() {
	if token := os.Getenv(TokenEnv); token != "" {
		c.Token = token
	}
	if c.History.Capacity <= 0 {
		c.History.Capacity = 10
	}
	if c.History.GCIdle <= 0 {
		c.History.GCIdle = Duration(time.Minute)
	}
	if c.History.PageSize <= 0 || c.History.PageSize > 100 {
		c.History.PageSize = 100
	}
	if c.History.Retained <= 0 {
		c.History.Retained = 1000
	}
	if c.Sweep.Interval <= 0 {
		c.Sweep.Interval = Duration(30 * time.Second)
	}
	if c.Permissions.NumCounters == 0 {
		c.Permissions.NumCounters = 100000
	}
	if c.Permissions.MaxCost == 0 {
		c.Permissions.MaxCost = 1 << 16
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// MetricsEnabled reports whether the metrics listener should run
func (c Config) MetricsEnabled() bool {
	return c.Metrics.Addr != "-"
}
