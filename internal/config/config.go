// Package config loads skillwave configuration with layering:
// defaults < YAML file < SKILLWAVE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SKILLWAVE_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Engine    EngineConfig    `koanf:"engine"`
	Cache     CacheConfig     `koanf:"cache"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

type EngineConfig struct {
	MaxConcurrency    int           `koanf:"max_concurrency"`
	UnitTimeout       time.Duration `koanf:"unit_timeout"` // 0 disables
	RelaxUpstreamRule bool          `koanf:"relax_upstream_rule"`
}

type CacheConfig struct {
	Capacity       int    `koanf:"capacity"`
	ReplayFailures bool   `koanf:"replay_failures"`
	DB             string `koanf:"db"` // SQLite path; empty keeps the cache in memory
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

var defaults = map[string]any{
	"log.level":                  "info",
	"log.format":                 "text",
	"engine.max_concurrency":     4,
	"engine.unit_timeout":        "0s",
	"engine.relax_upstream_rule": false,
	"cache.capacity":             1024,
	"cache.replay_failures":      false,
	"cache.db":                   "",
	"telemetry.exporter":         "none",
	"telemetry.otlp_endpoint":    "",
	"telemetry.otlp_insecure":    false,
}

// Load builds a Config from defaults, the optional YAML file at path, and
// the environment. Each call uses a fresh koanf instance.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("config default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	// SKILLWAVE_ENGINE_MAX_CONCURRENCY -> engine.max_concurrency
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// Only reachable if the environment holds invalid overrides.
		return &Config{
			Log:       LogConfig{Level: "info", Format: "text"},
			Engine:    EngineConfig{MaxConcurrency: 4},
			Cache:     CacheConfig{Capacity: 1024},
			Telemetry: TelemetryConfig{Exporter: "none"},
		}
	}
	return cfg
}

// envKey maps an environment variable to a config key. Only the first
// underscore separates section from key, so key names keep theirs.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format %q is not one of text, json", c.Log.Format)
	}
	if c.Engine.MaxConcurrency < 1 {
		return fmt.Errorf("config: engine.max_concurrency must be at least 1, got %d", c.Engine.MaxConcurrency)
	}
	if c.Engine.UnitTimeout < 0 {
		return fmt.Errorf("config: engine.unit_timeout must not be negative, got %s", c.Engine.UnitTimeout)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("config: cache.capacity must be at least 1, got %d", c.Cache.Capacity)
	}
	switch c.Telemetry.Exporter {
	case "none", "stdout":
	case "otlp":
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("config: telemetry.otlp_endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("config: telemetry.exporter %q is not one of none, stdout, otlp", c.Telemetry.Exporter)
	}
	return nil
}
