// Package config provides configuration file support for tasklift.
// It handles loading, validation, and environment variable interpolation
// for tasklift.yaml configuration files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full tasklift configuration.
type Config struct {
	AI        AIConfig        `mapstructure:"ai"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Throttle  ThrottleConfig  `mapstructure:"throttle"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AIConfig holds remote model settings.
type AIConfig struct {
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	KeyFile    string        `mapstructure:"key_file"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// CacheConfig holds per-family TTLs and capacities.
type CacheConfig struct {
	Motivation FamilyConfig `mapstructure:"motivation"`
	Metadata   FamilyConfig `mapstructure:"metadata"`
	Kit        FamilyConfig `mapstructure:"kit"`
	Breakdown  FamilyConfig `mapstructure:"breakdown"`
}

// FamilyConfig is one cache tier's policy.
type FamilyConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	Capacity int           `mapstructure:"capacity"`
}

// BreakerConfig holds quota circuit breaker settings.
type BreakerConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// ThrottleConfig holds the metadata-refinement call budget.
type ThrottleConfig struct {
	RefineLimit  int           `mapstructure:"refine_limit"`
	RefineWindow time.Duration `mapstructure:"refine_window"`
}

// StorageConfig holds snapshot persistence settings.
type StorageConfig struct {
	Backend    string        `mapstructure:"backend"`
	Path       string        `mapstructure:"path"`
	FlushDelay time.Duration `mapstructure:"flush_delay"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Exporter   string  `mapstructure:"exporter"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
	Insecure   bool    `mapstructure:"insecure"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Model:      "gpt-4o-mini",
			BaseURL:    "https://api.openai.com/v1",
			Timeout:    30 * time.Second,
			MaxRetries: 2,
		},
		Cache: CacheConfig{
			Motivation: FamilyConfig{TTL: 3 * time.Minute, Capacity: 100},
			Metadata:   FamilyConfig{TTL: 30 * 24 * time.Hour, Capacity: 300},
			Kit:        FamilyConfig{TTL: 24 * time.Hour, Capacity: 120},
			Breakdown:  FamilyConfig{TTL: 30 * 24 * time.Hour, Capacity: 200},
		},
		Breaker: BreakerConfig{
			Cooldown: 30 * time.Minute,
		},
		Throttle: ThrottleConfig{
			RefineLimit:  5,
			RefineWindow: time.Minute,
		},
		Storage: StorageConfig{
			Backend:    "file",
			FlushDelay: 750 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "otlp",
				Endpoint:   "localhost:4317",
				SampleRate: 1.0,
				Insecure:   true,
			},
		},
	}
}

// Load reads configuration from the given viper instance and returns
// a validated Config. Environment variables in string values are
// interpolated using ${VAR} syntax.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	interpolateConfig(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads a specific config file and returns a validated Config.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Load(v)
}

// Validate checks the configuration for errors and returns a descriptive
// error if any field is invalid.
func Validate(cfg *Config) error {
	var errs []string

	// AI validation
	if cfg.AI.Model == "" {
		errs = append(errs, "ai.model: must not be empty")
	}
	if cfg.AI.Timeout < 0 {
		errs = append(errs, "ai.timeout: must be non-negative")
	}
	if cfg.AI.MaxRetries < 0 {
		errs = append(errs, "ai.max_retries: must be non-negative")
	}

	// Cache validation
	for name, fam := range map[string]FamilyConfig{
		"cache.motivation": cfg.Cache.Motivation,
		"cache.metadata":   cfg.Cache.Metadata,
		"cache.kit":        cfg.Cache.Kit,
		"cache.breakdown":  cfg.Cache.Breakdown,
	} {
		if fam.TTL <= 0 {
			errs = append(errs, fmt.Sprintf("%s.ttl: must be positive, got %v", name, fam.TTL))
		}
		if fam.Capacity <= 0 {
			errs = append(errs, fmt.Sprintf("%s.capacity: must be positive, got %d", name, fam.Capacity))
		}
	}

	// Breaker validation
	if cfg.Breaker.Cooldown <= 0 {
		errs = append(errs, fmt.Sprintf("breaker.cooldown: must be positive, got %v", cfg.Breaker.Cooldown))
	}

	// Throttle validation
	if cfg.Throttle.RefineLimit <= 0 {
		errs = append(errs, fmt.Sprintf("throttle.refine_limit: must be positive, got %d", cfg.Throttle.RefineLimit))
	}
	if cfg.Throttle.RefineWindow <= 0 {
		errs = append(errs, fmt.Sprintf("throttle.refine_window: must be positive, got %v", cfg.Throttle.RefineWindow))
	}

	// Storage validation
	validBackends := map[string]bool{"file": true, "sqlite": true, "": true}
	if !validBackends[cfg.Storage.Backend] {
		errs = append(errs, fmt.Sprintf("storage.backend: unsupported backend %q (supported: file, sqlite)", cfg.Storage.Backend))
	}
	if cfg.Storage.FlushDelay < 0 {
		errs = append(errs, "storage.flush_delay: must be non-negative")
	}

	// Telemetry validation
	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true, "": true}
	if !validExporters[cfg.Telemetry.Tracing.Exporter] {
		errs = append(errs, fmt.Sprintf("telemetry.tracing.exporter: unsupported exporter %q (supported: otlp, stdout, none)", cfg.Telemetry.Tracing.Exporter))
	}
	if cfg.Telemetry.Tracing.SampleRate < 0 || cfg.Telemetry.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("telemetry.tracing.sample_rate: must be between 0 and 1, got %f", cfg.Telemetry.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnv replaces ${VAR} and ${VAR:-default} patterns in a string
// with the corresponding environment variable values.
func InterpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		if defaultVal != "" {
			return defaultVal
		}
		return match
	})
}

// interpolateConfig applies environment variable interpolation to all
// string fields in the config.
func interpolateConfig(cfg *Config) {
	cfg.AI.Model = InterpolateEnv(cfg.AI.Model)
	cfg.AI.BaseURL = InterpolateEnv(cfg.AI.BaseURL)
	cfg.AI.APIKey = InterpolateEnv(cfg.AI.APIKey)
	cfg.AI.KeyFile = InterpolateEnv(cfg.AI.KeyFile)
	cfg.Storage.Backend = InterpolateEnv(cfg.Storage.Backend)
	cfg.Storage.Path = InterpolateEnv(cfg.Storage.Path)
	cfg.Telemetry.Tracing.Exporter = InterpolateEnv(cfg.Telemetry.Tracing.Exporter)
	cfg.Telemetry.Tracing.Endpoint = InterpolateEnv(cfg.Telemetry.Tracing.Endpoint)
}

// GenerateTemplate returns a YAML template string with all available
// configuration options and their defaults, suitable for writing to
// a tasklift.yaml file.
func GenerateTemplate() string {
	return `# tasklift Configuration

ai:
  model: gpt-4o-mini
  base_url: https://api.openai.com/v1
  api_key: ""              # or ${OPENAI_API_KEY}
  key_file: ""             # read the key from a file instead
  timeout: 30s
  max_retries: 2

cache:
  motivation:
    ttl: 3m
    capacity: 100
  metadata:
    ttl: 720h              # 30 days
    capacity: 300
  kit:
    ttl: 24h
    capacity: 120
  breakdown:
    ttl: 720h              # 30 days
    capacity: 200

breaker:
  cooldown: 30m

throttle:
  refine_limit: 5
  refine_window: 1m

storage:
  backend: file            # file or sqlite
  path: ""                 # default: user cache dir
  flush_delay: 750ms

telemetry:
  tracing:
    enabled: false
    exporter: otlp         # otlp, stdout, or none
    endpoint: localhost:4317
    sample_rate: 1.0       # 0.0 to 1.0
    insecure: true
`
}
