// pkg/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "MUNBON_"
	configEnvVar = "CONFIG_PATH"
)

// Loader loads configuration from layered sources.
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/munbon/config.yaml",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigPaths sets the search paths for the config file.
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load loads configuration with priority:
// 1. Defaults (lowest)
// 2. Config file (yaml)
// 3. Environment variables (highest)
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional.
		fmt.Printf("Warning: %v\n", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults loads the default configuration values.
func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		// App
		"app.name":        "irrigation-control",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.debug":       false,

		// HTTP
		"http.port":             8080,
		"http.read_timeout":     30 * time.Second,
		"http.write_timeout":    30 * time.Second,
		"http.shutdown_timeout": 10 * time.Second,

		// Log
		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		// Metrics
		"metrics.enabled":   true,
		"metrics.port":      9090,
		"metrics.path":      "/metrics",
		"metrics.namespace": "irrigation",
		"metrics.subsystem": "",

		// Tracing
		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "irrigation-control",
		"tracing.sample_rate":  0.1,

		// Collaborators
		"collaborators.agronomy.base_url":      "http://localhost:9101",
		"collaborators.agronomy.timeout":       30 * time.Second,
		"collaborators.agronomy.max_retries":   3,
		"collaborators.agronomy.retry_backoff": 200 * time.Millisecond,

		"collaborators.gis.base_url":      "http://localhost:9102",
		"collaborators.gis.timeout":       30 * time.Second,
		"collaborators.gis.max_retries":   3,
		"collaborators.gis.retry_backoff": 200 * time.Millisecond,

		"collaborators.scada.base_url":      "http://localhost:9103",
		"collaborators.scada.timeout":       10 * time.Second,
		"collaborators.scada.max_retries":   2,
		"collaborators.scada.retry_backoff": 100 * time.Millisecond,
		"collaborators.scada_stream_url":    "ws://localhost:9103/gates/stream",

		"collaborators.weather.base_url":      "http://localhost:9104",
		"collaborators.weather.timeout":       30 * time.Second,
		"collaborators.weather.max_retries":   3,
		"collaborators.weather.retry_backoff": 200 * time.Millisecond,

		// Database
		"database.driver":             "postgres",
		"database.host":               "localhost",
		"database.port":               5432,
		"database.database":           "munbon_irrigation",
		"database.username":           "postgres",
		"database.password":           "",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  5 * time.Minute,
		"database.conn_max_idle_time": 5 * time.Minute,
		"database.auto_migrate":       true,

		// Cache
		"cache.enabled":     true,
		"cache.driver":      "memory",
		"cache.host":        "localhost",
		"cache.port":        6379,
		"cache.db":          0,
		"cache.default_ttl": 15 * time.Minute,
		"cache.max_entries": 10000,

		// Rate Limit
		"rate_limit.enabled":          true,
		"rate_limit.requests":         100,
		"rate_limit.window":           time.Minute,
		"rate_limit.strategy":         "sliding_window",
		"rate_limit.backend":          "memory",
		"rate_limit.burst_size":       10,
		"rate_limit.cleanup_interval": 5 * time.Minute,

		// Audit
		"audit.enabled":      true,
		"audit.backend":      "stdout",
		"audit.buffer_size":  1000,
		"audit.flush_period": 5 * time.Second,

		// Retry
		"retry.max_attempts":       3,
		"retry.initial_backoff":    100 * time.Millisecond,
		"retry.max_backoff":        10 * time.Second,
		"retry.backoff_multiplier": 2.0,

		// Hydraulics
		"hydraulics.relaxation_factor":           0.7,
		"hydraulics.time_step":                   60 * time.Second,
		"hydraulics.convergence_tolerance_m":      1e-3,
		"hydraulics.max_iterations":               100,
		"hydraulics.inverse_outer_iterations":     20,
		"hydraulics.inverse_adjustment_factor":    0.3,
		"hydraulics.solve_timeout":                30 * time.Second,

		// Scheduler
		"scheduler.weekly_build_timeout": 60 * time.Second,
		"scheduler.reoptimize_timeout":   30 * time.Second,
		"scheduler.milp_time_limit":      20 * time.Second,
		"scheduler.demand_cache_ttl":     15 * time.Minute,
		"scheduler.open_stagger":         2 * time.Minute,
		"scheduler.close_stagger":        5 * time.Minute,

		// Gate
		"gate.manual_update_interval":    15 * time.Minute,
		"gate.stale_warning_multiplier":  2.0,
		"gate.automated_prefixes":        []string{"HG-C", "CHK", "RG"},

		// Network
		"network.topology_path": "configs/topology.yaml",

		// Jobs
		"jobs.redis_addr":                "localhost:6379",
		"jobs.redis_password":            "",
		"jobs.redis_db":                  0,
		"jobs.concurrency":               10,
		"jobs.weekly_build_period":       7 * 24 * time.Hour,
		"jobs.daily_accumulate_period":   24 * time.Hour,
	}

	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

// loadConfigFile loads configuration from a YAML file.
func (l *Loader) loadConfigFile() error {
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return l.k.Load(file.Provider(configPath), yaml.Parser())
		}
	}

	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), yaml.Parser())
		}
	}

	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

// loadEnv loads configuration from environment variables.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		// MUNBON_HTTP_PORT -> http.port
		return strings.ReplaceAll(
			strings.ToLower(
				strings.TrimPrefix(s, l.envPrefix),
			),
			"_", ".",
		)
	}), nil)
}

// MustLoad loads configuration or panics.
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load loads configuration using default settings.
func Load() (*Config, error) {
	return NewLoader().Load()
}

// LoadWithServiceDefaults loads configuration overriding the HTTP port and
// app name for a specific deployment.
func LoadWithServiceDefaults(serviceName string, defaultPort int) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if cfg.HTTP.Port == 8080 && defaultPort != 0 {
		cfg.HTTP.Port = defaultPort
	}

	if cfg.App.Name == "irrigation-control" {
		cfg.App.Name = serviceName
	}

	return cfg, nil
}
