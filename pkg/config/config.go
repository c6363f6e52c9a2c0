// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure for the control plane.
type Config struct {
	App           AppConfig           `koanf:"app"`
	HTTP          HTTPConfig          `koanf:"http"`
	Log           LogConfig           `koanf:"log"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	Tracing       TracingConfig       `koanf:"tracing"`
	Collaborators CollaboratorsConfig `koanf:"collaborators"`
	Database      DatabaseConfig      `koanf:"database"`
	Cache         CacheConfig         `koanf:"cache"`
	RateLimit     RateLimitConfig     `koanf:"rate_limit"`
	Audit         AuditConfig         `koanf:"audit"`
	Retry         RetryConfig         `koanf:"retry"`
	Hydraulics    HydraulicsConfig    `koanf:"hydraulics"`
	Scheduler     SchedulerConfig     `koanf:"scheduler"`
	Gate          GateConfig          `koanf:"gate"`
	Network       NetworkConfig       `koanf:"network"`
	Jobs          JobsConfig          `koanf:"jobs"`
}

// NetworkConfig locates the canal network topology document this process
// loads at startup.
type NetworkConfig struct {
	TopologyPath string `koanf:"topology_path"`
}

// JobsConfig configures the asynq-backed background task queue and its
// periodic triggers.
type JobsConfig struct {
	RedisAddr         string        `koanf:"redis_addr"`
	RedisPassword     string        `koanf:"redis_password"`
	RedisDB           int           `koanf:"redis_db"`
	Concurrency       int           `koanf:"concurrency"`
	WeeklyBuildPeriod time.Duration `koanf:"weekly_build_period"`
	DailyAccumPeriod  time.Duration `koanf:"daily_accumulate_period"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// HTTPConfig configures the process's own health/metrics/admin HTTP surface.
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`   // path to the log file
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // rotation backup count
	MaxAge     int    `koanf:"max_age"`     // days
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// CollaboratorsConfig holds the addresses of the external systems the
// control plane depends on but does not own.
type CollaboratorsConfig struct {
	Agronomy       ServiceEndpoint `koanf:"agronomy"`
	GIS            ServiceEndpoint `koanf:"gis"`
	SCADA          ServiceEndpoint `koanf:"scada"`
	SCADAStreamURL string          `koanf:"scada_stream_url"`
	Weather        ServiceEndpoint `koanf:"weather"`
}

// ServiceEndpoint configures an outbound HTTP connection to a collaborator.
type ServiceEndpoint struct {
	BaseURL      string        `koanf:"base_url"`
	Timeout      time.Duration `koanf:"timeout"`
	MaxRetries   int           `koanf:"max_retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // postgres
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	MigrationsPath  string        `koanf:"migrations_path"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
		)
	default:
		return ""
	}
}

// CacheConfig configures the demand-aggregator and solver result caches.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // for the in-memory backend
}

// Address returns the cache backend's network address.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig configures throttling of outbound collaborator calls.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Strategy        string        `koanf:"strategy"`
	Backend         string        `koanf:"backend"`
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Backend         string        `koanf:"backend"` // http, stdout
	BaseURL         string        `koanf:"base_url"`
	BufferSize      int           `koanf:"buffer_size"`
	FlushPeriod     time.Duration `koanf:"flush_period"`
	ExcludeMethods  []string      `koanf:"exclude_methods"`
	IncludeRequest  bool          `koanf:"include_request"`
	IncludeResponse bool          `koanf:"include_response"`
}

// RetryConfig configures outbound retry/backoff behavior.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// HydraulicsConfig configures the fixed-point hydraulic solver.
type HydraulicsConfig struct {
	RelaxationFactor     float64       `koanf:"relaxation_factor"`
	TimeStep             time.Duration `koanf:"time_step"`
	ConvergenceToleranceM float64      `koanf:"convergence_tolerance_m"`
	MaxIterations        int           `koanf:"max_iterations"`
	InverseOuterIterations int         `koanf:"inverse_outer_iterations"`
	InverseAdjustmentFactor float64    `koanf:"inverse_adjustment_factor"`
	SolveTimeout         time.Duration `koanf:"solve_timeout"`
}

// DefaultHydraulicsConfig returns the calibrated constants used throughout
// the original hydraulic model.
func DefaultHydraulicsConfig() HydraulicsConfig {
	return HydraulicsConfig{
		RelaxationFactor:        0.7,
		TimeStep:                60 * time.Second,
		ConvergenceToleranceM:   1e-3,
		MaxIterations:           100,
		InverseOuterIterations:  20,
		InverseAdjustmentFactor: 0.3,
		SolveTimeout:            30 * time.Second,
	}
}

// SchedulerConfig configures the weekly batch scheduler and its optimizers.
type SchedulerConfig struct {
	WeeklyBuildTimeout  time.Duration `koanf:"weekly_build_timeout"`
	ReoptimizeTimeout   time.Duration `koanf:"reoptimize_timeout"`
	MILPTimeLimit       time.Duration `koanf:"milp_time_limit"`
	DemandCacheTTL      time.Duration `koanf:"demand_cache_ttl"`
	OpenStagger         time.Duration `koanf:"open_stagger"`
	CloseStagger        time.Duration `koanf:"close_stagger"`
}

// DefaultSchedulerConfig returns the calibrated constants for the weekly
// scheduler pipeline.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		WeeklyBuildTimeout: 60 * time.Second,
		ReoptimizeTimeout:  30 * time.Second,
		MILPTimeLimit:      20 * time.Second,
		DemandCacheTTL:     15 * time.Minute,
		OpenStagger:        2 * time.Minute,
		CloseStagger:       5 * time.Minute,
	}
}

// GateConfig configures the dual-mode gate controller.
type GateConfig struct {
	ManualUpdateInterval   time.Duration `koanf:"manual_update_interval"`
	StaleWarningMultiplier float64       `koanf:"stale_warning_multiplier"`
	AutomatedPrefixes      []string      `koanf:"automated_prefixes"`
}

// DefaultGateConfig returns the calibrated constants for gate control.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		ManualUpdateInterval:   15 * time.Minute,
		StaleWarningMultiplier: 2.0,
		AutomatedPrefixes:      []string{"HG-C", "CHK", "RG"},
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Hydraulics.RelaxationFactor <= 0 || c.Hydraulics.RelaxationFactor > 1 {
		errs = append(errs, fmt.Sprintf("hydraulics.relaxation_factor must be in (0, 1], got %v", c.Hydraulics.RelaxationFactor))
	}

	if c.Hydraulics.MaxIterations <= 0 {
		errs = append(errs, "hydraulics.max_iterations must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether the app is running in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction reports whether the app is running in a production environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
