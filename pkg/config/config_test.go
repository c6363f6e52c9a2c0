package config

import (
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				App:        AppConfig{Name: "test-service"},
				HTTP:       HTTPConfig{Port: 8080},
				Log:        LogConfig{Level: "info"},
				Hydraulics: DefaultHydraulicsConfig(),
			},
			wantErr: false,
		},
		{
			name: "missing app name",
			cfg: Config{
				HTTP:       HTTPConfig{Port: 8080},
				Log:        LogConfig{Level: "info"},
				Hydraulics: DefaultHydraulicsConfig(),
			},
			wantErr: true,
		},
		{
			name: "invalid port - zero",
			cfg: Config{
				App:        AppConfig{Name: "test"},
				HTTP:       HTTPConfig{Port: 0},
				Hydraulics: DefaultHydraulicsConfig(),
			},
			wantErr: true,
		},
		{
			name: "invalid port - too high",
			cfg: Config{
				App:        AppConfig{Name: "test"},
				HTTP:       HTTPConfig{Port: 70000},
				Hydraulics: DefaultHydraulicsConfig(),
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: Config{
				App:        AppConfig{Name: "test"},
				HTTP:       HTTPConfig{Port: 8080},
				Log:        LogConfig{Level: "invalid"},
				Hydraulics: DefaultHydraulicsConfig(),
			},
			wantErr: true,
		},
		{
			name: "valid debug level",
			cfg: Config{
				App:        AppConfig{Name: "test"},
				HTTP:       HTTPConfig{Port: 8080},
				Log:        LogConfig{Level: "debug"},
				Hydraulics: DefaultHydraulicsConfig(),
			},
			wantErr: false,
		},
		{
			name: "invalid relaxation factor",
			cfg: Config{
				App:        AppConfig{Name: "test"},
				HTTP:       HTTPConfig{Port: 8080},
				Log:        LogConfig{Level: "info"},
				Hydraulics: HydraulicsConfig{RelaxationFactor: 1.5, MaxIterations: 100},
			},
			wantErr: true,
		},
		{
			name: "invalid max iterations",
			cfg: Config{
				App:        AppConfig{Name: "test"},
				HTTP:       HTTPConfig{Port: 8080},
				Log:        LogConfig{Level: "info"},
				Hydraulics: HydraulicsConfig{RelaxationFactor: 0.7, MaxIterations: 0},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"dev", true},
		{"production", false},
		{"staging", false},
	}

	for _, tt := range tests {
		cfg := &Config{App: AppConfig{Environment: tt.env}}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment() for %s = %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"production", true},
		{"prod", true},
		{"development", false},
		{"staging", false},
	}

	for _, tt := range tests {
		cfg := &Config{App: AppConfig{Environment: tt.env}}
		if got := cfg.IsProduction(); got != tt.want {
			t.Errorf("IsProduction() for %s = %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		cfg    DatabaseConfig
		expect string
	}{
		{
			name: "postgres",
			cfg: DatabaseConfig{
				Driver:   "postgres",
				Host:     "localhost",
				Port:     5432,
				Database: "testdb",
				Username: "user",
				Password: "pass",
				SSLMode:  "disable",
			},
			expect: "host=localhost port=5432 user=user password=pass dbname=testdb sslmode=disable",
		},
		{
			name: "unknown",
			cfg: DatabaseConfig{
				Driver: "unknown",
			},
			expect: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := tt.cfg.DSN()
			if dsn != tt.expect {
				t.Errorf("expected DSN %s, got %s", tt.expect, dsn)
			}
		})
	}
}

func TestCacheConfig_Address(t *testing.T) {
	cfg := CacheConfig{
		Host: "redis.local",
		Port: 6379,
	}

	addr := cfg.Address()
	if addr != "redis.local:6379" {
		t.Errorf("expected 'redis.local:6379', got %s", addr)
	}
}

func TestDefaultHydraulicsConfig(t *testing.T) {
	cfg := DefaultHydraulicsConfig()

	if cfg.RelaxationFactor != 0.7 {
		t.Errorf("RelaxationFactor = %v, want 0.7", cfg.RelaxationFactor)
	}
	if cfg.MaxIterations != 100 {
		t.Errorf("MaxIterations = %v, want 100", cfg.MaxIterations)
	}
	if cfg.ConvergenceToleranceM != 1e-3 {
		t.Errorf("ConvergenceToleranceM = %v, want 1e-3", cfg.ConvergenceToleranceM)
	}
}

func TestDefaultSchedulerConfig(t *testing.T) {
	cfg := DefaultSchedulerConfig()

	if cfg.OpenStagger.Minutes() != 2 {
		t.Errorf("OpenStagger = %v, want 2m", cfg.OpenStagger)
	}
	if cfg.CloseStagger.Minutes() != 5 {
		t.Errorf("CloseStagger = %v, want 5m", cfg.CloseStagger)
	}
}

func TestDefaultGateConfig(t *testing.T) {
	cfg := DefaultGateConfig()

	if cfg.ManualUpdateInterval.Minutes() != 15 {
		t.Errorf("ManualUpdateInterval = %v, want 15m", cfg.ManualUpdateInterval)
	}
	if len(cfg.AutomatedPrefixes) != 3 {
		t.Errorf("AutomatedPrefixes = %v, want 3 entries", cfg.AutomatedPrefixes)
	}
}
