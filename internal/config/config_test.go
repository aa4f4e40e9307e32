package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"studiobook/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("STUDIOBOOK_JWT_SECRET", "s3cret")

	yamlContent := `
app:
  name: studiobook
  timezone: Europe/Rome
database:
  path: "test.db"
auth:
  jwt_secret: "${STUDIOBOOK_JWT_SECRET}"
scheduling:
  lock_timeout: 500ms
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("expected jwt secret from env, got %q", cfg.Auth.JWTSecret)
	}
	if got := cfg.Scheduling.LockTimeoutDuration(); got != 500*time.Millisecond {
		t.Errorf("expected lock timeout 500ms, got %s", got)
	}
	if cfg.Location().String() != "Europe/Rome" {
		t.Errorf("expected Europe/Rome location, got %s", cfg.Location())
	}
}

func TestLoadTOMLConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	tomlContent := `
[database]
path = "studio.db"

[auth]
jwt_secret = "abc"
issuer = "idp"

[api.http]
port = 9000

[scheduling]
max_range_days = 14
`
	if err := os.WriteFile(configPath, []byte(tomlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.API.HTTP.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Auth.Issuer != "idp" {
		t.Errorf("expected issuer idp, got %q", cfg.Auth.Issuer)
	}
	if cfg.Scheduling.MaxRangeDays != 14 {
		t.Errorf("expected max range 14, got %d", cfg.Scheduling.MaxRangeDays)
	}
	if cfg.App.Timezone != models.DefaultTimezone {
		t.Errorf("expected default timezone, got %q", cfg.App.Timezone)
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		cfg := Config{
			Database: DatabaseConfig{Path: "path"},
			Auth:     AuthConfig{JWTSecret: "secret"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "missing secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.App.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "bad lock timeout", mutate: func(c *Config) { c.Scheduling.LockTimeout = "soon" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Scheduling.LockTimeoutDuration() != models.DefaultLockTimeout {
		t.Errorf("expected default lock timeout %s, got %s", models.DefaultLockTimeout, cfg.Scheduling.LockTimeoutDuration())
	}
	if cfg.Scheduling.MaxHolidayDays != models.DefaultMaxHolidayDays {
		t.Errorf("expected default max holiday days %d, got %d", models.DefaultMaxHolidayDays, cfg.Scheduling.MaxHolidayDays)
	}
	if cfg.Notify.PollIntervalDuration() != 2*time.Second {
		t.Errorf("expected default poll interval 2s, got %s", cfg.Notify.PollIntervalDuration())
	}
	if cfg.Monitoring.PrometheusPort != 0 {
		t.Errorf("prometheus port must stay unset while disabled")
	}
}
