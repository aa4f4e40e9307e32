package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"studiobook/internal/models"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app" toml:"app"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Redis      RedisConfig      `yaml:"redis" toml:"redis"`
	Backup     BackupConfig     `yaml:"backup" toml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring" toml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	API        APIConfig        `yaml:"api" toml:"api"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Scheduling SchedulingConfig `yaml:"scheduling" toml:"scheduling"`
	Notify     NotifyConfig     `yaml:"notify" toml:"notify"`
	SeedPath   string           `yaml:"seed_path" toml:"seed_path"`
}

type AppConfig struct {
	Name        string `yaml:"name" toml:"name"`
	Environment string `yaml:"environment" toml:"environment"`
	Version     string `yaml:"version" toml:"version"`
	Timezone    string `yaml:"timezone" toml:"timezone"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type RedisConfig struct {
	Address    string `yaml:"address" toml:"address"`
	Password   string `yaml:"password" toml:"password"`
	DB         int    `yaml:"db" toml:"db"`
	PoolSize   int    `yaml:"pool_size" toml:"pool_size"`
	LockPrefix string `yaml:"lock_prefix" toml:"lock_prefix"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	Schedule      string `yaml:"schedule" toml:"schedule"`
	RetentionDays int    `yaml:"retention_days" toml:"retention_days"`
	StoragePath   string `yaml:"storage_path" toml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled" toml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port" toml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" toml:"level"`
	Format   string `yaml:"format" toml:"format"`
	Output   string `yaml:"output" toml:"output"`
	FilePath string `yaml:"file_path" toml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http" toml:"http"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps" toml:"rps"`
	Burst int     `yaml:"burst" toml:"burst"`
}

// AuthConfig describes how tokens issued by the identity provider are verified.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	Issuer    string `yaml:"issuer" toml:"issuer"`
}

type SchedulingConfig struct {
	LockTimeout    string `yaml:"lock_timeout" toml:"lock_timeout"`
	LockTTL        string `yaml:"lock_ttl" toml:"lock_ttl"`
	MaxRangeDays   int    `yaml:"max_range_days" toml:"max_range_days"`
	MaxHolidayDays int    `yaml:"max_holiday_days" toml:"max_holiday_days"`
}

// NotifyConfig controls delivery of schedule change notifications.
type NotifyConfig struct {
	Enabled      bool   `yaml:"enabled" toml:"enabled"`
	Channel      string `yaml:"channel" toml:"channel"`
	FeedKey      string `yaml:"feed_key" toml:"feed_key"`
	MaxRetries   int    `yaml:"max_retries" toml:"max_retries"`
	PollInterval string `yaml:"poll_interval" toml:"poll_interval"`
}

// Load reads the config file, expanding ${VAR} references from the environment and an
// optional .env file. Files ending in .toml are decoded as TOML, anything else as YAML.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := os.ExpandEnv(string(data))

	var config Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".toml":
		if _, err := toml.Decode(expandedData, &config); err != nil {
			return nil, fmt.Errorf("decode toml config: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt_secret is required")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid app timezone %q: %w", c.App.Timezone, err)
	}
	for name, raw := range map[string]string{
		"scheduling.lock_timeout": c.Scheduling.LockTimeout,
		"scheduling.lock_ttl":     c.Scheduling.LockTTL,
		"notify.poll_interval":    c.Notify.PollInterval,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "studiobook"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = models.DefaultTimezone
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Redis.LockPrefix == "" {
		c.Redis.LockPrefix = "studiobook:lock:"
	}

	// Scheduling defaults
	if c.Scheduling.LockTimeout == "" {
		c.Scheduling.LockTimeout = models.DefaultLockTimeout.String()
	}
	if c.Scheduling.LockTTL == "" {
		c.Scheduling.LockTTL = models.DefaultLockTTL.String()
	}
	if c.Scheduling.MaxRangeDays == 0 {
		c.Scheduling.MaxRangeDays = models.DefaultMaxRangeDays
	}
	if c.Scheduling.MaxHolidayDays == 0 {
		c.Scheduling.MaxHolidayDays = models.DefaultMaxHolidayDays
	}

	if c.Notify.Channel == "" {
		c.Notify.Channel = "studiobook:notifications"
	}
	if c.Notify.FeedKey == "" {
		c.Notify.FeedKey = "studiobook:notifications:feed"
	}
	if c.Notify.MaxRetries == 0 {
		c.Notify.MaxRetries = 5
	}
	if c.Notify.PollInterval == "" {
		c.Notify.PollInterval = "2s"
	}
}

// Location returns the configured time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s SchedulingConfig) LockTimeoutDuration() time.Duration {
	return parseDurationOr(s.LockTimeout, models.DefaultLockTimeout)
}

func (s SchedulingConfig) LockTTLDuration() time.Duration {
	return parseDurationOr(s.LockTTL, models.DefaultLockTTL)
}

func (n NotifyConfig) PollIntervalDuration() time.Duration {
	return parseDurationOr(n.PollInterval, 2*time.Second)
}

func parseDurationOr(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
