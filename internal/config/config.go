package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Summary    SummaryConfig    `mapstructure:"summary"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver      string         `mapstructure:"driver"`
	TimescaleDB PostgresConfig `mapstructure:"timescaledb"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port for the redis client
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type MonitoringConfig struct {
	MetricsPath string `mapstructure:"metrics_path"`
}

type SummaryConfig struct {
	Ledger          string         `mapstructure:"ledger"`
	DrainInterval   time.Duration  `mapstructure:"drain_interval"`
	DrainBatchLimit int            `mapstructure:"drain_batch_limit"`
	Backfill        BackfillConfig `mapstructure:"backfill"`
}

type BackfillConfig struct {
	StepDays      int     `mapstructure:"step_days"`
	AutoGrowStep  bool    `mapstructure:"auto_grow_step"`
	GrowFactor    float64 `mapstructure:"grow_factor"`
	GrowThreshold int     `mapstructure:"grow_threshold"`
	MaxStepDays   int     `mapstructure:"max_step_days"`
}

// Load initializes configuration from environment variables and config file
func Load() (*Config, error) {
	return load(viper.GetViper())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("BEEWEB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.timescaledb.host", "localhost")
	v.SetDefault("database.timescaledb.port", 5432)
	v.SetDefault("database.timescaledb.user", "beeweb")
	v.SetDefault("database.timescaledb.password", "")
	v.SetDefault("database.timescaledb.dbname", "beeweb")
	v.SetDefault("database.timescaledb.sslmode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Monitoring defaults
	v.SetDefault("monitoring.metrics_path", "/api/v1/metrics")

	// Summary defaults
	v.SetDefault("summary.ledger", LedgerPostgres)
	v.SetDefault("summary.drain_interval", "15s")
	v.SetDefault("summary.drain_batch_limit", 500)
	v.SetDefault("summary.backfill.step_days", 7)
	v.SetDefault("summary.backfill.auto_grow_step", true)
	v.SetDefault("summary.backfill.grow_factor", 2.0)
	v.SetDefault("summary.backfill.grow_threshold", 3)
	v.SetDefault("summary.backfill.max_step_days", 60)
}

func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case DriverPostgres:
		if config.Database.TimescaleDB.Host == "" {
			return fmt.Errorf("timescaledb host is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", config.Database.Driver)
	}

	switch config.Summary.Ledger {
	case LedgerPostgres:
	case LedgerRedis:
		if config.Redis.Host == "" {
			return fmt.Errorf("redis host is required for the redis ledger")
		}
	default:
		return fmt.Errorf("unknown summary ledger %q", config.Summary.Ledger)
	}

	if config.Summary.DrainInterval <= 0 {
		return fmt.Errorf("summary drain interval must be positive")
	}
	if config.Summary.DrainBatchLimit < 1 {
		return fmt.Errorf("summary drain batch limit must be at least 1")
	}

	b := config.Summary.Backfill
	if b.StepDays < 1 {
		return fmt.Errorf("backfill step_days must be at least 1")
	}
	if b.GrowFactor <= 1 {
		return fmt.Errorf("backfill grow_factor must be greater than 1")
	}
	if b.GrowThreshold < 1 {
		return fmt.Errorf("backfill grow_threshold must be at least 1")
	}
	if b.MaxStepDays < b.StepDays {
		return fmt.Errorf("backfill max_step_days must not be below step_days")
	}
	return nil
}
