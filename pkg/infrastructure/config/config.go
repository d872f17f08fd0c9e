package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FRUITALLOC_STORAGE_DRIVER
const EnvPrefix = "FRUITALLOC"

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverBadger   = "badger"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Allocation AllocationConfig `mapstructure:"allocation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Log        LogConfig        `mapstructure:"log"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type AllocationConfig struct {
	BufferPercent           float64 `mapstructure:"buffer_percent"`
	SmallBatchThresholdKg   float64 `mapstructure:"small_batch_threshold_kg"`
	StatusTolerance         float64 `mapstructure:"status_tolerance"`
	ConsolidateLargeBatches bool    `mapstructure:"consolidate_large_batches"`
	PoolRestrictionGroups   bool    `mapstructure:"pool_restriction_groups"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	BadgerPath  string `mapstructure:"badger_path"`
	RedisURL    string `mapstructure:"redis_url"`
	RedisKey    string `mapstructure:"redis_key"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	LedgerName  string `mapstructure:"ledger_name"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("allocation.buffer_percent", 10.0)
	v.SetDefault("allocation.small_batch_threshold_kg", 900.0)
	v.SetDefault("allocation.status_tolerance", 0.01)
	v.SetDefault("allocation.consolidate_large_batches", true)
	v.SetDefault("allocation.pool_restriction_groups", true)

	v.SetDefault("storage.driver", DriverBadger)
	v.SetDefault("storage.badger_path", "data/ledger")
	v.SetDefault("storage.redis_url", "redis://localhost:6379/0")
	v.SetDefault("storage.redis_key", "fruitalloc:ledger")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.ledger_name", "default")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "fruitalloc.allocations")

	v.SetDefault("metrics.addr", "")
}

// Load reads defaults, then the optional config file, then FRUITALLOC_*
// environment overrides
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and the storage driver
func (c *Config) Validate() error {
	a := c.Allocation
	switch {
	case a.BufferPercent < 0:
		return fmt.Errorf("allocation.buffer_percent must not be negative, got %v", a.BufferPercent)
	case a.SmallBatchThresholdKg < 0:
		return fmt.Errorf("allocation.small_batch_threshold_kg must not be negative, got %v", a.SmallBatchThresholdKg)
	case a.StatusTolerance < 0 || a.StatusTolerance >= 1:
		return fmt.Errorf("allocation.status_tolerance must be in [0, 1), got %v", a.StatusTolerance)
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverBadger:
	case DriverRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis driver")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}
