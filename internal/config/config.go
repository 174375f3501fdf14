// Package config loads tiplink settings from defaults, an optional YAML
// file and TIPLINK_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment variable, e.g.
// TIPLINK_STORE_DRIVER for store.driver.
const EnvPrefix = "TIPLINK"

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config is the fully resolved configuration.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Genesis  string         `mapstructure:"genesis"`
}

type StoreConfig struct {
	Driver string      `mapstructure:"driver"`
	Path   string      `mapstructure:"path"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DispatchConfig controls outbox delivery. Rate is transfers per second;
// zero disables throttling.
type DispatchConfig struct {
	Schedule string  `mapstructure:"schedule"`
	Rate     float64 `mapstructure:"rate"`
	Burst    int     `mapstructure:"burst"`
	Batch    int     `mapstructure:"batch"`
}

// TransferConfig selects the transferer. An empty webhook logs transfers
// instead of posting them.
type TransferConfig struct {
	Webhook string `mapstructure:"webhook"`
}

// EngineConfig tunes the operation lock. A zero DeadlockTimeout disables
// stall reports.
type EngineConfig struct {
	DeadlockTimeout time.Duration `mapstructure:"deadlock_timeout"`
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "tiplink.db")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.prefix", "tiplink")
	v.SetDefault("http.addr", "127.0.0.1:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("dispatch.schedule", "@every 1m")
	v.SetDefault("dispatch.rate", 10.0)
	v.SetDefault("dispatch.burst", 5)
	v.SetDefault("dispatch.batch", 64)
	v.SetDefault("transfer.webhook", "")
	v.SetDefault("engine.deadlock_timeout", time.Duration(0))
	v.SetDefault("genesis", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (if non-empty) into v and returns the validated result.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and formats.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q (want sqlite, memory or redis)", c.Store.Driver)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	if c.Dispatch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Dispatch.Schedule); err != nil {
			return fmt.Errorf("invalid dispatch.schedule %q: %w", c.Dispatch.Schedule, err)
		}
	}
	if c.Dispatch.Rate < 0 {
		return fmt.Errorf("dispatch.rate must not be negative")
	}
	if c.Dispatch.Rate > 0 && c.Dispatch.Burst < 1 {
		return fmt.Errorf("dispatch.burst must be at least 1 when dispatch.rate is set")
	}
	if c.Dispatch.Batch < 1 {
		return fmt.Errorf("dispatch.batch must be at least 1")
	}
	if c.Engine.DeadlockTimeout < 0 {
		return fmt.Errorf("engine.deadlock_timeout must not be negative")
	}
	return nil
}
