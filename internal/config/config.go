package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Platform    PlatformConfig    `mapstructure:"platform"`
	Hierarchy   HierarchyConfig   `mapstructure:"hierarchy"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Store       StoreConfig       `mapstructure:"store"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Reporting   ReportingConfig   `mapstructure:"reporting"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PlatformConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIVersion  string  `mapstructure:"api_version"`
	TimeoutSecs int     `mapstructure:"timeout_secs"`
	MaxPages    int     `mapstructure:"max_pages"`
	PageSize    int     `mapstructure:"page_size"`
	RatePerSec  float64 `mapstructure:"rate_per_sec"`
	Burst       int     `mapstructure:"burst"`
	MaxInFlight int64   `mapstructure:"max_in_flight"`
	MaxAttempts int     `mapstructure:"max_attempts"`
}

type HierarchyConfig struct {
	FanOut int `mapstructure:"fan_out"`
}

type CacheConfig struct {
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

type PersistenceConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

type ReportingConfig struct {
	Timezone string `mapstructure:"timezone"`
}

func (c PlatformConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

func (c ReportingConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INSIGHTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("platform.base_url", "https://graph.facebook.com")
	v.SetDefault("platform.api_version", "v19.0")
	v.SetDefault("platform.timeout_secs", 15)
	v.SetDefault("platform.max_pages", 25)
	v.SetDefault("platform.page_size", 100)
	v.SetDefault("platform.rate_per_sec", 8)
	v.SetDefault("platform.burst", 8)
	v.SetDefault("platform.max_in_flight", 6)
	v.SetDefault("platform.max_attempts", 3)
	v.SetDefault("hierarchy.fan_out", 4)
	v.SetDefault("cache.ttl_minutes", 30)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("persistence.batch_size", 400)
	v.SetDefault("reporting.timezone", "UTC")
}

func InitLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
