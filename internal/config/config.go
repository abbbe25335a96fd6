// Package config provides Viper-based hierarchical configuration: defaults,
// then an optional config file under the data directory, then FINCACHE_*
// environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/finboard/fincache/internal/core"
)

// Config is the complete application configuration.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Cache struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"cache"`

	Refresh struct {
		MaxPerSession int   `mapstructure:"max_per_session"`
		MinIntervalMs int64 `mapstructure:"min_interval_ms"`
	} `mapstructure:"refresh"`

	Fetch struct {
		Workers int `mapstructure:"workers"`
	} `mapstructure:"fetch"`

	Providers struct {
		Zoho struct {
			BaseURL string `mapstructure:"base_url"`
			APIKey  string `mapstructure:"api_key"`
		} `mapstructure:"zoho"`
		Stripe struct {
			BaseURL string `mapstructure:"base_url"`
			APIKey  string `mapstructure:"api_key"`
		} `mapstructure:"stripe"`
	} `mapstructure:"providers"`
}

// Load builds the configuration. A missing config file is fine; defaults
// and environment variables carry the rest.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(core.DataRoot())
	v.AddConfigPath(".")

	v.SetEnvPrefix("FINCACHE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	// API keys come from unprefixed env vars when set, matching how the
	// providers hand them out.
	_ = v.BindEnv("providers.zoho.api_key", "FINCACHE_ZOHO_API_KEY", "ZOHO_API_KEY")
	_ = v.BindEnv("providers.stripe.api_key", "FINCACHE_STRIPE_API_KEY", "STRIPE_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("cache.dir", "")

	v.SetDefault("refresh.max_per_session", core.DefaultMaxRefreshesPerSession)
	v.SetDefault("refresh.min_interval_ms", core.DefaultMinRefreshInterval)

	v.SetDefault("fetch.workers", core.DefaultFetchWorkers)

	v.SetDefault("providers.zoho.base_url", "https://books.zoho.com/api/v3")
	v.SetDefault("providers.stripe.base_url", "https://api.stripe.com/v1")
}

func validate(cfg *Config) error {
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", cfg.Log.Format)
	}
	if cfg.Refresh.MaxPerSession < 1 {
		return fmt.Errorf("refresh.max_per_session must be at least 1, got %d", cfg.Refresh.MaxPerSession)
	}
	if cfg.Refresh.MinIntervalMs < 0 {
		return fmt.Errorf("refresh.min_interval_ms must not be negative, got %d", cfg.Refresh.MinIntervalMs)
	}
	if cfg.Fetch.Workers < 1 {
		return fmt.Errorf("fetch.workers must be at least 1, got %d", cfg.Fetch.Workers)
	}
	return nil
}

// ConfigureLogging builds a logrus logger from the Log section.
func ConfigureLogging(cfg *Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.ToLower(cfg.Log.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
