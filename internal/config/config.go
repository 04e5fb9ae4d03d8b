// Package config loads and validates agent configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all agent configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	API       APIConfig       `mapstructure:"api"`
	Collector CollectorConfig `mapstructure:"collector"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the local HTTP surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// APIConfig points the request client at the ISP-Compare API.
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CollectorConfig points the session tracker at the analytics collector.
type CollectorConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// TrackingConfig governs session lifecycle behavior.
type TrackingConfig struct {
	SessionMaxAgeMinutes int `mapstructure:"session_max_age_minutes"`
}

// StorageConfig selects and locates the durable key-value store.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TARIFF_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8765)
	v.SetDefault("api.base_url", "http://localhost:8000/api")
	v.SetDefault("api.timeout_seconds", 15)
	v.SetDefault("collector.url", "http://localhost:8000/api")
	v.SetDefault("collector.timeout_seconds", 10)
	v.SetDefault("tracking.session_max_age_minutes", 30)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.path", "tariff-agent.db")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.Collector.URL == "" {
		return fmt.Errorf("collector.url must be set")
	}
	if c.Tracking.SessionMaxAgeMinutes <= 0 {
		return fmt.Errorf("tracking.session_max_age_minutes must be > 0")
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path must be set when storage.driver is sqlite")
		}
	default:
		return fmt.Errorf("unknown storage.driver: %s", c.Storage.Driver)
	}
	return nil
}

// APITimeout converts the API timeout config into a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// CollectorTimeout converts the collector timeout config into a duration.
func (c Config) CollectorTimeout() time.Duration {
	return time.Duration(c.Collector.TimeoutSeconds) * time.Second
}

// SessionMaxAge converts the session expiry ceiling into a duration.
func (c Config) SessionMaxAge() time.Duration {
	return time.Duration(c.Tracking.SessionMaxAgeMinutes) * time.Minute
}
