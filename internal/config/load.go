package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. REMINDER_DATABASE_URL for database.url.
const EnvPrefix = "REMINDER"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom behaves like Load but reads the named config file instead of
// searching the working directory for config.yaml. An empty path falls back
// to the search.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default are invisible to Unmarshal unless bound.
	if err := v.BindEnv("database.url"); err != nil {
		return nil, fmt.Errorf("failed to bind database url: %w", err)
	}
	if err := v.BindEnv("events.nats_url"); err != nil {
		return nil, fmt.Errorf("failed to bind nats url: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate runs struct-tag validation over a loaded configuration.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("scheduler.driver", DriverRiver)
	v.SetDefault("scheduler.queue_workers", 10)
	v.SetDefault("scheduler.job_max_attempts", 5)

	v.SetDefault("events.driver", DriverNATS)
	v.SetDefault("events.stream", "REMINDER_EVENTS")
	v.SetDefault("events.dead_letter_prefix", "dlq")

	v.SetDefault("cache.driver", DriverNATS)
	v.SetDefault("cache.bucket", "reminder-cache")
	v.SetDefault("cache.ttl", time.Hour)

	v.SetDefault("task.max_attempts", 3)

	v.SetDefault("lease.enabled", true)
	v.SetDefault("lease.timeout", 5*time.Minute)
	v.SetDefault("lease.check_interval", time.Minute)

	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.interval", 5*time.Minute)
	v.SetDefault("reconcile.retry_delay", 30*time.Second)
	v.SetDefault("reconcile.batch_size", 500)
}
