package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// SCRY_TASKS_SERVER_PORT for server.port.
const EnvPrefix = "SCRY_TASKS"

// setDefaults registers a default for every key so that environment
// variables are picked up by Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "auto")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("store.data_dir", "./data")
	v.SetDefault("store.log_file", "tasks.bin")
	v.SetDefault("store.index_file", "index.json")

	v.SetDefault("dispatcher.tick_interval", "100ms")
	v.SetDefault("dispatcher.ema_alpha", 0.2)
	v.SetDefault("dispatcher.initial_estimate", "2s")
	v.SetDefault("dispatcher.work_min", "500ms")
	v.SetDefault("dispatcher.work_max", "1500ms")
	v.SetDefault("dispatcher.failure_rate", 0.0)
	v.SetDefault("dispatcher.duplicate_threshold", 0.8)

	v.SetDefault("session.heartbeat_timeout", "60s")
	v.SetDefault("session.sweep_interval", "30s")
	v.SetDefault("session.write_timeout", "10s")

	v.SetDefault("integrity.interval", "60s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)
}

// Load configuration from environment variables and optionally a config
// file named config.{yaml,toml,json} in the working directory or
// /etc/scry-tasks. Environment variables take precedence over values from
// config files.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom behaves like Load but reads the given config file, which must
// exist. An empty path searches the default locations.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/scry-tasks")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
