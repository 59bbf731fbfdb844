package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Store      StoreConfig      `mapstructure:"store" validate:"required"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" validate:"required"`
	Session    SessionConfig    `mapstructure:"session" validate:"required"`
	Integrity  IntegrityConfig  `mapstructure:"integrity"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"required,oneof=auto json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// StoreConfig locates the record log and its index.
type StoreConfig struct {
	DataDir   string `mapstructure:"data_dir" validate:"required"`
	LogFile   string `mapstructure:"log_file" validate:"required"`
	IndexFile string `mapstructure:"index_file" validate:"required,nefield=LogFile"`
}

// DispatcherConfig tunes the task queue and the simulated worker.
type DispatcherConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	EMAAlpha           float64       `mapstructure:"ema_alpha" validate:"gt=0,lte=1"`
	InitialEstimate    time.Duration `mapstructure:"initial_estimate" validate:"gt=0"`
	WorkMin            time.Duration `mapstructure:"work_min" validate:"gte=0"`
	WorkMax            time.Duration `mapstructure:"work_max" validate:"gtefield=WorkMin"`
	FailureRate        float64       `mapstructure:"failure_rate" validate:"gte=0,lte=1"`
	DuplicateThreshold float64       `mapstructure:"duplicate_threshold" validate:"gte=0,lte=1"`
}

// SessionConfig controls connection liveness.
type SessionConfig struct {
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" validate:"gt=0"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
}

// IntegrityConfig controls the periodic checksum sweep. A zero interval
// disables it.
type IntegrityConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

// AuthConfig contains the admin token settings. Admin endpoints are disabled
// when JWTSecret is empty.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// AdminEnabled reports whether admin tokens can be issued and checked.
func (a AuthConfig) AdminEnabled() bool {
	return a.JWTSecret != ""
}
