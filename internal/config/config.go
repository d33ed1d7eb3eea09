package config

import "time"

// Driver names accepted by the pluggable infrastructure sections.
const (
	DriverMemory = "memory"
	DriverRiver  = "river"
	DriverNATS   = "nats"
	DriverNone   = "none"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Events    EventsConfig    `mapstructure:"events" validate:"required"`
	Cache     CacheConfig     `mapstructure:"cache" validate:"required"`
	Task      TaskConfig      `mapstructure:"task" validate:"required"`
	Lease     LeaseConfig     `mapstructure:"lease"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gt=0"`
}

// SchedulerConfig selects and tunes the delayed-job backend.
type SchedulerConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=memory river"`
	// QueueWorkers bounds how many due jobs are handled concurrently.
	QueueWorkers int `mapstructure:"queue_workers" validate:"gt=0"`
	// JobMaxAttempts bounds how often the backend retries a job whose
	// handler returned an error.
	JobMaxAttempts int `mapstructure:"job_max_attempts" validate:"gt=0"`
}

// EventsConfig selects and tunes the event bus.
type EventsConfig struct {
	Driver           string `mapstructure:"driver" validate:"required,oneof=memory nats"`
	NATSURL          string `mapstructure:"nats_url" validate:"required_if=Driver nats"`
	Stream           string `mapstructure:"stream" validate:"required"`
	DeadLetterPrefix string `mapstructure:"dead_letter_prefix" validate:"required"`
}

// CacheConfig selects the read cache backend and its entry lifetime.
type CacheConfig struct {
	Driver string        `mapstructure:"driver" validate:"required,oneof=none memory nats"`
	Bucket string        `mapstructure:"bucket"`
	TTL    time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// TaskConfig contains reminder execution settings.
type TaskConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" validate:"gt=0"`
}

// LeaseConfig controls the reaper that releases claims held by workers
// that never finalized.
type LeaseConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"required_if=Enabled true"`
	CheckInterval time.Duration `mapstructure:"check_interval" validate:"required_if=Enabled true"`
}

// ReconcileConfig controls the sweep that re-registers reminder jobs for
// scheduled tasks that have none.
type ReconcileConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval" validate:"required_if=Enabled true"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	BatchSize  int           `mapstructure:"batch_size" validate:"gte=0"`
}
