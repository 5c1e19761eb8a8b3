// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	LevelDB   LevelDBConfig   `yaml:"leveldb"`
	NATS      NATSConfig      `yaml:"nats"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
}

// StorageConfig selects the job store backend
type StorageConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "leveldb"
}

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	URL string `yaml:"-"`
}

// LevelDBConfig holds LevelDB configuration
type LevelDBConfig struct {
	Path string `yaml:"path"`
}

// NATSConfig holds NATS transport configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	WakeupSubject string `yaml:"wakeupSubject"`
	EventsSubject string `yaml:"eventsSubject"`
	QueueGroup    string `yaml:"queueGroup"`
	MaxInflight   int    `yaml:"maxInflight"`
}

// SchedulerConfig holds scheduler pass retry policy
type SchedulerConfig struct {
	MaxAttempts     int `yaml:"maxAttempts"`
	RetryIntervalMs int `yaml:"retryIntervalMs"`
}

// Default configuration values
const (
	DefaultServerPort         = "8080"
	DefaultServerReadTimeout  = 30
	DefaultServerWriteTimeout = 30
	DefaultStorageDriver      = "leveldb"
	DefaultLevelDBPath        = "./data/leveldb"
	DefaultNATSURL            = "nats://localhost:4222"
	DefaultWakeupSubject      = "flowstate.wakeup"
	DefaultEventsSubject      = "flowstate.events"
	DefaultQueueGroup         = "flowstate"
	DefaultMaxInflight        = 10
	DefaultMaxAttempts        = 5
	DefaultRetryIntervalMs    = 50
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// Load creates a new configuration from an optional YAML file overlaid
// with environment variables
func Load(configPath string) (*Config, error) {
	var config Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server = ServerConfig{
		Port:         getEnv("FLOWSTATE_SERVER_PORT", withDefault(config.Server.Port, DefaultServerPort)),
		ReadTimeout:  getEnvInt("FLOWSTATE_SERVER_READ_TIMEOUT", withDefaultInt(config.Server.ReadTimeout, DefaultServerReadTimeout)),
		WriteTimeout: getEnvInt("FLOWSTATE_SERVER_WRITE_TIMEOUT", withDefaultInt(config.Server.WriteTimeout, DefaultServerWriteTimeout)),
	}

	config.Storage.Driver = getEnv("FLOWSTATE_STORAGE_DRIVER", withDefault(config.Storage.Driver, DefaultStorageDriver))
	if config.Storage.Driver != "postgres" && config.Storage.Driver != "leveldb" {
		return nil, fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}

	if config.Storage.Driver == "postgres" {
		postgresURL := os.Getenv("FLOWSTATE_POSTGRES_URL")
		if postgresURL == "" {
			return nil, fmt.Errorf("FLOWSTATE_POSTGRES_URL environment variable is required for the postgres driver")
		}
		config.Postgres = PostgresConfig{URL: postgresURL}
	}

	config.LevelDB = LevelDBConfig{
		Path: getEnv("FLOWSTATE_LEVELDB_PATH", withDefault(config.LevelDB.Path, DefaultLevelDBPath)),
	}

	config.NATS = NATSConfig{
		URL:           getEnv("FLOWSTATE_NATS_URL", withDefault(config.NATS.URL, DefaultNATSURL)),
		WakeupSubject: getEnv("FLOWSTATE_NATS_WAKEUP_SUBJECT", withDefault(config.NATS.WakeupSubject, DefaultWakeupSubject)),
		EventsSubject: getEnv("FLOWSTATE_NATS_EVENTS_SUBJECT", withDefault(config.NATS.EventsSubject, DefaultEventsSubject)),
		QueueGroup:    getEnv("FLOWSTATE_NATS_QUEUE_GROUP", withDefault(config.NATS.QueueGroup, DefaultQueueGroup)),
		MaxInflight:   getEnvInt("FLOWSTATE_NATS_MAX_INFLIGHT", withDefaultInt(config.NATS.MaxInflight, DefaultMaxInflight)),
	}

	config.Scheduler = SchedulerConfig{
		MaxAttempts:     getEnvInt("FLOWSTATE_SCHEDULER_MAX_ATTEMPTS", withDefaultInt(config.Scheduler.MaxAttempts, DefaultMaxAttempts)),
		RetryIntervalMs: getEnvInt("FLOWSTATE_SCHEDULER_RETRY_INTERVAL_MS", withDefaultInt(config.Scheduler.RetryIntervalMs, DefaultRetryIntervalMs)),
	}

	return &config, nil
}

func withDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func withDefaultInt(value, defaultValue int) int {
	if value == 0 {
		return defaultValue
	}
	return value
}
