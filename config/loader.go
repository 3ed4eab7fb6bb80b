package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var defaults = map[string]any{
	"APP_NAME":             "fern",
	"LOG_LEVEL":            "info",
	"PRETTY_LOGS":          false,
	"STARTUP_MAX_ATTEMPTS": 5,

	"DB_DRIVER":                  "postgres",
	"DB_HOST":                    "localhost",
	"DB_PORT":                    "5432",
	"DB_USER_NAME":               "",
	"DB_PASSWORD":                "",
	"DB_NAME":                    "fern",
	"DB_SSL_MODE":                "disable",
	"DB_MAX_OPEN_CONNS":          25,
	"DB_MAX_IDLE_CONNS":          10,
	"DB_CONN_MAX_LIFETIME":       "10s",
	"DB_MIGRATION_FOLDER_PATH":   "db/pg",
	"DB_MIGRATION_VERSION":       0,
	"DB_MIGRATION_FORCE":         0,
	"DB_MIGRATION_AUTO_ROLLBACK": true,
	"DB_AUTO_MIGRATE":            false,

	"REDIS_ENABLED":      false,
	"REDIS_HOST":         "localhost",
	"REDIS_PORT":         6379,
	"REDIS_PASSWORD":     "",
	"REDIS_DB":           0,
	"REDIS_LOCK_TTL":     "30s",
	"REDIS_LOCK_TIMEOUT": "5s",

	"KAFKA_ENABLED":          false,
	"KAFKA_BROKERS":          []string{"localhost:9092"},
	"KAFKA_TOPIC":            "mdm-events",
	"KAFKA_BATCH_SIZE":       100,
	"KAFKA_BATCH_TIMEOUT_MS": 100,
	"KAFKA_REQUIRED_ACKS":    1,
	"KAFKA_COMPRESSION":      "snappy",

	"TRACING_ENABLED":  false,
	"TRACING_ENDPOINT": "",
	"TRACING_PROTOCOL": "grpc",
	"TRACING_INSECURE": true,

	"DUPLICATE_THRESHOLD":      80.0,
	"MAX_DUPLICATE_CANDIDATES": 0,
	"MERGE_HISTORY_LIMIT":      50,
	"QUALITY_ON_MERGE":         true,
}

// Load reads an optional .env file, then resolves every setting from the environment over defaults.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an optional config file whose values sit between defaults and the environment.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
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

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.DuplicateThreshold < 0 || c.DuplicateThreshold > 100 {
		return fmt.Errorf("DUPLICATE_THRESHOLD must be between 0 and 100, got %v", c.DuplicateThreshold)
	}
	if c.MaxDuplicateCandidates < 0 {
		return fmt.Errorf("MAX_DUPLICATE_CANDIDATES must not be negative, got %d", c.MaxDuplicateCandidates)
	}
	if c.MergeHistoryLimit < 1 || c.MergeHistoryLimit > 500 {
		return fmt.Errorf("MERGE_HISTORY_LIMIT must be between 1 and 500, got %d", c.MergeHistoryLimit)
	}
	if c.TracingProtocol != "grpc" && c.TracingProtocol != "http" {
		return fmt.Errorf("TRACING_PROTOCOL must be grpc or http, got %q", c.TracingProtocol)
	}
	return nil
}
