package config

import "time"

type Config struct {
	AppName            string `mapstructure:"APP_NAME"`
	LogLevel           string `mapstructure:"LOG_LEVEL"`
	PrettyLogs         bool   `mapstructure:"PRETTY_LOGS"`
	StartupMaxAttempts int    `mapstructure:"STARTUP_MAX_ATTEMPTS"`

	// PostgreSQL
	DatabaseDriver                string        `mapstructure:"DB_DRIVER"`
	DatabaseHost                  string        `mapstructure:"DB_HOST"`
	DatabasePort                  string        `mapstructure:"DB_PORT"`
	DatabaseUserName              string        `mapstructure:"DB_USER_NAME"`
	DatabasePassword              string        `mapstructure:"DB_PASSWORD"`
	DatabaseName                  string        `mapstructure:"DB_NAME"`
	DatabaseSSLMode               string        `mapstructure:"DB_SSL_MODE"`
	DatabaseMaxOpenConns          int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DatabaseMaxIdleConns          int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DatabaseConnMaxLifetime       time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DatabaseMigrationFolderPath   string        `mapstructure:"DB_MIGRATION_FOLDER_PATH"`
	DatabaseMigrationVersion      int           `mapstructure:"DB_MIGRATION_VERSION"`
	DatabaseMigrationForce        int           `mapstructure:"DB_MIGRATION_FORCE"`
	DatabaseMigrationAutoRollback bool          `mapstructure:"DB_MIGRATION_AUTO_ROLLBACK"`
	DatabaseAutoMigrate           bool          `mapstructure:"DB_AUTO_MIGRATE"`

	// Redis (merge locks)
	RedisEnabled     bool          `mapstructure:"REDIS_ENABLED"`
	RedisHost        string        `mapstructure:"REDIS_HOST"`
	RedisPort        int           `mapstructure:"REDIS_PORT"`
	RedisPassword    string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB          int           `mapstructure:"REDIS_DB"`
	RedisLockTTL     time.Duration `mapstructure:"REDIS_LOCK_TTL"`
	RedisLockTimeout time.Duration `mapstructure:"REDIS_LOCK_TIMEOUT"`

	// Kafka producer (record events)
	KafkaEnabled      bool     `mapstructure:"KAFKA_ENABLED"`
	KafkaBrokers      []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic        string   `mapstructure:"KAFKA_TOPIC"`
	KafkaBatchSize    int      `mapstructure:"KAFKA_BATCH_SIZE"`
	KafkaBatchTimeout int      `mapstructure:"KAFKA_BATCH_TIMEOUT_MS"`
	KafkaRequiredAcks int      `mapstructure:"KAFKA_REQUIRED_ACKS"`
	KafkaCompression  string   `mapstructure:"KAFKA_COMPRESSION"`

	// Tracing
	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingEndpoint string `mapstructure:"TRACING_ENDPOINT"`
	TracingProtocol string `mapstructure:"TRACING_PROTOCOL"`
	TracingInsecure bool   `mapstructure:"TRACING_INSECURE"`

	// Dedup and merge
	DuplicateThreshold     float64 `mapstructure:"DUPLICATE_THRESHOLD"`
	MaxDuplicateCandidates int     `mapstructure:"MAX_DUPLICATE_CANDIDATES"`
	MergeHistoryLimit      int     `mapstructure:"MERGE_HISTORY_LIMIT"`
	QualityOnMerge         bool    `mapstructure:"QUALITY_ON_MERGE"`
}
