// Package config provides configuration structures and validation for the payment engine.
// It covers the HTTP surface, the storage backends, the failure sinks, the ledger
// explorer adapter and the timing parameters of the reconciliation and dispatch loops.
package config

import (
	"errors"
	"strings"
	"time"
)

// Store drivers
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// Config holds the complete application configuration.
// Each field represents a subsystem and is validated during startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Store       StoreConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Kafka       KafkaConfig
	Ledger      LedgerConfig
	Reconciler  ReconcilerConfig
	Dispatcher  DispatcherConfig
	WorkerPool  WorkerPoolConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for shutdown of the server and the loops
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// StoreConfig selects the payment store backend
type StoreConfig struct {
	Driver string // "memory" or "postgres"
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// MongoDBConfig contains MongoDB configuration for the delivery audit log.
// An empty URI disables the audit log.
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// KafkaConfig contains Kafka configuration for the notification dead-letter topic.
// An empty DLQTopic disables the producer.
type KafkaConfig struct {
	Brokers           string
	DLQTopic          string
	NumPartitions     int
	ReplicationFactor int
	WriteTimeout      time.Duration
}

// LedgerConfig points at the block explorer used as the ledger observer
type LedgerConfig struct {
	ExplorerURL string
	APIKey      string
	Timeout     time.Duration // Transport timeout of the explorer HTTP client
}

// ReconcilerConfig contains the reconciliation loop parameters
type ReconcilerConfig struct {
	Interval              time.Duration
	ConfirmationThreshold int64
	ObserverTimeout       time.Duration // Bound on a single address query
	DefaultTTL            time.Duration // Lifetime of a payment request when the caller gives none
}

// DispatcherConfig contains the webhook dispatcher parameters
type DispatcherConfig struct {
	Interval       time.Duration
	BatchSize      int
	MaxAttempts    int
	WebhookTimeout time.Duration
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of concurrent observer queries or webhook deliveries per loop
}

// validate performs validation of all configuration values and reports every problem at once
func (c *Config) validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.Postgres.URL == "" {
			validationErrors = append(validationErrors, "POSTGRES_URL is required")
		}
		if c.Postgres.MaxConns <= 0 {
			validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
		}
		if c.Postgres.MinConns <= 0 {
			validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
		}
		if c.Postgres.ConnMaxLifetime <= 0 {
			validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
		}
		if c.Postgres.ConnMaxIdleTime <= 0 {
			validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
		}
	default:
		validationErrors = append(validationErrors, "STORE_DRIVER must be one of memory, postgres")
	}

	if c.MongoDB.URI != "" {
		if c.MongoDB.Database == "" {
			validationErrors = append(validationErrors, "MONGO_DATABASE is required when MONGO_URI is set")
		}
		if c.MongoDB.Timeout <= 0 {
			validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
		}
	}

	if c.Kafka.DLQTopic != "" && c.Kafka.Brokers == "" {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required when KAFKA_DLQ_TOPIC is set")
	}

	if c.Ledger.ExplorerURL == "" {
		validationErrors = append(validationErrors, "LEDGER_EXPLORER_URL is required")
	}
	if c.Ledger.Timeout <= 0 {
		validationErrors = append(validationErrors, "LEDGER_TIMEOUT must be greater than 0")
	}

	if c.Reconciler.Interval <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_INTERVAL must be greater than 0")
	}
	if c.Reconciler.ConfirmationThreshold <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_CONFIRMATION_THRESHOLD must be greater than 0")
	}
	if c.Reconciler.ObserverTimeout <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_OBSERVER_TIMEOUT must be greater than 0")
	}
	if c.Reconciler.DefaultTTL <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_DEFAULT_TTL must be greater than 0")
	}

	if c.Dispatcher.Interval <= 0 {
		validationErrors = append(validationErrors, "DISPATCHER_INTERVAL must be greater than 0")
	}
	if c.Dispatcher.BatchSize <= 0 {
		validationErrors = append(validationErrors, "DISPATCHER_BATCH_SIZE must be greater than 0")
	}
	if c.Dispatcher.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "DISPATCHER_MAX_ATTEMPTS must be greater than 0")
	}
	if c.Dispatcher.WebhookTimeout <= 0 {
		validationErrors = append(validationErrors, "DISPATCHER_WEBHOOK_TIMEOUT must be greater than 0")
	}

	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
