package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Поддерживаемые хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	// SeedFile — YAML-каталог, загружаемый при старте (удобно для memory).
	SeedFile string

	KafkaBrokers  []string
	KafkaClientID string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxRetention — сколько хранить отправленные сообщения; 0 отключает очистку.
	OutboxRetention       time.Duration
	OutboxCleanupInterval time.Duration

	// OTLPEndpoint — host:port OTLP/HTTP коллектора; пусто — трассировка выключена.
	OTLPEndpoint string
	ServiceName  string

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:              ":50051",
		MetricsAddr:           ":9090",
		StorageDriver:         StorageDriverMemory,
		PostgresAutoMigrate:   true,
		KafkaClientID:         "ordering-service",
		KafkaTopic:            "ordering.order.events",
		KafkaDLQTopic:         "ordering.dlq",
		OutboxPollInterval:    time.Second,
		OutboxBatchSize:       100,
		OutboxMaxAttempts:     3,
		OutboxRetryDelay:      50 * time.Millisecond,
		OutboxRetention:       24 * time.Hour,
		OutboxCleanupInterval: 10 * time.Minute,
		ServiceName:           "ordering-service",
		ShutdownTimeout:       5 * time.Second,
	}
}

// KafkaEnabled сообщает, настроена ли публикация событий.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.GRPCAddr) == "" {
		errs = append(errs, errors.New("grpc addr is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.KafkaEnabled() && strings.TrimSpace(c.KafkaTopic) == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox poll interval must be > 0"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox batch size must be > 0"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox max attempts must be > 0"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox retry delay must be >= 0"))
	}
	if c.OutboxRetention < 0 {
		errs = append(errs, errors.New("outbox retention must be >= 0"))
	}
	if c.OutboxRetention > 0 && c.OutboxCleanupInterval <= 0 {
		errs = append(errs, errors.New("outbox cleanup interval must be > 0"))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown timeout must be >= 0"))
	}

	return errors.Join(errs...)
}
