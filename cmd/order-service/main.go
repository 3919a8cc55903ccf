package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/app"
	"github.com/vladislavdragonenkov/ordering/internal/version"
)

const (
	envGRPCAddr            = "ORDERING_GRPC_ADDR"
	envMetricsAddr         = "ORDERING_METRICS_ADDR"
	envStorageDriver       = "ORDERING_STORAGE_DRIVER"
	envPostgresDSN         = "ORDERING_POSTGRES_DSN"
	envPostgresAutoMigrate = "ORDERING_POSTGRES_AUTO_MIGRATE"
	envSeedFile            = "ORDERING_SEED_FILE"
	envKafkaBrokers        = "ORDERING_KAFKA_BROKERS"
	envKafkaTopic          = "ORDERING_KAFKA_TOPIC"
	envKafkaDLQTopic       = "ORDERING_KAFKA_DLQ_TOPIC"
	envOutboxPollInterval  = "ORDERING_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "ORDERING_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "ORDERING_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "ORDERING_OUTBOX_RETRY_DELAY"
	envOutboxRetention     = "ORDERING_OUTBOX_RETENTION"
	envOTLPEndpoint        = "ORDERING_OTLP_ENDPOINT"
	envLogLevel            = "ORDERING_LOG_LEVEL"
	envLogFormat           = "ORDERING_LOG_FORMAT"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) []string {
	var warnings []string

	if format, ok := lookupTrimmed(lookup, envLogFormat); ok && strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	log.SetLevel(log.InfoLevel)
	if raw, ok := lookupTrimmed(lookup, envLogLevel); ok {
		level, err := log.ParseLevel(raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envLogLevel, err))
		} else {
			log.SetLevel(level)
		}
	}

	return warnings
}

// readConfigFromEnv собирает конфигурацию из окружения. Некорректные
// значения не роняют сервис: остаётся значение по умолчанию, а в ответ
// попадает предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
	}

	if v, ok := lookupTrimmed(lookup, envGRPCAddr); ok {
		cfg.GRPCAddr = v
	}
	if v, ok := lookupTrimmed(lookup, envMetricsAddr); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := lookupTrimmed(lookup, envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	if v, ok := lookupTrimmed(lookup, envPostgresDSN); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := lookupTrimmed(lookup, envPostgresAutoMigrate); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envSeedFile); ok {
		cfg.SeedFile = v
	}
	if v, ok := lookupTrimmed(lookup, envKafkaBrokers); ok {
		cfg.KafkaBrokers = parseList(v)
	}
	if v, ok := lookupTrimmed(lookup, envKafkaTopic); ok {
		cfg.KafkaTopic = v
	}
	if v, ok := lookupTrimmed(lookup, envKafkaDLQTopic); ok {
		cfg.KafkaDLQTopic = v
	}
	if v, ok := lookupTrimmed(lookup, envOutboxPollInterval); ok {
		if parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0"); err != nil {
			warn(envOutboxPollInterval, err)
		} else {
			cfg.OutboxPollInterval = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envOutboxBatchSize); ok {
		if parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0"); err != nil {
			warn(envOutboxBatchSize, err)
		} else {
			cfg.OutboxBatchSize = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envOutboxMaxAttempts); ok {
		if parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0"); err != nil {
			warn(envOutboxMaxAttempts, err)
		} else {
			cfg.OutboxMaxAttempts = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envOutboxRetryDelay); ok {
		if parsed, err := parseDuration(v, func(d time.Duration) bool { return d >= 0 }, "must be >= 0"); err != nil {
			warn(envOutboxRetryDelay, err)
		} else {
			cfg.OutboxRetryDelay = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envOutboxRetention); ok {
		if parsed, err := parseDuration(v, func(d time.Duration) bool { return d >= 0 }, "must be >= 0"); err != nil {
			warn(envOutboxRetention, err)
		} else {
			cfg.OutboxRetention = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envOTLPEndpoint); ok {
		cfg.OTLPEndpoint = v
	}

	return cfg, warnings
}

func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	raw, ok := lookup(key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	return value, value != ""
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, constraint string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, constraint)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, constraint string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, constraint)
	}
	return value, nil
}

func parseList(raw string) []string {
	var result []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func main() {
	for _, warning := range setupLogger(os.LookupEnv) {
		log.Warn(warning)
	}
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.WithField("fallback", "default").Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  cfg.KafkaEnabled(),
		"build":          version.String(),
	}).Info("запускаем OrderService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("OrderService остановлен")
}
