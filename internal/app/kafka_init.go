package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ordering/internal/service/outbox"
)

// initKafkaProducer создаёт producer, если заданы брокеры.
// Возвращает nil, nil при пустом списке брокеров.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	if !cfg.KafkaEnabled() {
		return nil, nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	return producer, nil
}

// newOutboxWorker собирает worker поверх producer. Без producer возвращает nil:
// сообщения остаются в outbox до появления брокера.
func newOutboxWorker(cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, logger *log.Entry) *outbox.Worker {
	if producer == nil {
		logger.Info("kafka is not configured, outbox messages stay pending")
		return nil
	}

	options := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if cfg.KafkaDLQTopic != "" {
		options = append(options, outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic)))
	}

	return outbox.NewWorker(repo, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic), options...)
}

// closeKafka закрывает producer, если он создан.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// newOutboxCleaner возвращает nil, если очистка выключена или хранилище её не умеет.
func newOutboxCleaner(cfg Config, repo domain.OutboxCleaner, logger *log.Entry) *outbox.Cleaner {
	if repo == nil || cfg.OutboxRetention <= 0 {
		return nil
	}
	return outbox.NewCleaner(repo,
		outbox.WithCleanerLogger(logger.WithField("component", "outbox-cleaner")),
		outbox.WithRetention(cfg.OutboxRetention),
		outbox.WithCleanupInterval(cfg.OutboxCleanupInterval),
		outbox.WithCleanupBatchSize(cfg.OutboxBatchSize),
	)
}
