package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	envKafkaBrokers    = "ORDERING_KAFKA_BROKERS"
	clientID           = "ordering-dlq-reprocess"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

func readConfig(args []string, getenv func(string) string) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: "+envKafkaBrokers+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "target topic for replay")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	fs.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv(envKafkaBrokers)
	}

	cfg.brokers = parseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers)
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return config{}, errors.New("source-topic is required")
	}
	if strings.TrimSpace(cfg.targetTopic) == "" {
		return config{}, errors.New("target-topic is required")
	}
	if cfg.limit <= 0 {
		return config{}, errors.New("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, errors.New("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = clientID
	saramaCfg.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(cfg.brokers, saramaCfg)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer consumer.Close()

	var publisher domain.OutboxPublisher
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers, clientID)
		if err != nil {
			return err
		}
		defer producer.Close()
		publisher = kafka.NewOutboxPublisher(producer, cfg.targetTopic)
	}

	_, err = replay(ctx, cfg, consumer, publisher, log.WithField("component", "dlq-reprocess"))
	return err
}

func replay(ctx context.Context, cfg config, consumer sarama.Consumer, publisher domain.OutboxPublisher, logger *log.Entry) (kafka.ReplayResult, error) {
	logger.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
	}).Info("starting dlq replay")

	result, err := kafka.NewReplayer(consumer, publisher, logger).Replay(ctx, kafka.ReplayOptions{
		Topic:       cfg.sourceTopic,
		Limit:       cfg.limit,
		Execute:     cfg.execute,
		IdleTimeout: cfg.idleTimeout,
	})

	entry := logger.WithFields(log.Fields{
		"scanned":  result.Scanned,
		"replayed": result.Replayed,
		"skipped":  result.Skipped,
	})
	if err != nil {
		entry.WithError(err).Error("dlq replay stopped")
		return result, err
	}
	if !cfg.execute {
		entry.Info("dry-run finished, pass -execute to republish")
	} else {
		entry.Info("dlq replay finished")
	}
	return result, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(os.Args[1:], os.Getenv)
	if err != nil {
		log.WithError(err).Fatal("invalid arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("dlq replay failed")
	}
}
