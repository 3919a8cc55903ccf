package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

const defaultReplayIdleTimeout = 2 * time.Second

// ReplayOptions задаёт границы одного прохода по DLQ.
type ReplayOptions struct {
	Topic       string
	Limit       int
	Execute     bool // false — dry-run, сообщения только читаются
	IdleTimeout time.Duration
}

// ReplayResult — итог прохода.
type ReplayResult struct {
	Scanned  int
	Replayed int
	Skipped  int
}

// Replayer читает DLQ с самого старого offset и переотправляет исходные
// outbox-сообщения в топик событий.
type Replayer struct {
	consumer  sarama.Consumer
	publisher domain.OutboxPublisher
	logger    *log.Entry
}

// NewReplayer создаёт Replayer. publisher может быть nil для dry-run.
func NewReplayer(consumer sarama.Consumer, publisher domain.OutboxPublisher, logger *log.Entry) *Replayer {
	if logger == nil {
		logger = log.WithField("component", "dlq-replayer")
	}
	return &Replayer{consumer: consumer, publisher: publisher, logger: logger}
}

// Replay проходит по всем партициям топика, пока не наберётся Limit
// сообщений или партиция не замолчит на IdleTimeout.
func (r *Replayer) Replay(ctx context.Context, opts ReplayOptions) (ReplayResult, error) {
	var result ReplayResult

	if opts.Topic == "" {
		opts.Topic = TopicDeadLetterQueue
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultReplayIdleTimeout
	}
	if opts.Execute && r.publisher == nil {
		return result, fmt.Errorf("replay publisher is required in execute mode")
	}

	partitions, err := r.consumer.Partitions(opts.Topic)
	if err != nil {
		return result, fmt.Errorf("list partitions of %s: %w", opts.Topic, err)
	}

	for _, partition := range partitions {
		if opts.Limit > 0 && result.Scanned >= opts.Limit {
			break
		}
		if err := r.replayPartition(ctx, opts, partition, &result); err != nil {
			return result, err
		}
	}

	r.logger.WithFields(log.Fields{
		"topic":    opts.Topic,
		"scanned":  result.Scanned,
		"replayed": result.Replayed,
		"skipped":  result.Skipped,
		"execute":  opts.Execute,
	}).Info("dlq replay finished")

	return result, nil
}

func (r *Replayer) replayPartition(ctx context.Context, opts ReplayOptions, partition int32, result *ReplayResult) error {
	pc, err := r.consumer.ConsumePartition(opts.Topic, partition, sarama.OffsetOldest)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer pc.Close()

	idle := time.NewTimer(opts.IdleTimeout)
	defer idle.Stop()

	for {
		if opts.Limit > 0 && result.Scanned >= opts.Limit {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			return nil
		case consumerErr, ok := <-pc.Errors():
			if ok && consumerErr != nil {
				return fmt.Errorf("consume partition %d: %w", partition, consumerErr.Err)
			}
		case msg, ok := <-pc.Messages():
			if !ok {
				return nil
			}
			result.Scanned++
			if err := r.replayMessage(ctx, opts, msg, result); err != nil {
				return err
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(opts.IdleTimeout)
		}
	}
}

func (r *Replayer) replayMessage(ctx context.Context, opts ReplayOptions, msg *sarama.ConsumerMessage, result *ReplayResult) error {
	logger := r.logger.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	record, err := ParseDLQRecord(msg.Value)
	if err != nil {
		logger.WithError(err).Warn("skipping malformed dlq message")
		result.Skipped++
		return nil
	}

	logger = logger.WithFields(log.Fields{
		"outbox_id":  record.OutboxID,
		"event_type": record.EventType,
	})
	if !opts.Execute {
		logger.Info("dry-run: dlq message would be replayed")
		return nil
	}

	// Продолжаем трассу, в которой сообщение ушло в DLQ.
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrierFromRecords(msg.Headers))
	if err := r.publisher.Publish(ctx, record.OutboxMessage()); err != nil {
		return fmt.Errorf("replay outbox message %s: %w", record.OutboxID, err)
	}
	result.Replayed++
	logger.Info("dlq message replayed")
	return nil
}
