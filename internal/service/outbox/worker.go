package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
)

var (
	outboxPublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordering_outbox_publish_attempts_total",
		Help: "Total number of outbox publish attempts grouped by result.",
	}, []string{"result"})
	outboxPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ordering_outbox_pending_records",
		Help: "Current number of pending records in transactional outbox.",
	})
	outboxOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ordering_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending outbox record.",
	})
)

// DeadLetterPublisher получает сообщения, которые не удалось опубликовать
// за MaxAttempts попыток.
type DeadLetterPublisher interface {
	PublishFailed(ctx context.Context, event domain.OutboxMessage, publishErr error) error
}

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	DLQPublisher   DeadLetterPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithDLQPublisher задаёт publisher для отправки в DLQ после исчерпания retry.
func WithDLQPublisher(publisher DeadLetterPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации перед failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// Worker публикует pending-сообщения из outbox в брокер.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlqPublisher   DeadLetterPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{
		repo:           repo,
		publisher:      publisher,
		dlqPublisher:   opts.DLQPublisher,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// CycleResult — итог одного прохода по outbox. Deferred — сообщения,
// прерванные остановкой воркера: они остаются pending.
type CycleResult struct {
	Sent     int
	Failed   int
	Deferred int
}

type deliveryOutcome int

const (
	deliverySent deliveryOutcome = iota
	deliveryFailed
	deliveryDeferred
)

// Run публикует pending-сообщения каждые pollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	for {
		w.ProcessOnce(ctx)
		if !sleepCtx(ctx, w.pollInterval) {
			return
		}
	}
}

// ProcessOnce забирает до batchSize pending-сообщений и публикует их по порядку.
// Сообщение, не ушедшее за maxAttempts попыток, отправляется в DLQ и
// помечается failed; остальные помечаются sent.
func (w *Worker) ProcessOnce(ctx context.Context) CycleResult {
	var result CycleResult
	if ctx.Err() != nil {
		return result
	}

	w.refreshBacklogMetrics(ctx)
	defer w.refreshBacklogMetrics(ctx)

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return result
	}

	for _, event := range batch {
		if ctx.Err() != nil {
			break
		}
		switch w.deliver(ctx, event) {
		case deliverySent:
			result.Sent++
		case deliveryFailed:
			result.Failed++
		case deliveryDeferred:
			result.Deferred++
		}
	}
	return result
}

// deliver публикует одно сообщение и фиксирует его итоговый статус.
// Если ctx отменён во время публикации, сообщение не трогаем: его заберёт
// следующий запуск воркера.
func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) deliveryOutcome {
	logger := w.logger.WithFields(log.Fields{
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	})

	publishErr := w.publishWithRetry(ctx, event)
	if publishErr == nil {
		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			logger.WithError(err).Warn("failed to mark outbox as sent")
			return deliveryFailed
		}
		logger.Debug("outbox message published")
		return deliverySent
	}

	if ctx.Err() != nil || errors.Is(publishErr, context.Canceled) {
		logger.WithError(publishErr).Info("outbox publish interrupted, message stays pending")
		outboxPublishAttempts.WithLabelValues("interrupted").Inc()
		return deliveryDeferred
	}

	logger.WithError(publishErr).Error("outbox publish failed after retries")
	outboxPublishAttempts.WithLabelValues("failed").Inc()

	if err := w.publishToDLQ(ctx, event, publishErr); err != nil {
		logger.WithError(err).Warn("failed to publish to DLQ")
		outboxPublishAttempts.WithLabelValues("dlq_failed").Inc()
	}
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		logger.WithError(err).Warn("failed to mark outbox as failed")
	}
	return deliveryFailed
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) (err error) {
	ctx, span := otel.Tracer("ordering/outbox").Start(ctx, "outbox.Publish")
	span.SetAttributes(
		attribute.String("outbox.id", event.ID),
		attribute.String("outbox.event_type", event.EventType),
		attribute.String("order.id", event.AggregateID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "publish failed")
		}
		span.End()
	}()

	for attempt := 1; ; attempt++ {
		err = w.publisher.Publish(ctx, event)
		if err == nil {
			outboxPublishAttempts.WithLabelValues("sent").Inc()
			span.SetAttributes(attribute.Int("outbox.attempts", attempt))
			return nil
		}
		outboxPublishAttempts.WithLabelValues("retry_error").Inc()

		if attempt >= w.maxAttempts {
			return fmt.Errorf("publish failed after %d attempts: %w", attempt, err)
		}
		if !sleepCtx(ctx, w.retryBackoff(attempt)) {
			return ctx.Err()
		}
	}
}

func (w *Worker) refreshBacklogMetrics(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	outboxPendingRecords.Set(float64(stats.PendingCount))
	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = max(time.Since(stats.OldestPendingAt).Seconds(), 0)
	}
	outboxOldestPendingAge.Set(age)
}

// retryBackoff возвращает retryBaseDelay * 2^(attempt-1), не больше maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func (w *Worker) publishToDLQ(ctx context.Context, event domain.OutboxMessage, publishErr error) error {
	if w.dlqPublisher == nil {
		return nil
	}
	if err := w.dlqPublisher.PublishFailed(ctx, event, publishErr); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	outboxPublishAttempts.WithLabelValues("dlq").Inc()
	return nil
}

// sleepCtx ждёт d и возвращает false, если ctx отменили раньше.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
