package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	defaultRetention        = 24 * time.Hour
)

var (
	outboxCleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordering_outbox_cleanup_runs_total",
		Help: "Total number of outbox cleanup runs grouped by result.",
	}, []string{"result"})
	outboxCleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordering_outbox_cleanup_deleted_total",
		Help: "Total number of deleted sent outbox records.",
	})
)

// CleanerOptions задаёт параметры очистки опубликованных outbox-сообщений.
type CleanerOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	Retention time.Duration
	BatchSize int
}

// CleanerOption настраивает Cleaner.
type CleanerOption func(*CleanerOptions)

// WithCleanerLogger задаёт logger для очистки.
func WithCleanerLogger(logger *log.Entry) CleanerOption {
	return func(opts *CleanerOptions) {
		opts.Logger = logger
	}
}

// WithCleanupInterval задаёт интервал между циклами очистки.
func WithCleanupInterval(interval time.Duration) CleanerOption {
	return func(opts *CleanerOptions) {
		opts.Interval = interval
	}
}

// WithRetention задаёт, сколько хранить уже отправленные сообщения.
func WithRetention(retention time.Duration) CleanerOption {
	return func(opts *CleanerOptions) {
		opts.Retention = retention
	}
}

// WithCleanupBatchSize задаёт размер одного удаления.
func WithCleanupBatchSize(batchSize int) CleanerOption {
	return func(opts *CleanerOptions) {
		opts.BatchSize = batchSize
	}
}

// Cleaner периодически удаляет отправленные сообщения старше Retention.
// Pending и failed записи не трогает.
type Cleaner struct {
	repo      domain.OutboxCleaner
	logger    *log.Entry
	interval  time.Duration
	retention time.Duration
	batchSize int
	now       func() time.Time
}

// NewCleaner создаёт Cleaner.
func NewCleaner(repo domain.OutboxCleaner, options ...CleanerOption) *Cleaner {
	opts := CleanerOptions{
		Interval:  defaultCleanupInterval,
		Retention: defaultRetention,
		BatchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-cleaner")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}

	return &Cleaner{
		repo:      repo,
		logger:    logger,
		interval:  opts.Interval,
		retention: opts.Retention,
		batchSize: opts.BatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run выполняет очистку сразу и затем по таймеру до отмены ctx.
func (c *Cleaner) Run(ctx context.Context) {
	if c.repo == nil {
		c.logger.Warn("outbox cleaner is disabled: repo is nil")
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *Cleaner) cleanup(ctx context.Context) {
	deleted, err := c.DeleteExpired(ctx, c.now().Add(-c.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		outboxCleanupRuns.WithLabelValues("error").Inc()
		c.logger.WithError(err).Warn("outbox cleanup run failed")
		return
	}

	outboxCleanupRuns.WithLabelValues("ok").Inc()
	if deleted > 0 {
		c.logger.WithField("deleted", deleted).Info("outbox cleanup completed")
	}
}

// DeleteExpired удаляет отправленные сообщения старше before порциями batchSize.
func (c *Cleaner) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := c.repo.DeleteSentBefore(ctx, before, c.batchSize)
		if err != nil {
			return total, err
		}

		total += deleted
		if deleted > 0 {
			outboxCleanupDeleted.Add(float64(deleted))
		}
		if deleted < c.batchSize {
			return total, nil
		}
	}
}
