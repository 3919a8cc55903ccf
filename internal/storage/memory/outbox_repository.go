package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	updatedAt  time.Time
}

// OutboxRepository — in-memory хранилище transactional outbox.
type OutboxRepository struct {
	store *Store
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с присвоенным ID.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	defer r.store.lock(ctx)()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	r.store.outbox[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		updatedAt: now,
	}
	return msg, nil
}

// PullPending возвращает до limit самых старых сообщений со статусом `pending`.
func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	pending := r.pending(ctx)
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	pending := r.pending(ctx)

	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].CreatedAt
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.mark(ctx, id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.mark(ctx, id, outboxStatusFailed)
}

// DeleteSentBefore удаляет до limit самых старых отправленных сообщений,
// обновлённых раньше before.
func (r *OutboxRepository) DeleteSentBefore(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	defer r.store.lock(ctx)()

	expired := make([]*outboxRecord, 0)
	for _, rec := range r.store.outbox {
		if rec.status == outboxStatusSent && rec.updatedAt.Before(before) {
			expired = append(expired, rec)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].updatedAt.Before(expired[j].updatedAt)
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	for _, rec := range expired {
		delete(r.store.outbox, rec.msg.ID)
	}
	return len(expired), nil
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	return r.pending(context.Background())
}

func (r *OutboxRepository) mark(ctx context.Context, id, status string) error {
	defer r.store.lock(ctx)()

	record, ok := r.store.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	return nil
}

func (r *OutboxRepository) pending(ctx context.Context) []domain.OutboxMessage {
	defer r.store.rlock(ctx)()

	result := make([]domain.OutboxMessage, 0)
	for _, rec := range r.store.outbox {
		if rec.status == outboxStatusPending {
			result = append(result, rec.msg)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

var (
	_ domain.OutboxRepository = (*OutboxRepository)(nil)
	_ domain.OutboxCleaner    = (*OutboxRepository)(nil)
)
