package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// timelineRepository хранит события в памяти (для разработки/тестов).
type timelineRepository struct {
	store *Store
}

// Append добавляет событие в хранилище.
func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	defer r.store.lock(ctx)()

	events := append(r.store.timeline[event.OrderID], event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	r.store.timeline[event.OrderID] = events

	return nil
}

// List возвращает события заказа в хронологическом порядке.
func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	defer r.store.rlock(ctx)()

	events := r.store.timeline[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
