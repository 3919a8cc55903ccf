package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// orderRepository — in-memory реализация OrderRepository.
type orderRepository struct {
	store *Store
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	defer r.store.lock(ctx)()

	if _, exists := r.store.orders[order.ID]; exists {
		return domain.Order{}, domain.ErrOrderAlreadyExists
	}
	// Храним собственную копию позиций, чтобы вызывающий код не мог их поменять.
	order.Items = append([]domain.OrderLineItem(nil), order.Items...)
	r.store.orders[order.ID] = order
	return cloneOrder(order), nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	defer r.store.rlock(ctx)()

	order, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	defer r.store.rlock(ctx)()

	result := make([]domain.Order, 0)
	for _, order := range r.store.orders {
		if order.CustomerID != customerID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Delete удаляет заказ.
func (r *orderRepository) Delete(ctx context.Context, id string) error {
	defer r.store.lock(ctx)()

	if _, ok := r.store.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.store.orders, id)
	return nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = append([]domain.OrderLineItem(nil), order.Items...)
	return order
}

var _ domain.OrderRepository = (*orderRepository)(nil)
