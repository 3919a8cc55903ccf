package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

type productRepository struct {
	store *Store
}

// FindAllByID возвращает найденные товары, повторы в ids схлопываются.
func (r *productRepository) FindAllByID(ctx context.Context, ids []string) ([]domain.Product, error) {
	defer r.store.rlock(ctx)()

	seen := make(map[string]struct{}, len(ids))
	result := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if product, ok := r.store.products[id]; ok {
			result = append(result, product)
		}
	}
	return result, nil
}

// UpdateQuantity списывает остатки по принципу «всё или ничего».
func (r *productRepository) UpdateQuantity(ctx context.Context, changes []domain.StockChange) error {
	defer r.store.lock(ctx)()

	aggregated := domain.AggregateStockChanges(changes)

	// Сначала проверяем все товары, чтобы не оставить частичное списание.
	for _, change := range aggregated {
		product, ok := r.store.products[change.ProductID]
		if !ok {
			return fmt.Errorf("decrement %s: %w", change.ProductID, domain.ErrProductNotFound)
		}
		if change.Quantity <= 0 {
			return fmt.Errorf("decrement %s: %w", change.ProductID, domain.ErrItemQtyInvalid)
		}
		if product.Quantity < change.Quantity {
			return errors.Join(domain.ErrInsufficientStock, fmt.Errorf("product %s: have %d, want %d", change.ProductID, product.Quantity, change.Quantity))
		}
	}

	now := time.Now().UTC()
	for _, change := range aggregated {
		product := r.store.products[change.ProductID]
		product.Quantity -= change.Quantity
		product.UpdatedAt = now
		r.store.products[change.ProductID] = product
	}
	return nil
}

// Upsert создаёт или перезаписывает товар.
func (r *productRepository) Upsert(ctx context.Context, product domain.Product) error {
	if errs := product.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}
	defer r.store.lock(ctx)()

	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	r.store.products[product.ID] = product
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
