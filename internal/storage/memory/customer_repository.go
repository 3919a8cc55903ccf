package memory

import (
	"context"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

type customerRepository struct {
	store *Store
}

// FindByID возвращает клиента или ErrCustomerNotFound.
func (r *customerRepository) FindByID(ctx context.Context, id string) (domain.Customer, error) {
	defer r.store.rlock(ctx)()

	customer, ok := r.store.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

// Upsert создаёт или перезаписывает клиента.
func (r *customerRepository) Upsert(ctx context.Context, customer domain.Customer) error {
	if customer.ID == "" {
		return domain.ErrCustomerRequired
	}
	defer r.store.lock(ctx)()

	r.store.customers[customer.ID] = customer
	return nil
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
