package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// CustomerRepository — PostgreSQL-реализация domain.CustomerRepository.
type CustomerRepository struct {
	store *Store
}

// FindByID возвращает клиента или domain.ErrCustomerNotFound.
func (r *CustomerRepository) FindByID(ctx context.Context, id string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var customer domain.Customer
	err := r.store.exec(ctx).QueryRowContext(ctx, `
		SELECT id, name, email, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.Email, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return customer, nil
}

// Upsert создаёт клиента или обновляет имя и email существующего.
func (r *CustomerRepository) Upsert(ctx context.Context, customer domain.Customer) error {
	if customer.ID == "" {
		return domain.ErrCustomerRequired
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.store.exec(ctx).ExecContext(ctx, `
		INSERT INTO customers (id, name, email, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    email = EXCLUDED.email
	`, customer.ID, customer.Name, customer.Email, customer.CreatedAt); err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

var _ domain.CustomerRepository = (*CustomerRepository)(nil)
