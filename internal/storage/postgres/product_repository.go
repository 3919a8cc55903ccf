package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// ProductRepository — PostgreSQL-реализация domain.ProductRepository.
type ProductRepository struct {
	store *Store
}

// FindAllByID возвращает найденные товары; повторы в ids не дают повторов в ответе.
func (r *ProductRepository) FindAllByID(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.exec(ctx).QueryContext(ctx, `
		SELECT id, name, quantity, price_minor, currency, updated_at
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Quantity, &p.PriceMinor, &p.Currency, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

// UpdateQuantity списывает остатки условным UPDATE ... WHERE quantity >= n.
// Все списания идут в одной транзакции: если хоть одно не прошло, откатываются все.
func (r *ProductRepository) UpdateQuantity(ctx context.Context, changes []domain.StockChange) error {
	aggregated := domain.AggregateStockChanges(changes)
	// Фиксированный порядок блокировок строк исключает взаимные блокировки.
	sort.Slice(aggregated, func(i, j int) bool { return aggregated[i].ProductID < aggregated[j].ProductID })

	for _, change := range aggregated {
		if change.Quantity <= 0 {
			return fmt.Errorf("decrement %s: %w", change.ProductID, domain.ErrItemQtyInvalid)
		}
	}

	return r.store.WithinTx(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		now := time.Now().UTC()
		for _, change := range aggregated {
			if err := r.decrement(ctx, change, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ProductRepository) decrement(ctx context.Context, change domain.StockChange, now time.Time) error {
	exec := r.store.exec(ctx)

	res, err := exec.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $2,
		    updated_at = $3
		WHERE id = $1
		  AND quantity >= $2
	`, change.ProductID, change.Quantity, now)
	if err != nil {
		return fmt.Errorf("decrement product %s: %w", change.ProductID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for product %s: %w", change.ProductID, err)
	}
	if affected > 0 {
		return nil
	}

	var have int64
	err = exec.QueryRowContext(ctx, `SELECT quantity FROM products WHERE id = $1`, change.ProductID).Scan(&have)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("decrement %s: %w", change.ProductID, domain.ErrProductNotFound)
	}
	if err != nil {
		return fmt.Errorf("check product %s: %w", change.ProductID, err)
	}
	return errors.Join(domain.ErrInsufficientStock, fmt.Errorf("product %s: have %d, want %d", change.ProductID, have, change.Quantity))
}

// Upsert создаёт товар или перезаписывает его поля.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) error {
	if errs := product.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.store.exec(ctx).ExecContext(ctx, `
		INSERT INTO products (id, name, quantity, price_minor, currency, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    quantity = EXCLUDED.quantity,
		    price_minor = EXCLUDED.price_minor,
		    currency = EXCLUDED.currency,
		    updated_at = EXCLUDED.updated_at
	`, product.ID, product.Name, product.Quantity, product.PriceMinor, product.Currency, product.UpdatedAt); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
