package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

const orderColumns = `id, customer_id, status, currency, amount_minor, created_at`

// OrderRepository — PostgreSQL-реализация domain.OrderRepository.
// Заказ и его позиции пишутся в одной транзакции.
type OrderRepository struct {
	store *Store
}

// Create сохраняет заказ вместе с позициями.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	err := r.store.WithinTx(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		exec := r.store.exec(ctx)
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6)
		`,
			order.ID, order.CustomerID, string(order.Status), order.Currency,
			order.AmountMinor, order.CreatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderAlreadyExists
			}
			if isForeignKeyViolation(err) {
				return fmt.Errorf("insert order: %w", domain.ErrCustomerNotFound)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for pos, item := range order.Items {
			if _, err := exec.ExecContext(ctx, `
				INSERT INTO order_items (order_id, position, product_id, quantity, price_minor)
				VALUES ($1,$2,$3,$4,$5)
			`, order.ID, pos, item.ProductID, item.Quantity, item.PriceMinor); err != nil {
				if isForeignKeyViolation(err) {
					return fmt.Errorf("insert order item %s: %w", item.ProductID, domain.ErrProductNotFound)
				}
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	order.Items = append([]domain.OrderLineItem(nil), order.Items...)
	return order, nil
}

// Get возвращает заказ с позициями или domain.ErrOrderNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.store.exec(ctx).QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

// ListByCustomer возвращает заказы клиента, новые первыми; limit <= 0 — без ограничения.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	exec := r.store.exec(ctx)
	if limit > 0 {
		rows, err = exec.QueryContext(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = exec.QueryContext(ctx, query, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	// Позиции грузим после закрытия курсора: внутри транзакции
	// соединение одно, и второй запрос при открытом курсоре не пройдёт.
	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// Delete удаляет заказ; позиции удаляются каскадно.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.exec(ctx).ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderLineItem, error) {
	rows, err := r.store.exec(ctx).QueryContext(ctx, `
		SELECT product_id, quantity, price_minor
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderLineItem, 0)
	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.PriceMinor); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(
		&order.ID, &order.CustomerID, &status, &order.Currency,
		&order.AmountMinor, &order.CreatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	return order, nil
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
