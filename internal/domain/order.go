package domain

import (
	"math"
	"time"
)

// OrderStatus описывает состояние заказа.
type OrderStatus string

const (
	// OrderStatusCreated — заказ сохранён, остатки списаны.
	OrderStatusCreated OrderStatus = "created"
)

// OrderLineItem — позиция заказа. Цена копируется из товара в момент проверки.
type OrderLineItem struct {
	ProductID  string
	Quantity   int64
	PriceMinor int64
}

// Order агрегирует созданный заказ и его позиции.
type Order struct {
	ID          string
	CustomerID  string
	Status      OrderStatus
	Currency    string
	AmountMinor int64
	Items       []OrderLineItem
	CreatedAt   time.Time
}

// NewOrder собирает заказ из позиций и считает итоговую сумму.
// Возвращает ErrAmountOverflow, если сумма не помещается в int64.
func NewOrder(id string, customer Customer, currency string, items []OrderLineItem, now time.Time) (Order, error) {
	copied := make([]OrderLineItem, len(items))
	copy(copied, items)
	amount, err := SumItems(copied)
	if err != nil {
		return Order{}, err
	}
	return Order{
		ID:          id,
		CustomerID:  customer.ID,
		Status:      OrderStatusCreated,
		Currency:    currency,
		AmountMinor: amount,
		Items:       copied,
		CreatedAt:   now,
	}, nil
}

// SumItems возвращает сумму qty * price по всем позициям.
func SumItems(items []OrderLineItem) (int64, error) {
	var total int64
	for _, item := range items {
		line, ok := mulInt64(item.Quantity, item.PriceMinor)
		if !ok {
			return 0, ErrAmountOverflow
		}
		if (line > 0 && total > math.MaxInt64-line) || (line < 0 && total < math.MinInt64-line) {
			return 0, ErrAmountOverflow
		}
		total += line
	}
	return total, nil
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if (c < 0) != ((a < 0) != (b < 0)) || c/b != a {
		return 0, false
	}
	return c, true
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if sum, err := SumItems(o.Items); err != nil {
		errs = append(errs, err)
	} else if sum != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
