package domain

import "time"

// Product описывает позицию каталога вместе с доступным остатком.
type Product struct {
	ID   string
	Name string
	// Quantity — доступный к заказу остаток, всегда >= 0.
	Quantity int64
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	Currency   string
	UpdatedAt  time.Time
}

// StockChange — запрос на списание остатка по одному товару.
type StockChange struct {
	ProductID string
	Quantity  int64
}

// Validate проверяет поля товара перед сохранением в каталог.
func (p *Product) Validate() []error {
	var errs []error

	if p.ID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrProductQuantityNegative)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}
	if p.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}

	return errs
}

// AggregateStockChanges схлопывает повторяющиеся товары в одно списание,
// сохраняя порядок первого появления.
func AggregateStockChanges(changes []StockChange) []StockChange {
	index := make(map[string]int, len(changes))
	result := make([]StockChange, 0, len(changes))
	for _, change := range changes {
		if pos, ok := index[change.ProductID]; ok {
			result[pos].Quantity += change.Quantity
			continue
		}
		index[change.ProductID] = len(result)
		result = append(result, change)
	}
	return result
}
