package domain

import "time"

// Типы событий таймлайна заказа.
const (
	TimelineOrderCreated     = "OrderCreated"
	TimelineStockDecremented = "StockDecremented"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
