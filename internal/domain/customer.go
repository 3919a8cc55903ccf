package domain

import "time"

// Customer — покупатель из внешнего справочника клиентов.
// Сценарий оформления заказа только читает запись и никогда её не меняет.
type Customer struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}
