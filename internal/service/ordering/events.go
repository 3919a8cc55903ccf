package ordering

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// OrderCreatedItem — позиция в событии order.created.
type OrderCreatedItem struct {
	ProductID  string `json:"product_id"`
	Quantity   int64  `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

// OrderCreatedPayload — тело outbox-сообщения order.created.
type OrderCreatedPayload struct {
	OrderID     string             `json:"order_id"`
	CustomerID  string             `json:"customer_id"`
	Currency    string             `json:"currency"`
	AmountMinor int64              `json:"amount_minor"`
	Items       []OrderCreatedItem `json:"items"`
	CreatedAt   time.Time          `json:"created_at"`
}

// StockDecrementedPayload — тело outbox-сообщения stock.decremented,
// по одной записи на товар (повторы в заказе суммируются).
type StockDecrementedPayload struct {
	OrderID string             `json:"order_id"`
	Changes []StockChangeEntry `json:"changes"`
}

// StockChangeEntry — списание по одному товару.
type StockChangeEntry struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

func newOrderCreatedMessage(order domain.Order) (domain.OutboxMessage, error) {
	items := make([]OrderCreatedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderCreatedItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceMinor: item.PriceMinor,
		})
	}

	payload, err := json.Marshal(OrderCreatedPayload{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		Currency:    order.Currency,
		AmountMinor: order.AmountMinor,
		Items:       items,
		CreatedAt:   order.CreatedAt,
	})
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal order created payload: %w", err)
	}

	return domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     domain.EventTypeOrderCreated,
		Payload:       payload,
		CreatedAt:     order.CreatedAt,
	}, nil
}

func newStockDecrementedMessage(order domain.Order) (domain.OutboxMessage, error) {
	aggregated := domain.AggregateStockChanges(toStockChanges(order.Items))
	changes := make([]StockChangeEntry, 0, len(aggregated))
	for _, change := range aggregated {
		changes = append(changes, StockChangeEntry{ProductID: change.ProductID, Quantity: change.Quantity})
	}

	payload, err := json.Marshal(StockDecrementedPayload{OrderID: order.ID, Changes: changes})
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal stock decremented payload: %w", err)
	}

	return domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     domain.EventTypeStockDecremented,
		Payload:       payload,
		CreatedAt:     order.CreatedAt,
	}, nil
}

// stockReason формирует краткое описание списания для таймлайна: "p1:3,p2:1".
func stockReason(items []domain.OrderLineItem) string {
	parts := make([]string, 0, len(items))
	for _, change := range domain.AggregateStockChanges(toStockChanges(items)) {
		parts = append(parts, fmt.Sprintf("%s:%d", change.ProductID, change.Quantity))
	}
	return strings.Join(parts, ",")
}

func toStockChanges(items []domain.OrderLineItem) []domain.StockChange {
	changes := make([]domain.StockChange, 0, len(items))
	for _, item := range items {
		changes = append(changes, domain.StockChange{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return changes
}
