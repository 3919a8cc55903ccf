// Package orderingv1 описывает gRPC API сервиса оформления заказов:
// сообщения, сервисный дескриптор и клиент. На проводе это protobuf по
// схеме ordering.proto (см. codec.go), суммы — десятичными строками.
package orderingv1

import "time"

// RequestedProduct — позиция в запросе на создание заказа.
type RequestedProduct struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type CreateOrderRequest struct {
	CustomerID string             `json:"customer_id"`
	Products   []RequestedProduct `json:"products"`
}

type CreateOrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type GetOrderResponse struct {
	Order    *Order          `json:"order"`
	Timeline []TimelineEvent `json:"timeline"`
}

type ListOrdersRequest struct {
	CustomerID string `json:"customer_id"`
	PageSize   int32  `json:"page_size"`
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

type GetProductRequest struct {
	ProductID string `json:"product_id"`
}

type GetProductResponse struct {
	Product *Product `json:"product"`
}

// Order — созданный заказ. Amount и UnitPrice — десятичные строки в валюте Currency.
type Order struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id"`
	Status     string      `json:"status"`
	Currency   string      `json:"currency"`
	Amount     string      `json:"amount"`
	Items      []OrderItem `json:"items"`
	CreatedAt  time.Time   `json:"created_at"`
}

type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type TimelineEvent struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
}
