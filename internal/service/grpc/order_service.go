package grpcsvc

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	orderingv1 "github.com/vladislavdragonenkov/ordering/api/ordering/v1"
	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/money"
	"github.com/vladislavdragonenkov/ordering/internal/service/ordering"
)

const defaultListOrdersLimit = 100

// OrderCreator — сценарий оформления заказа.
type OrderCreator interface {
	Execute(ctx context.Context, customerID string, requested []ordering.RequestedProduct) (domain.Order, error)
}

// OrderService реализует gRPC API поверх сценария оформления и репозиториев.
type OrderService struct {
	orderingv1.UnimplementedOrderServiceServer

	workflow OrderCreator
	orders   domain.OrderRepository
	products domain.ProductRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
}

// NewOrderService конструирует сервис с зависимостями. timeline может быть nil.
func NewOrderService(
	workflow OrderCreator,
	orders domain.OrderRepository,
	products domain.ProductRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *OrderService {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	return &OrderService{
		workflow: workflow,
		orders:   orders,
		products: products,
		timeline: timeline,
		logger:   logger,
	}
}

// CreateOrder оформляет заказ.
func (s *OrderService) CreateOrder(ctx context.Context, req *orderingv1.CreateOrderRequest) (*orderingv1.CreateOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	requested := make([]ordering.RequestedProduct, 0, len(req.Products))
	for _, p := range req.Products {
		requested = append(requested, ordering.RequestedProduct{ID: strings.TrimSpace(p.ProductID), Quantity: p.Quantity})
	}

	order, err := s.workflow.Execute(ctx, strings.TrimSpace(req.CustomerID), requested)
	if err != nil {
		return nil, s.createOrderError(req.CustomerID, err)
	}

	return &orderingv1.CreateOrderResponse{Order: toAPIOrder(order)}, nil
}

// GetOrder возвращает заказ и его таймлайн.
func (s *OrderService) GetOrder(ctx context.Context, req *orderingv1.GetOrderRequest) (*orderingv1.GetOrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", req.OrderID).Warn("failed to load order")
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, status.Error(codes.NotFound, domain.ErrOrderNotFound.Error())
		}
		return nil, status.Error(codes.Internal, "failed to load order")
	}

	return &orderingv1.GetOrderResponse{
		Order:    toAPIOrder(order),
		Timeline: s.buildTimeline(ctx, order.ID),
	}, nil
}

// ListOrders возвращает заказы клиента, новые первыми.
func (s *OrderService) ListOrders(ctx context.Context, req *orderingv1.ListOrdersRequest) (*orderingv1.ListOrdersResponse, error) {
	if req == nil || req.CustomerID == "" {
		return nil, status.Error(codes.InvalidArgument, "customer_id is required")
	}

	limit := int(req.PageSize)
	if limit <= 0 {
		limit = defaultListOrdersLimit
	}

	orders, err := s.orders.ListByCustomer(ctx, req.CustomerID, limit)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", req.CustomerID).Error("failed to list orders")
		return nil, status.Error(codes.Internal, "failed to list orders")
	}

	result := make([]*orderingv1.Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, toAPIOrder(order))
	}
	return &orderingv1.ListOrdersResponse{Orders: result}, nil
}

// GetProduct возвращает товар каталога с текущим остатком.
func (s *OrderService) GetProduct(ctx context.Context, req *orderingv1.GetProductRequest) (*orderingv1.GetProductResponse, error) {
	if req == nil || req.ProductID == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}

	found, err := s.products.FindAllByID(ctx, []string{req.ProductID})
	if err != nil {
		s.logger.WithError(err).WithField("product_id", req.ProductID).Error("failed to load product")
		return nil, status.Error(codes.Internal, "failed to load product")
	}
	if len(found) == 0 {
		return nil, status.Error(codes.NotFound, domain.ErrProductNotFound.Error())
	}

	p := found[0]
	return &orderingv1.GetProductResponse{Product: &orderingv1.Product{
		ID:       p.ID,
		Name:     p.Name,
		Quantity: p.Quantity,
		Price:    money.FormatMinor(p.PriceMinor, p.Currency),
		Currency: p.Currency,
	}}, nil
}

func (s *OrderService) createOrderError(customerID string, err error) error {
	entry := s.logger.WithError(err).WithField("customer_id", customerID)

	switch {
	case domain.IsValidationError(err):
		entry.Info("order rejected")
		return status.Error(codes.InvalidArgument, rejectionMessage(err))
	case domain.IsStockError(err):
		entry.Info("order rejected")
		return status.Error(codes.FailedPrecondition, domain.ErrInsufficientStock.Error())
	default:
		entry.Error("failed to create order")
		return status.Error(codes.Internal, "failed to create order")
	}
}

// rejectionMessage возвращает фиксированный текст ошибки проверки без деталей обёртки.
func rejectionMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrInvalidCustomer,
		domain.ErrInvalidProduct,
		domain.ErrCurrencyMismatch,
		domain.ErrAmountOverflow,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func (s *OrderService) buildTimeline(ctx context.Context, orderID string) []orderingv1.TimelineEvent {
	if s.timeline == nil {
		return nil
	}
	events, err := s.timeline.List(ctx, orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to list timeline events")
		return nil
	}
	result := make([]orderingv1.TimelineEvent, 0, len(events))
	for _, event := range events {
		result = append(result, orderingv1.TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return result
}

func toAPIOrder(order domain.Order) *orderingv1.Order {
	items := make([]orderingv1.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderingv1.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: money.FormatMinor(item.PriceMinor, order.Currency),
		})
	}
	return &orderingv1.Order{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Currency:   order.Currency,
		Amount:     money.FormatMinor(order.AmountMinor, order.Currency),
		Items:      items,
		CreatedAt:  order.CreatedAt,
	}
}
