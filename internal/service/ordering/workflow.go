package ordering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/metrics"
)

const tracerName = "github.com/vladislavdragonenkov/ordering/internal/service/ordering"

// RequestedProduct — одна позиция из запроса клиента.
type RequestedProduct struct {
	ID       string
	Quantity int64
}

// Deps — зависимости сценария. Customers, Products и Orders обязательны.
type Deps struct {
	Customers domain.CustomerRepository
	Products  domain.ProductRepository
	Orders    domain.OrderRepository

	// Tx объединяет создание заказа, списание остатков, outbox и таймлайн
	// в одну единицу работы. Без него при ошибке списания заказ удаляется.
	Tx       domain.TxManager
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository

	Metrics *metrics.OrderMetrics
	Logger  *log.Entry

	Now   func() time.Time
	NewID func() string
}

// Workflow оформляет заказ: проверка клиента, товаров и остатков, затем
// сохранение заказа и списание остатков.
type Workflow struct {
	customers domain.CustomerRepository
	products  domain.ProductRepository
	orders    domain.OrderRepository
	tx        domain.TxManager
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	metrics   *metrics.OrderMetrics
	logger    *log.Entry
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// NewWorkflow конструирует сценарий оформления заказа.
func NewWorkflow(deps Deps) *Workflow {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "ordering")
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Workflow{
		customers: deps.Customers,
		products:  deps.Products,
		orders:    deps.Orders,
		tx:        deps.Tx,
		outbox:    deps.Outbox,
		timeline:  deps.Timeline,
		metrics:   deps.Metrics,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		now:       now,
		newID:     newID,
	}
}

// Execute оформляет заказ клиента customerID на товары requested.
//
// Ошибки проверки: domain.ErrInvalidRequest, ErrInvalidCustomer,
// ErrInvalidProduct, ErrCurrencyMismatch, ErrAmountOverflow, ErrInsufficientStock. До первой
// записи ни одна из них не меняет хранилища. Ошибки репозиториев
// возвращаются обёрнутыми через %w.
func (w *Workflow) Execute(ctx context.Context, customerID string, requested []RequestedProduct) (order domain.Order, err error) {
	ctx, span := w.tracer.Start(ctx, "ordering.CreateOrder", trace.WithAttributes(
		attribute.String("customer.id", customerID),
		attribute.Int("order.requested_items", len(requested)),
	))
	start := time.Now()
	if w.metrics != nil {
		w.metrics.RecordStarted()
	}
	defer func() {
		if w.metrics != nil {
			w.metrics.RecordFinished(time.Since(start))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			w.recordFailure(customerID, err)
		} else {
			span.SetAttributes(attribute.String("order.id", order.ID))
		}
		span.End()
	}()

	if err := validateRequest(customerID, requested); err != nil {
		return domain.Order{}, err
	}

	customer, err := w.customers.FindByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			return domain.Order{}, domain.ErrInvalidCustomer
		}
		return domain.Order{}, fmt.Errorf("find customer %s: %w", customerID, err)
	}

	stored, err := w.loadProducts(ctx, requested)
	if err != nil {
		return domain.Order{}, err
	}

	items, currency, err := priceItems(requested, stored)
	if err != nil {
		return domain.Order{}, err
	}

	order, err = domain.NewOrder(w.newID(), customer, currency, items, w.now())
	if err != nil {
		return domain.Order{}, err
	}
	changes := make([]domain.StockChange, 0, len(requested))
	for _, p := range requested {
		changes = append(changes, domain.StockChange{ProductID: p.ID, Quantity: p.Quantity})
	}

	if w.tx != nil {
		err = w.tx.WithinTx(ctx, func(txCtx context.Context) error {
			created, err := w.commit(txCtx, order, changes, true)
			if err != nil {
				return err
			}
			order = created
			return nil
		})
	} else {
		order, err = w.commitWithCompensation(ctx, order, changes)
	}
	if err != nil {
		return domain.Order{}, err
	}

	if w.metrics != nil {
		var units int64
		for _, change := range changes {
			units += change.Quantity
		}
		w.metrics.RecordOrderCreated(len(order.Items), units)
	}
	w.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"customer_id":  order.CustomerID,
		"items":        len(order.Items),
		"amount_minor": order.AmountMinor,
		"currency":     order.Currency,
	}).Info("order created")

	return order, nil
}

func validateRequest(customerID string, requested []RequestedProduct) error {
	if customerID == "" {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, domain.ErrCustomerRequired)
	}
	if len(requested) == 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, domain.ErrItemsRequired)
	}
	for idx, p := range requested {
		if p.ID == "" {
			return fmt.Errorf("%w: products[%d]: %w", domain.ErrInvalidRequest, idx, domain.ErrProductIDRequired)
		}
		if p.Quantity <= 0 {
			return fmt.Errorf("%w: products[%d]: %w", domain.ErrInvalidRequest, idx, domain.ErrItemQtyInvalid)
		}
	}
	return nil
}

// loadProducts загружает товары одним запросом и проверяет, что найдены все.
// Сравниваем с множеством уникальных id: повтор товара в запросе не должен
// давать ложный ErrInvalidProduct.
func (w *Workflow) loadProducts(ctx context.Context, requested []RequestedProduct) (map[string]domain.Product, error) {
	ids := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, p := range requested {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		ids = append(ids, p.ID)
	}

	products, err := w.products.FindAllByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	if len(products) < len(ids) {
		return nil, domain.ErrInvalidProduct
	}

	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, domain.ErrInvalidProduct
		}
	}
	return byID, nil
}

// priceItems проверяет остатки и строит позиции с ценой из каталога.
// Остаток проверяется по каждой позиции и по сумме повторов одного товара,
// так как списывается именно сумма.
func priceItems(requested []RequestedProduct, stored map[string]domain.Product) ([]domain.OrderLineItem, string, error) {
	totals := make(map[string]int64, len(stored))
	items := make([]domain.OrderLineItem, 0, len(requested))
	currency := ""

	for _, p := range requested {
		product := stored[p.ID]
		totals[p.ID] += p.Quantity
		if p.Quantity > product.Quantity || totals[p.ID] > product.Quantity {
			return nil, "", domain.ErrInsufficientStock
		}

		if currency == "" {
			currency = product.Currency
		} else if product.Currency != currency {
			return nil, "", domain.ErrCurrencyMismatch
		}

		items = append(items, domain.OrderLineItem{
			ProductID:  p.ID,
			Quantity:   p.Quantity,
			PriceMinor: product.PriceMinor,
		})
	}

	return items, currency, nil
}

// commit сохраняет заказ, списывает остатки и пишет outbox/таймлайн.
// В strict-режиме (внутри транзакции) ошибки outbox и таймлайна откатывают
// всю единицу работы; иначе они только логируются.
func (w *Workflow) commit(ctx context.Context, order domain.Order, changes []domain.StockChange, strict bool) (domain.Order, error) {
	created, err := w.orders.Create(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	if err := w.products.UpdateQuantity(ctx, changes); err != nil {
		return domain.Order{}, fmt.Errorf("update stock: %w", err)
	}

	if err := w.recordEvents(ctx, created); err != nil {
		if strict {
			return domain.Order{}, err
		}
		w.logger.WithError(err).WithField("order_id", created.ID).Warn("failed to record order events")
	}

	return created, nil
}

// commitWithCompensation используется без TxManager: если списание не
// удалось, уже созданный заказ удаляется.
func (w *Workflow) commitWithCompensation(ctx context.Context, order domain.Order, changes []domain.StockChange) (domain.Order, error) {
	created, err := w.orders.Create(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	if err := w.products.UpdateQuantity(ctx, changes); err != nil {
		if delErr := w.orders.Delete(ctx, created.ID); delErr != nil {
			w.logger.WithError(delErr).WithField("order_id", created.ID).Error("failed to compensate order after stock update failure")
			return domain.Order{}, errors.Join(fmt.Errorf("update stock: %w", err), fmt.Errorf("compensate order %s: %w", created.ID, delErr))
		}
		w.logger.WithError(err).WithField("order_id", created.ID).Warn("stock update failed, order compensated")
		return domain.Order{}, fmt.Errorf("update stock: %w", err)
	}

	if err := w.recordEvents(ctx, created); err != nil {
		w.logger.WithError(err).WithField("order_id", created.ID).Warn("failed to record order events")
	}

	return created, nil
}

func (w *Workflow) recordEvents(ctx context.Context, order domain.Order) error {
	if w.outbox != nil {
		for _, build := range []func(domain.Order) (domain.OutboxMessage, error){
			newOrderCreatedMessage,
			newStockDecrementedMessage,
		} {
			msg, err := build(order)
			if err != nil {
				return err
			}
			if _, err := w.outbox.Enqueue(ctx, msg); err != nil {
				return fmt.Errorf("enqueue %s event: %w", msg.EventType, err)
			}
		}
	}

	if w.timeline != nil {
		events := []domain.TimelineEvent{
			{OrderID: order.ID, Type: domain.TimelineOrderCreated, Reason: string(order.Status), Occurred: order.CreatedAt},
			{OrderID: order.ID, Type: domain.TimelineStockDecremented, Reason: stockReason(order.Items), Occurred: order.CreatedAt},
		}
		for _, event := range events {
			if err := w.timeline.Append(ctx, event); err != nil {
				return fmt.Errorf("append timeline %s: %w", event.Type, err)
			}
		}
	}

	return nil
}

func (w *Workflow) recordFailure(customerID string, err error) {
	reason := FailureReason(err)
	if w.metrics != nil {
		w.metrics.RecordFailure(reason)
	}

	entry := w.logger.WithError(err).WithFields(log.Fields{
		"customer_id": customerID,
		"reason":      reason,
	})
	if reason == metrics.ReasonStorage {
		entry.Error("create order failed")
		return
	}
	entry.Info("create order rejected")
}

// FailureReason сопоставляет ошибку сценария с label причины в метриках.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return metrics.ReasonInvalidRequest
	case errors.Is(err, domain.ErrInvalidCustomer):
		return metrics.ReasonInvalidCustomer
	case errors.Is(err, domain.ErrInvalidProduct):
		return metrics.ReasonInvalidProduct
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.ReasonInsufficientStock
	case errors.Is(err, domain.ErrCurrencyMismatch):
		return metrics.ReasonCurrencyMismatch
	case errors.Is(err, domain.ErrAmountOverflow):
		return metrics.ReasonAmountOverflow
	default:
		return metrics.ReasonStorage
	}
}
