package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины отказа в оформлении заказа (значения label reason).
const (
	ReasonInvalidRequest    = "invalid_request"
	ReasonInvalidCustomer   = "invalid_customer"
	ReasonInvalidProduct    = "invalid_product"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonCurrencyMismatch  = "currency_mismatch"
	ReasonAmountOverflow    = "amount_overflow"
	ReasonStorage           = "storage"
)

// OrderMetrics содержит метрики сценария оформления заказа.
type OrderMetrics struct {
	ordersCreated prometheus.Counter
	orderFailures *prometheus.CounterVec

	createDuration prometheus.Histogram
	itemsPerOrder  prometheus.Histogram

	// Суммарное количество списанных единиц товара.
	stockUnits prometheus.Counter

	inFlight prometheus.Gauge
}

// NewOrderMetrics создаёт метрики в глобальном реестре Prometheus.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном реестре (удобно для тестов).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ordering_orders_created_total",
			Help: "Total number of orders created successfully",
		}),
		orderFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordering_order_failures_total",
			Help: "Total number of rejected or failed order creations grouped by reason",
		}, []string{"reason"}),
		createDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ordering_create_order_duration_seconds",
			Help:    "Duration of the create order workflow in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		itemsPerOrder: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ordering_order_line_items",
			Help:    "Number of line items per created order",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		}),
		stockUnits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ordering_stock_decremented_units_total",
			Help: "Total number of stock units decremented by created orders",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ordering_create_order_in_flight",
			Help: "Number of create order workflows currently running",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordStarted отмечает начало оформления заказа.
func (m *OrderMetrics) RecordStarted() {
	m.inFlight.Inc()
}

// RecordFinished фиксирует длительность и снимает заказ с учёта активных.
func (m *OrderMetrics) RecordFinished(duration time.Duration) {
	m.inFlight.Dec()
	m.createDuration.Observe(duration.Seconds())
}

// RecordOrderCreated увеличивает счётчик заказов и списанных единиц.
func (m *OrderMetrics) RecordOrderCreated(items int, units int64) {
	m.ordersCreated.Inc()
	m.itemsPerOrder.Observe(float64(items))
	m.stockUnits.Add(float64(units))
}

// RecordFailure увеличивает счётчик отказов с указанной причиной.
func (m *OrderMetrics) RecordFailure(reason string) {
	m.orderFailures.WithLabelValues(reason).Inc()
}
