package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

type txKey struct{}

// Store — общее in-memory хранилище для всех репозиториев.
// Все репозитории одного Store разделяют блокировку, поэтому WithinTx
// даёт сериализуемую единицу работы: остальные запросы ждут её завершения.
type Store struct {
	mu sync.RWMutex

	customers map[string]domain.Customer
	products  map[string]domain.Product
	orders    map[string]domain.Order
	outbox    map[string]*outboxRecord
	timeline  map[string][]domain.TimelineEvent
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		customers: make(map[string]domain.Customer),
		products:  make(map[string]domain.Product),
		orders:    make(map[string]domain.Order),
		outbox:    make(map[string]*outboxRecord),
		timeline:  make(map[string][]domain.TimelineEvent),
	}
}

// WithinTx выполняет fn под эксклюзивной блокировкой хранилища.
// При ошибке состояние откатывается к снимку, снятому перед fn.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock берёт эксклюзивную блокировку, если вызов идёт не из WithinTx.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// rlock берёт блокировку на чтение, если вызов идёт не из WithinTx.
func (s *Store) rlock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

type snapshot struct {
	customers map[string]domain.Customer
	products  map[string]domain.Product
	orders    map[string]domain.Order
	outbox    map[string]outboxRecord
	timeline  map[string][]domain.TimelineEvent
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		customers: make(map[string]domain.Customer, len(s.customers)),
		products:  make(map[string]domain.Product, len(s.products)),
		orders:    make(map[string]domain.Order, len(s.orders)),
		outbox:    make(map[string]outboxRecord, len(s.outbox)),
		timeline:  make(map[string][]domain.TimelineEvent, len(s.timeline)),
	}
	for k, v := range s.customers {
		snap.customers[k] = v
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.outbox {
		snap.outbox[k] = *v
	}
	for k, v := range s.timeline {
		snap.timeline[k] = append([]domain.TimelineEvent(nil), v...)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.customers = snap.customers
	s.products = snap.products
	s.orders = snap.orders
	s.timeline = snap.timeline
	s.outbox = make(map[string]*outboxRecord, len(snap.outbox))
	for k, v := range snap.outbox {
		rec := v
		s.outbox[k] = &rec
	}
}

// Customers возвращает справочник клиентов поверх хранилища.
func (s *Store) Customers() domain.CustomerRepository { return &customerRepository{store: s} }

// Products возвращает каталог товаров поверх хранилища.
func (s *Store) Products() domain.ProductRepository { return &productRepository{store: s} }

// Orders возвращает репозиторий заказов поверх хранилища.
func (s *Store) Orders() domain.OrderRepository { return &orderRepository{store: s} }

// Outbox возвращает transactional outbox поверх хранилища.
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{store: s} }

// Timeline возвращает таймлайн заказов поверх хранилища.
func (s *Store) Timeline() domain.TimelineRepository { return &timelineRepository{store: s} }

var _ domain.TxManager = (*Store)(nil)
