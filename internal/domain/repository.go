package domain

import "context"

// CustomerRepository — справочник клиентов.
type CustomerRepository interface {
	// FindByID возвращает клиента или ErrCustomerNotFound.
	FindByID(ctx context.Context, id string) (Customer, error)
	// Upsert создаёт или обновляет клиента (используется при загрузке справочника).
	Upsert(ctx context.Context, customer Customer) error
}

// ProductRepository — каталог товаров с остатками.
type ProductRepository interface {
	// FindAllByID возвращает только найденные товары, каждый не более одного раза.
	// Порядок результата относительно ids не гарантируется.
	FindAllByID(ctx context.Context, ids []string) ([]Product, error)
	// UpdateQuantity списывает остатки. Списание условное и атомарное:
	// если хотя бы один товар ушёл бы в минус, ничего не меняется и
	// возвращается ErrInsufficientStock.
	UpdateQuantity(ctx context.Context, changes []StockChange) error
	// Upsert создаёт или обновляет товар (используется при загрузке каталога).
	Upsert(ctx context.Context, product Product) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. ErrOrderAlreadyExists, если ID занят.
	Create(ctx context.Context, order Order) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByCustomer возвращает заказы клиента, новые первыми; limit <= 0 — без ограничения.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// Delete удаляет заказ; используется как компенсация, если списание не удалось.
	Delete(ctx context.Context, id string) error
}

// TxManager выполняет fn в одной единице работы. Репозитории, вызванные
// с переданным ctx, участвуют в той же транзакции.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
