package domain

import "errors"

// Ошибки сценария оформления заказа. Тексты показываются пользователю как есть.
var (
	// ErrInvalidCustomer — клиент с указанным идентификатором не найден.
	ErrInvalidCustomer = errors.New("you can't create an order with an invalid customer")
	// ErrInvalidProduct — хотя бы один из запрошенных товаров не найден.
	ErrInvalidProduct = errors.New("you can't create an order with invalid products")
	// ErrInsufficientStock — запрошено больше, чем есть на складе.
	ErrInsufficientStock = errors.New("you can't place an order with a product that exceeds the amount stored")
	// ErrInvalidRequest — запрос не прошёл базовую проверку (пустой клиент, нет позиций, qty <= 0).
	ErrInvalidRequest = errors.New("invalid order request")
	// ErrCurrencyMismatch — товары заказа выставлены в разных валютах.
	ErrCurrencyMismatch = errors.New("products in one order must share a currency")
	// ErrAmountOverflow — сумма заказа не помещается в int64 минимальных единиц.
	ErrAmountOverflow = errors.New("order amount exceeds the supported range")
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка отрицательного остатка в каталоге.
	ErrProductQuantityNegative = errors.New("product quantity must be non-negative")
	// ErrCustomerNotFound возвращается справочником клиентов, если записи нет.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrProductNotFound возвращается каталогом, если товара нет.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists — заказ с таким ID уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsValidationError сообщает, что ошибка вызвана данными запроса и повтор без исправления бессмыслен.
// ErrInsufficientStock сюда не входит: после пополнения склада запрос может пройти.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidCustomer) ||
		errors.Is(err, ErrInvalidProduct) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrAmountOverflow)
}

// IsStockError проверяет, является ли ошибка нехваткой остатка.
func IsStockError(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
