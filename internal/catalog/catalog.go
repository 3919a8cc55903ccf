// Package catalog загружает справочники клиентов и товаров из YAML-файла.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/money"
)

// Fixture — содержимое файла каталога.
type Fixture struct {
	Customers []CustomerEntry `yaml:"customers"`
	Products  []ProductEntry  `yaml:"products"`
}

type CustomerEntry struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// ProductEntry — товар в файле. Цена задаётся десятичной строкой ("5.00").
type ProductEntry struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Quantity int64  `yaml:"quantity"`
	Price    string `yaml:"price"`
	Currency string `yaml:"currency"`
}

// Result — сколько записей загружено.
type Result struct {
	Customers int
	Products  int
}

// Repositories — куда загружать каталог. Tx необязателен.
type Repositories struct {
	Customers domain.CustomerRepository
	Products  domain.ProductRepository
	Tx        domain.TxManager
}

// LoadFile читает и разбирает файл каталога.
func LoadFile(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read catalog %s: %w", path, err)
	}
	fixture, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Fixture{}, fmt.Errorf("catalog %s: %w", path, err)
	}
	return fixture, nil
}

// Parse разбирает YAML. Неизвестные поля считаются ошибкой.
func Parse(r io.Reader) (Fixture, error) {
	var fixture Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fixture); err != nil && !errors.Is(err, io.EOF) {
		return Fixture{}, fmt.Errorf("decode yaml: %w", err)
	}
	return fixture, nil
}

// DomainCustomers переводит записи файла в доменных клиентов.
func (f Fixture) DomainCustomers() ([]domain.Customer, error) {
	seen := make(map[string]struct{}, len(f.Customers))
	result := make([]domain.Customer, 0, len(f.Customers))
	for idx, entry := range f.Customers {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("customers[%d]: %w", idx, domain.ErrCustomerRequired)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("customers[%d]: duplicate id %q", idx, id)
		}
		seen[id] = struct{}{}
		result = append(result, domain.Customer{ID: id, Name: entry.Name, Email: entry.Email})
	}
	return result, nil
}

// DomainProducts переводит записи файла в доменные товары, цена — в минимальные единицы.
func (f Fixture) DomainProducts() ([]domain.Product, error) {
	seen := make(map[string]struct{}, len(f.Products))
	result := make([]domain.Product, 0, len(f.Products))
	for idx, entry := range f.Products {
		currency := strings.ToUpper(strings.TrimSpace(entry.Currency))
		price, err := money.ParseMinor(entry.Price, currency)
		if err != nil {
			return nil, fmt.Errorf("products[%d] price: %w", idx, err)
		}
		product := domain.Product{
			ID:         strings.TrimSpace(entry.ID),
			Name:       entry.Name,
			Quantity:   entry.Quantity,
			PriceMinor: price,
			Currency:   currency,
		}
		if errs := product.Validate(); len(errs) > 0 {
			return nil, fmt.Errorf("products[%d]: %w", idx, errors.Join(errs...))
		}
		if _, dup := seen[product.ID]; dup {
			return nil, fmt.Errorf("products[%d]: duplicate id %q", idx, product.ID)
		}
		seen[product.ID] = struct{}{}
		result = append(result, product)
	}
	return result, nil
}

// Apply проверяет весь файл и затем сохраняет записи через Upsert.
// С Tx загрузка проходит одной единицей работы.
func Apply(ctx context.Context, fixture Fixture, repos Repositories, logger *log.Entry) (Result, error) {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}

	customers, err := fixture.DomainCustomers()
	if err != nil {
		return Result{}, err
	}
	products, err := fixture.DomainProducts()
	if err != nil {
		return Result{}, err
	}

	load := func(ctx context.Context) error {
		for _, customer := range customers {
			if err := repos.Customers.Upsert(ctx, customer); err != nil {
				return fmt.Errorf("upsert customer %s: %w", customer.ID, err)
			}
		}
		for _, product := range products {
			if err := repos.Products.Upsert(ctx, product); err != nil {
				return fmt.Errorf("upsert product %s: %w", product.ID, err)
			}
		}
		return nil
	}

	if repos.Tx != nil {
		err = repos.Tx.WithinTx(ctx, load)
	} else {
		err = load(ctx)
	}
	if err != nil {
		return Result{}, err
	}

	result := Result{Customers: len(customers), Products: len(products)}
	logger.WithFields(log.Fields{
		"customers": result.Customers,
		"products":  result.Products,
	}).Info("catalog loaded")
	return result, nil
}
