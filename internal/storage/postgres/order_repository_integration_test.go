package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

func TestOrderRepository_PostgresCreateGetListAndDelete(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store,
		domain.Product{ID: "p-1", Quantity: 10, PriceMinor: 150, Currency: "USD"},
		domain.Product{ID: "p-2", Quantity: 10, PriceMinor: 20, Currency: "USD"},
	)
	repo := store.Orders()
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder(t, "order-1", "customer-1", now.Add(-2*time.Minute))
	order2 := sampleOrder(t, "order-2", "customer-1", now.Add(-time.Minute))

	if _, err := repo.Create(ctx, order1); err != nil {
		t.Fatalf("create order1: %v", err)
	}
	if _, err := repo.Create(ctx, order2); err != nil {
		t.Fatalf("create order2: %v", err)
	}

	got, err := repo.Get(ctx, order1.ID)
	if err != nil {
		t.Fatalf("get order1: %v", err)
	}
	if got.ID != order1.ID || got.CustomerID != order1.CustomerID || got.Status != domain.OrderStatusCreated {
		t.Fatalf("unexpected order payload: %+v", got)
	}
	if got.AmountMinor != order1.AmountMinor || got.Currency != "USD" {
		t.Fatalf("unexpected totals: %+v", got)
	}
	if len(got.Items) != 2 || got.Items[0].ProductID != "p-1" || got.Items[1].ProductID != "p-2" {
		t.Fatalf("items must keep request order: %+v", got.Items)
	}

	listed, err := repo.ListByCustomer(ctx, "customer-1", 1)
	if err != nil {
		t.Fatalf("list by customer with limit: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != order2.ID {
		t.Fatalf("unexpected list result with limit: %+v", listed)
	}

	all, err := repo.ListByCustomer(ctx, "customer-1", 0)
	if err != nil {
		t.Fatalf("list by customer without limit: %v", err)
	}
	if len(all) != 2 || len(all[1].Items) != 2 {
		t.Fatalf("expected 2 orders with items, got %+v", all)
	}

	if err := repo.Delete(ctx, order1.ID); err != nil {
		t.Fatalf("delete order1: %v", err)
	}
	if _, err := repo.Get(ctx, order1.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, order1.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on second delete, got %v", err)
	}
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store,
		domain.Product{ID: "p-1", Quantity: 10, PriceMinor: 150, Currency: "USD"},
		domain.Product{ID: "p-2", Quantity: 10, PriceMinor: 20, Currency: "USD"},
	)
	repo := store.Orders()
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	base := sampleOrder(t, "order-errors", "customer-1", now)

	if _, err := repo.Get(ctx, "missing-order"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	if _, err := repo.Create(ctx, base); err != nil {
		t.Fatalf("create base order: %v", err)
	}
	if _, err := repo.Create(ctx, base); !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("expected ErrOrderAlreadyExists on duplicate create, got %v", err)
	}

	orphan := sampleOrder(t, "order-orphan", "customer-404", now)
	if _, err := repo.Create(ctx, orphan); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound for unknown customer, got %v", err)
	}

	badItem := sampleOrder(t, "order-bad-item", "customer-1", now)
	badItem.Items[1].ProductID = "p-404"
	if _, err := repo.Create(ctx, badItem); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound for unknown product, got %v", err)
	}
	if _, err := repo.Get(ctx, badItem.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("order with a bad item must not be stored, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected unique violation for code 23505")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22001"}) {
		t.Fatal("unexpected unique violation for non-unique code")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatal("plain error must not be unique violation")
	}
	if !isForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("expected foreign key violation for code 23503")
	}
}

func sampleOrder(t *testing.T, id, customerID string, createdAt time.Time) domain.Order {
	t.Helper()
	order, err := domain.NewOrder(id, domain.Customer{ID: customerID}, "USD", []domain.OrderLineItem{
		{ProductID: "p-1", Quantity: 2, PriceMinor: 150},
		{ProductID: "p-2", Quantity: 1, PriceMinor: 20},
	}, createdAt)
	if err != nil {
		t.Fatalf("build order: %v", err)
	}
	return order
}
