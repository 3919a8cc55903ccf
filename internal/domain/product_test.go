package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

func TestProductValidate(t *testing.T) {
	valid := domain.Product{ID: "p1", Quantity: 0, PriceMinor: 0, Currency: "USD"}
	if errs := valid.Validate(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}

	invalid := domain.Product{Quantity: -1, PriceMinor: -1}
	if errs := invalid.Validate(); len(errs) != 4 {
		t.Fatalf("expected 4 errors, got %v", errs)
	}
}

func TestAggregateStockChanges(t *testing.T) {
	got := domain.AggregateStockChanges([]domain.StockChange{
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 3},
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 aggregated changes, got %d", len(got))
	}
	if got[0].ProductID != "p2" || got[0].Quantity != 4 {
		t.Fatalf("unexpected first change: %+v", got[0])
	}
	if got[1].ProductID != "p1" || got[1].Quantity != 2 {
		t.Fatalf("unexpected second change: %+v", got[1])
	}
}

func TestAggregateStockChanges_Empty(t *testing.T) {
	if got := domain.AggregateStockChanges(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}
