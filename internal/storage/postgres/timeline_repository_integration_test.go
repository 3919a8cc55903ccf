package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store,
		domain.Product{ID: "p-1", Quantity: 10, PriceMinor: 150, Currency: "USD"},
		domain.Product{ID: "p-2", Quantity: 10, PriceMinor: 20, Currency: "USD"},
	)
	ctx := context.Background()
	timelineRepo := store.Timeline()

	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	order := sampleOrder(t, "timeline-order", "customer-1", createdAt)
	if _, err := store.Orders().Create(ctx, order); err != nil {
		t.Fatalf("create order for timeline: %v", err)
	}

	// Нулевое время подставляется автоматически.
	if err := timelineRepo.Append(ctx, domain.TimelineEvent{
		OrderID: order.ID,
		Type:    domain.TimelineStockDecremented,
		Reason:  "p-1:2,p-2:1",
	}); err != nil {
		t.Fatalf("append timeline event with zero occurred: %v", err)
	}

	if err := timelineRepo.Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     domain.TimelineOrderCreated,
		Reason:   "created",
		Occurred: createdAt,
	}); err != nil {
		t.Fatalf("append timeline event with explicit occurred: %v", err)
	}

	events, err := timelineRepo.List(ctx, order.ID)
	if err != nil {
		t.Fatalf("list timeline events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(events))
	}
	if events[0].Type != domain.TimelineOrderCreated || events[1].Type != domain.TimelineStockDecremented {
		t.Fatalf("events should be sorted by occurred asc: %+v", events)
	}
}

func TestTimelineRepository_PostgresMissingOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	timelineRepo := store.Timeline()

	if err := timelineRepo.Append(ctx, domain.TimelineEvent{
		OrderID: "missing-order",
		Type:    domain.TimelineOrderCreated,
	}); err == nil {
		t.Fatal("expected append error for missing order due FK constraint")
	}

	events, err := timelineRepo.List(ctx, "missing-order")
	if err != nil {
		t.Fatalf("list for missing order should not fail: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for missing order, got %d", len(events))
	}
}
