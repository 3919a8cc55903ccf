package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()

	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventTypeOrderCreated,
		Payload:       []byte(`{"order_id":"order-1"}`),
	}

	saved, err := repo.Enqueue(ctx, msg)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}
	if saved.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}
	if pending[0].ID != saved.ID {
		t.Fatalf("expected same message id, got %s", pending[0].ID)
	}
}

func TestOutboxRepository_PullPendingOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()
	base := time.Now().UTC()

	for i, id := range []string{"c", "a", "b"} {
		if _, err := repo.Enqueue(ctx, domain.OutboxMessage{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	pending, err := repo.PullPending(ctx, 2)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "c" || pending[1].ID != "a" {
		t.Fatalf("expected [c a] oldest first, got %+v", pending)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 3 {
		t.Fatalf("expected 3 pending, got %d", stats.PendingCount)
	}
	if !stats.OldestPendingAt.Equal(base) {
		t.Fatalf("expected oldest %s, got %s", base, stats.OldestPendingAt)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()

	sent, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateTypeOrder})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	failed, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateTypeOrder})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkSent(ctx, sent.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, failed.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected no pending messages, got %d", len(pending))
	}

	if err := repo.MarkSent(ctx, "missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish for unknown id, got %v", err)
	}
}

func TestOutboxRepository_DeleteSentBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		saved, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "order", EventType: domain.EventTypeOrderCreated})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		ids = append(ids, saved.ID)
	}
	if err := repo.MarkSent(ctx, ids[0]); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkSent(ctx, ids[1]); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	deleted, err := repo.DeleteSentBefore(ctx, time.Now().UTC().Add(-time.Hour), 10)
	if err != nil || deleted != 0 {
		t.Fatalf("expected nothing older than an hour, deleted=%d err=%v", deleted, err)
	}

	cutoff := time.Now().UTC().Add(time.Second)
	deleted, err = repo.DeleteSentBefore(ctx, cutoff, 1)
	if err != nil || deleted != 1 {
		t.Fatalf("expected 1 deleted with limit 1, deleted=%d err=%v", deleted, err)
	}
	deleted, err = repo.DeleteSentBefore(ctx, cutoff, 10)
	if err != nil || deleted != 1 {
		t.Fatalf("expected remaining sent record deleted, deleted=%d err=%v", deleted, err)
	}

	if pending := repo.AllPending(); len(pending) != 1 || pending[0].ID != ids[2] {
		t.Fatalf("pending message must survive cleanup: %+v", pending)
	}
	if deleted, _ := repo.DeleteSentBefore(ctx, cutoff, 0); deleted != 0 {
		t.Fatalf("zero limit must not delete, deleted=%d", deleted)
	}
}
