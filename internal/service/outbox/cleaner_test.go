package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/storage/memory"
)

var _ domain.OutboxCleaner = (*stubCleaner)(nil)

func TestCleaner_DeleteExpired_Batches(t *testing.T) {
	t.Parallel()

	repo := &stubCleaner{results: []int{2, 2, 1}}
	cleaner := NewCleaner(repo, WithCleanupBatchSize(2))

	deleted, err := cleaner.DeleteExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("unexpected deleted total: got=%d want=5", deleted)
	}
	if calls := repo.calls(); calls != 3 {
		t.Fatalf("unexpected delete calls: got=%d want=3", calls)
	}
}

func TestCleaner_DeleteExpired_Error(t *testing.T) {
	t.Parallel()

	repo := &stubCleaner{errs: []error{errors.New("boom")}}
	cleaner := NewCleaner(repo, WithCleanupBatchSize(10))

	deleted, err := cleaner.DeleteExpired(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected DeleteExpired error")
	}
	if deleted != 0 {
		t.Fatalf("unexpected deleted total: got=%d want=0", deleted)
	}
}

func TestCleaner_UsesRetentionCutoff(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	repo := &stubCleaner{}
	cleaner := NewCleaner(repo, WithRetention(time.Hour))
	cleaner.now = func() time.Time { return now }

	cleaner.cleanup(context.Background())

	if got := repo.lastBefore(); !got.Equal(now.Add(-time.Hour)) {
		t.Fatalf("unexpected cutoff: got=%s want=%s", got, now.Add(-time.Hour))
	}
}

func TestCleaner_RemovesOnlySentMessages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewStore().Outbox()
	sent, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "o-1", EventType: domain.EventTypeOrderCreated})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "o-2", EventType: domain.EventTypeOrderCreated}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := repo.MarkSent(ctx, sent.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	cleaner := NewCleaner(repo, WithRetention(time.Minute))
	cleaner.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	cleaner.cleanup(ctx)

	deleted, err := repo.DeleteSentBefore(ctx, time.Now().UTC().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("delete sent: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("sent message should already be cleaned, deleted again=%d", deleted)
	}
	if pending := repo.AllPending(); len(pending) != 1 {
		t.Fatalf("pending message must survive cleanup, got %d", len(pending))
	}
}

func TestCleaner_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubCleaner{}
	cleaner := NewCleaner(repo, WithCleanupInterval(5*time.Millisecond), WithCleanupBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		cleaner.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop on context cancel")
	}
	if calls := repo.calls(); calls == 0 {
		t.Fatal("expected cleanup to be called at least once")
	}
}

func TestCleaner_RunWithoutRepo(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewCleaner(nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner without repo must return immediately")
	}
}

type stubCleaner struct {
	mu sync.Mutex

	results   []int
	errs      []error
	callCount int
	before    time.Time
}

func (s *stubCleaner) DeleteSentBefore(_ context.Context, before time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.before = before

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return 0, err
		}
	}

	if len(s.results) == 0 {
		return 0, nil
	}
	result := s.results[0]
	s.results = s.results[1:]
	return result, nil
}

func (s *stubCleaner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubCleaner) lastBefore() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.before
}
