package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/regassist/regassist/pkg/models"
)

func TestStoreGetOrFetchMissCallsFetchOnce(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	ctx := context.Background()

	calls := 0
	doc, hit, err := store.GetOrFetch(ctx, "cfr", "14-25-1309", func(ctx context.Context) (*models.Document, error) {
		calls++
		return &models.Document{CanonicalID: "cfr/14-25-1309", Body: "system design requirements"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Error("expected hit=false on a cold fetch")
	}
	if doc.Body != "system design requirements" {
		t.Errorf("unexpected body: %q", doc.Body)
	}
	if calls != 1 {
		t.Errorf("expected 1 fetch call, got %d", calls)
	}

	doc2, hit2, err := store.Get(ctx, "cfr", "14-25-1309")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit2 {
		t.Fatal("expected entry to be cached after GetOrFetch")
	}
	if doc2.HitCount != 0 || doc2.Indexed {
		t.Errorf("expected fresh entry HitCount=0 Indexed=false, got %+v", doc2)
	}
}

func TestStoreGetOrFetchConcurrentCallersCoalesce(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	ctx := context.Background()

	var calls int32CounterWithMutex
	start := make(chan struct{})
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := store.GetOrFetch(ctx, "drs", "order-123", func(ctx context.Context) (*models.Document, error) {
				calls.inc()
				time.Sleep(5 * time.Millisecond)
				return &models.Document{CanonicalID: "drs/order-123", Body: "order text"}, nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := calls.value(); got != 1 {
		t.Errorf("expected exactly 1 upstream fetch for %d concurrent callers, got %d", n, got)
	}
}

// int32CounterWithMutex is a tiny race-safe counter for the coalescing
// test above.
type int32CounterWithMutex struct {
	mu sync.Mutex
	n  int
}

func (c *int32CounterWithMutex) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *int32CounterWithMutex) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestStoreGetOrFetchPropagatesFetchError(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	ctx := context.Background()

	_, _, err := store.GetOrFetch(ctx, "aps", "ML12345", func(ctx context.Context) (*models.Document, error) {
		return nil, fmt.Errorf("upstream unavailable")
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}

	// A subsequent call must be able to retry; a failed fetch should not
	// poison the cache with an empty entry.
	doc, hit, err := store.GetOrFetch(ctx, "aps", "ML12345", func(ctx context.Context) (*models.Document, error) {
		return &models.Document{CanonicalID: "aps/ML12345", Body: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if hit {
		t.Error("expected hit=false, prior fetch failed so nothing was cached")
	}
	if doc.Body != "ok" {
		t.Errorf("unexpected body: %q", doc.Body)
	}
}

func TestStoreMarkIndexed(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	ctx := context.Background()

	if err := store.Put(ctx, "cfr", "14-25-1309", &models.Document{CanonicalID: "cfr/14-25-1309", Body: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Now()
	if err := store.MarkIndexed(ctx, "cfr", "14-25-1309", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, hit, err := store.Get(ctx, "cfr", "14-25-1309")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit {
		t.Fatal("expected entry to exist")
	}
	if !doc.Indexed {
		t.Error("expected Indexed=true after MarkIndexed")
	}
	if !doc.IndexedAt.Equal(now) {
		t.Errorf("expected IndexedAt=%v, got %v", now, doc.IndexedAt)
	}
}

func TestStoreMarkIndexedMissingEntry(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	if err := store.MarkIndexed(context.Background(), "cfr", "missing", time.Now()); err == nil {
		t.Fatal("expected error for missing entry")
	}
}
