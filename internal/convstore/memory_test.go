package convstore

import (
	"context"
	"sync"
	"testing"

	"github.com/regassist/regassist/pkg/models"
)

func TestMemoryStoreAppendTurnAssignsGapFreeSequence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i, text := range []string{"one", "two", "three"} {
		turn := &models.Turn{ConversationID: "conv-1", Role: models.RoleUser, Text: text}
		if err := store.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("append turn %d: %v", i, err)
		}
		if turn.Sequence != int64(i) {
			t.Errorf("turn %d: expected sequence %d, got %d", i, i, turn.Sequence)
		}
	}
}

func TestMemoryStoreHistoryReturnsIndependentCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.AppendTurn(ctx, &models.Turn{ConversationID: "conv-1", Role: models.RoleUser, Text: "original"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := store.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	turns[0].Text = "mutated"

	turnsAgain, err := store.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if turnsAgain[0].Text != "original" {
		t.Errorf("History result was not independent of caller mutation: got %q", turnsAgain[0].Text)
	}
}

func TestMemoryStoreAppendTurnSerializesConcurrentAppends(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			turn := &models.Turn{ConversationID: "conv-1", Role: models.RoleUser, Text: "concurrent"}
			if err := store.AppendTurn(ctx, turn); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	turns, err := store.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != n {
		t.Fatalf("expected %d turns, got %d", n, len(turns))
	}
	seen := make(map[int64]bool)
	for _, turn := range turns {
		if seen[turn.Sequence] {
			t.Errorf("duplicate sequence %d", turn.Sequence)
		}
		seen[turn.Sequence] = true
	}
	for i := int64(0); i < n; i++ {
		if !seen[i] {
			t.Errorf("missing sequence %d, gap in sequence assignment", i)
		}
	}
}

func TestMemoryStoreHistoryUnknownConversationIsEmpty(t *testing.T) {
	store := NewMemoryStore()
	turns, err := store.History(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expected no turns, got %d", len(turns))
	}
}
