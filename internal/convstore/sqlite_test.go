package convstore

import (
	"context"
	"testing"

	"github.com/regassist/regassist/pkg/models"
)

func TestSQLiteStoreAppendTurnAssignsGapFreeSequence(t *testing.T) {
	store, err := NewSQLiteStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for i, text := range []string{"first", "second", "third"} {
		turn := &models.Turn{ConversationID: "conv-1", Role: models.RoleUser, Text: text}
		if err := store.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("append turn %d: %v", i, err)
		}
		if turn.Sequence != int64(i) {
			t.Errorf("turn %d: expected sequence %d, got %d", i, i, turn.Sequence)
		}
	}
}

func TestSQLiteStoreHistoryIsolatesConversations(t *testing.T) {
	store, err := NewSQLiteStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.AppendTurn(ctx, &models.Turn{ConversationID: "conv-a", Role: models.RoleUser, Text: "a1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendTurn(ctx, &models.Turn{ConversationID: "conv-b", Role: models.RoleUser, Text: "b1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendTurn(ctx, &models.Turn{ConversationID: "conv-a", Role: models.RoleAssistant, Text: "a2"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := store.History(ctx, "conv-a")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns for conv-a, got %d", len(turns))
	}
	if turns[0].Sequence != 0 || turns[1].Sequence != 1 {
		t.Errorf("expected ascending sequence, got %d then %d", turns[0].Sequence, turns[1].Sequence)
	}
	if turns[0].Text != "a1" || turns[1].Text != "a2" {
		t.Errorf("unexpected turn order: %q then %q", turns[0].Text, turns[1].Text)
	}

	otherTurns, err := store.History(ctx, "conv-b")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(otherTurns) != 1 || otherTurns[0].Text != "b1" {
		t.Errorf("conv-b history leaked or missing: %+v", otherTurns)
	}
}

func TestSQLiteStoreAppendTurnRoundTripsToolCalls(t *testing.T) {
	store, err := NewSQLiteStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	turn := &models.Turn{
		ConversationID: "conv-1",
		Role:           models.RoleAssistant,
		ToolCalls:      []models.ToolCall{{ID: "call-1", Name: "search", Input: []byte(`{"query":"42 CFR"}`)}},
		ToolResults:    []models.ToolResult{{ToolCallID: "call-1", Content: "three hits"}},
	}
	if err := store.AppendTurn(ctx, turn); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := store.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if len(turns[0].ToolCalls) != 1 || turns[0].ToolCalls[0].Name != "search" {
		t.Errorf("tool calls did not round-trip: %+v", turns[0].ToolCalls)
	}
	if len(turns[0].ToolResults) != 1 || turns[0].ToolResults[0].Content != "three hits" {
		t.Errorf("tool results did not round-trip: %+v", turns[0].ToolResults)
	}
}
