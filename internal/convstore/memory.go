package convstore

import (
	"context"
	"sync"
	"time"

	"github.com/regassist/regassist/pkg/models"
)

// MemoryStore is an in-process ConversationStore, used by tests and by
// the single-node default deployment when no database is configured.
type MemoryStore struct {
	mu    sync.Mutex
	turns map[string][]*models.Turn
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]*models.Turn)}
}

// AppendTurn assigns the next gap-free sequence number for
// turn.ConversationID under a single mutex, then appends.
func (s *MemoryStore) AppendTurn(ctx context.Context, turn *models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	existing := s.turns[turn.ConversationID]
	turn.Sequence = int64(len(existing))

	cp := *turn
	s.turns[turn.ConversationID] = append(existing, &cp)
	return nil
}

// History returns a copy of every turn recorded for conversationID, in
// ascending sequence order.
func (s *MemoryStore) History(ctx context.Context, conversationID string) ([]*models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.turns[conversationID]
	out := make([]*models.Turn, len(existing))
	for i, t := range existing {
		cp := *t
		out[i] = &cp
	}
	return out, nil
}
