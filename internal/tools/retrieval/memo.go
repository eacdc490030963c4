package retrieval

import (
	"sync"

	"github.com/regassist/regassist/pkg/models"
)

// MemoStore holds each conversation's recently fetched personal document
// bodies, scoped per conversation and
// never shared across conversations. There is no expiry timer, and no
// component in this repository calls EvictConversation when a
// conversation ends: entries stay until EvictConversation is called.
type MemoStore struct {
	mu    sync.Mutex
	byKey map[string]*models.PersonalDocumentMemo
}

// NewMemoStore returns an empty memo store.
func NewMemoStore() *MemoStore {
	return &MemoStore{byKey: make(map[string]*models.PersonalDocumentMemo)}
}

func memoKey(conversationID, documentID string) string {
	return conversationID + "/" + models.MemoKey(documentID)
}

// Get returns the cached memo for documentID within conversationID, if any.
func (m *MemoStore) Get(conversationID, documentID string) (*models.PersonalDocumentMemo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	memo, ok := m.byKey[memoKey(conversationID, documentID)]
	return memo, ok
}

// Set stores or replaces the memo for this conversation.
func (m *MemoStore) Set(conversationID string, memo *models.PersonalDocumentMemo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[memoKey(conversationID, memo.DocumentID)] = memo
}

// EvictConversation drops every memo belonging to conversationID. It is
// not called automatically when a conversation ends.
func (m *MemoStore) EvictConversation(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := conversationID + "/"
	for k := range m.byKey {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.byKey, k)
		}
	}
}
