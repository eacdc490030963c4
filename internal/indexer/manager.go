// Package indexer implements the background indexing pipeline: chunk,
// embed, and upload a document to the search proxy once it has earned
// its way into the vector corpus, with a single-build
// invariant per (kind, id, indexName).
package indexer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/regassist/regassist/pkg/models"
)

// indexJobTimeout bounds one background chunk/embed/upload job; indexing
// has no client waiting on it, so a generous ceiling just prevents a
// stuck upstream call from leaking a goroutine forever.
const indexJobTimeout = 2 * time.Minute

// embedBatchSize caps how many chunk texts are sent to the embedder in
// one call.
const embedBatchSize = 16

// IndexWriter uploads chunks to the search proxy's /index endpoint,
// using a credential distinct from the user-facing search/list/delete
// path.
type IndexWriter interface {
	WriteChunks(ctx context.Context, index string, chunks []*models.Chunk) error
}

// CacheMarker is the subset of the document cache the indexer needs to
// stamp a document as indexed once its chunks have landed.
type CacheMarker interface {
	MarkIndexed(ctx context.Context, kind, id string, indexedAt time.Time) error
}

// Embedder computes fixed-dimensionality embeddings for chunk text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Manager schedules and runs background indexing jobs. It satisfies
// retrieval.Indexer's ScheduleIndex method without importing that
// package.
type Manager struct {
	writer   IndexWriter
	cache    CacheMarker
	embedder Embedder

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewManager builds a Manager.
func NewManager(writer IndexWriter, cache CacheMarker, embedder Embedder) *Manager {
	return &Manager{
		writer:   writer,
		cache:    cache,
		embedder: embedder,
		inFlight: make(map[string]bool),
	}
}

// ScheduleIndex enqueues a background indexing job for doc against
// indexName and returns immediately. A duplicate schedule for the same
// (kind, id, indexName) while a job is already running coalesces into
// the running task rather than starting a second one.
func (m *Manager) ScheduleIndex(doc *models.Document, indexName string) {
	key := jobKey(doc.CanonicalID, indexName)

	m.mu.Lock()
	if m.inFlight[key] {
		m.mu.Unlock()
		return
	}
	m.inFlight[key] = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.inFlight, key)
			m.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), indexJobTimeout)
		defer cancel()
		m.run(ctx, doc, indexName)
	}()
}

func jobKey(canonicalID, indexName string) string {
	return canonicalID + "@" + indexName
}

func (m *Manager) run(ctx context.Context, doc *models.Document, indexName string) {
	texts := chunkText(doc.Body)
	if len(texts) == 0 {
		return
	}

	chunks := make([]*models.Chunk, len(texts))
	now := time.Now()
	for i, text := range texts {
		chunks[i] = &models.Chunk{
			DocumentID:       doc.CanonicalID,
			Title:            doc.Title,
			Body:             text,
			Citation:         doc.Citation,
			Source:           doc.Source,
			OwnerFingerprint: doc.OwnerFingerprint,
			Index:            i,
			UploadedAt:       now,
			PageCount:        doc.PageCount,
			FileHash:         doc.ContentHash,
		}
	}

	if err := m.embedChunks(ctx, chunks); err != nil {
		return
	}
	if err := m.writer.WriteChunks(ctx, indexName, chunks); err != nil {
		return
	}

	kind, id := splitCanonicalID(doc.CanonicalID)
	_ = m.cache.MarkIndexed(ctx, kind, id, now)
}

func (m *Manager) embedChunks(ctx context.Context, chunks []*models.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Body
		}
		vectors, err := m.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		for i, v := range vectors {
			batch[i].Embedding = v
		}
	}
	return nil
}

// splitCanonicalID recovers the cache (kind, id) pair from a document's
// canonical ID, e.g. "cfr/14-25-1309" -> ("cfr", "14-25-1309").
func splitCanonicalID(canonicalID string) (kind, id string) {
	parts := strings.SplitN(canonicalID, "/", 2)
	if len(parts) != 2 {
		return "", canonicalID
	}
	return parts[0], parts[1]
}
