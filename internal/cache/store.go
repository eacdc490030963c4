// Package cache implements the write-through document cache: a
// content-addressed store of previously fetched regulatory and personal
// documents, keyed by (kind, id), backed by a pluggable Backend.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/regassist/regassist/pkg/models"
)

// Backend persists the raw bytes of a cache entry. Store layers
// marshaling, hit-counting, and fetch coalescing on top of it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte) error
}

// envelope is the on-disk/on-wire shape of one cached document,
// independent of the Document struct's own JSON tags so storage format
// can evolve separately from the in-memory model.
type envelope struct {
	CanonicalID      string     `json:"doc_id"`
	Title            string     `json:"title"`
	Body             string     `json:"content"`
	Source           string     `json:"doc_type"`
	Citation         string     `json:"citation"`
	OwnerFingerprint string     `json:"owner_fingerprint,omitempty"`
	PageCount        int        `json:"page_count"`
	ContentHash      string     `json:"content_hash"`
	CachedAt         time.Time  `json:"cached_at"`
	HitCount         int        `json:"hit_count"`
	Indexed          bool       `json:"indexed"`
	IndexedAt        *time.Time `json:"indexed_at,omitempty"`
}

// Store is the retrieval.CacheStore implementation shared by every fetch
// tool. A single Store instance must be shared across a process — its
// singleflight group only coalesces concurrent callers within the same
// instance.
type Store struct {
	backend Backend
	group   singleflight.Group
}

// NewStore wraps backend with hit-counting, marking, and per-key fetch
// coalescing.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

func cacheKey(kind, id string) string {
	return kind + "/" + id
}

func toEnvelope(doc *models.Document) *envelope {
	env := &envelope{
		CanonicalID:      doc.CanonicalID,
		Title:            doc.Title,
		Body:             doc.Body,
		Source:           string(doc.Source),
		Citation:         doc.Citation,
		OwnerFingerprint: doc.OwnerFingerprint,
		PageCount:        doc.PageCount,
		ContentHash:      doc.ContentHash,
		CachedAt:         doc.FetchedAt,
		HitCount:         doc.HitCount,
		Indexed:          doc.Indexed,
	}
	if doc.Indexed && !doc.IndexedAt.IsZero() {
		at := doc.IndexedAt
		env.IndexedAt = &at
	}
	return env
}

func fromEnvelope(env *envelope) *models.Document {
	doc := &models.Document{
		CanonicalID:      env.CanonicalID,
		Title:            env.Title,
		Body:             env.Body,
		Source:           models.SourceKind(env.Source),
		Citation:         env.Citation,
		OwnerFingerprint: env.OwnerFingerprint,
		PageCount:        env.PageCount,
		ContentHash:      env.ContentHash,
		FetchedAt:        env.CachedAt,
		HitCount:         env.HitCount,
		Indexed:          env.Indexed,
	}
	if env.IndexedAt != nil {
		doc.IndexedAt = *env.IndexedAt
	}
	return doc
}

func (s *Store) getRaw(ctx context.Context, key string) (*models.Document, bool, error) {
	data, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache backend get: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("cache entry decode: %w", err)
	}
	return fromEnvelope(&env), true, nil
}

func (s *Store) putRaw(ctx context.Context, key string, doc *models.Document) error {
	data, err := json.Marshal(toEnvelope(doc))
	if err != nil {
		return fmt.Errorf("cache entry encode: %w", err)
	}
	if err := s.backend.Put(ctx, key, data); err != nil {
		return fmt.Errorf("cache backend put: %w", err)
	}
	return nil
}

// Get returns the cached document for (kind, id), if any.
func (s *Store) Get(ctx context.Context, kind, id string) (*models.Document, bool, error) {
	return s.getRaw(ctx, cacheKey(kind, id))
}

// Put writes doc to the cache under (kind, id), overwriting any prior
// entry.
func (s *Store) Put(ctx context.Context, kind, id string, doc *models.Document) error {
	return s.putRaw(ctx, cacheKey(kind, id), doc)
}

// MarkIndexed stamps a document as sent through the indexer, so the
// second-hit trigger doesn't schedule it again.
func (s *Store) MarkIndexed(ctx context.Context, kind, id string, indexedAt time.Time) error {
	key := cacheKey(kind, id)
	doc, ok, err := s.getRaw(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cache: no entry for %s", key)
	}
	doc.Indexed = true
	doc.IndexedAt = indexedAt
	return s.putRaw(ctx, key, doc)
}

// GetOrFetch returns the cached document for (kind, id). On a miss it
// calls fetch, but only once per key even when many goroutines race on
// the same miss: callers that arrive while a fetch is in
// flight wait for it rather than issuing their own upstream call. The
// freshly fetched document is cached with HitCount reset to 0 and
// Indexed false before being returned.
func (s *Store) GetOrFetch(ctx context.Context, kind, id string, fetch func(ctx context.Context) (*models.Document, error)) (*models.Document, bool, error) {
	key := cacheKey(kind, id)

	if doc, ok, err := s.getRaw(ctx, key); err != nil {
		return nil, false, err
	} else if ok {
		return doc, true, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Re-check: another goroutine may have populated the entry
		// between our first read and acquiring the singleflight slot.
		if doc, ok, err := s.getRaw(ctx, key); err != nil {
			return nil, err
		} else if ok {
			return doc, nil
		}

		doc, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		doc.HitCount = 0
		doc.Indexed = false
		doc.FetchedAt = time.Now()
		if err := s.putRaw(ctx, key, doc); err != nil {
			return nil, err
		}
		return doc, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*models.Document), false, nil
}
