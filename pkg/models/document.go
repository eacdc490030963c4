package models

import "time"

// SourceKind identifies where a document came from.
type SourceKind string

const (
	SourceCFR      SourceKind = "cfr"
	SourceDRS      SourceKind = "drs"
	SourceAPS      SourceKind = "aps"
	SourcePersonal SourceKind = "personal"
)

// Document is a regulatory or user-supplied textual artifact, content
// addressed by a canonical, source-prefixed key. Invariant:
// OwnerFingerprint == "" iff Source is regulatory (not SourcePersonal).
type Document struct {
	CanonicalID string     `json:"canonical_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Source      SourceKind `json:"source"`
	Citation    string     `json:"citation"`

	// OwnerFingerprint is empty for regulatory documents, set for personal
	// uploads.
	OwnerFingerprint string `json:"owner_fingerprint,omitempty"`

	PageCount   int       `json:"page_count"`
	ContentHash string    `json:"content_hash"`
	FetchedAt   time.Time `json:"fetched_at"`
	HitCount    int       `json:"hit_count"`
	Indexed     bool      `json:"indexed"`
	IndexedAt   time.Time `json:"indexed_at,omitempty"`
}

// IsRegulatory reports whether this document has no owner, i.e. it is
// shared across agents rather than scoped to one user.
func (d *Document) IsRegulatory() bool {
	return d.OwnerFingerprint == ""
}

// Chunk is a derived, embedded excerpt of a Document stored in the vector
// index. Invariant: Chunk.OwnerFingerprint always equals its parent
// Document's OwnerFingerprint.
type Chunk struct {
	ID               string     `json:"id"`
	DocumentID       string     `json:"document_id"`
	Title            string     `json:"title"`
	Body             string     `json:"body"`
	Citation         string     `json:"citation"`
	Source           SourceKind `json:"source"`
	OwnerFingerprint string     `json:"owner_fingerprint,omitempty"`
	Index            int        `json:"index"`
	UploadedAt       time.Time  `json:"uploaded_at"`
	PageCount        int        `json:"page_count"`
	FileHash         string     `json:"file_hash"`
	Embedding        []float32  `json:"embedding,omitempty"`
}

// EmbeddingDimension is the fixed vector width for every chunk embedding.
const EmbeddingDimension = 1024

// SearchHit is one ranked result from the search proxy.
type SearchHit struct {
	Chunk *Chunk  `json:"chunk"`
	Score float32 `json:"score"`
}

// PersonalDocumentMemo caches the reassembled full text of a recently
// fetched personal document, scoped to one conversation.
type PersonalDocumentMemo struct {
	DocumentID string
	Body       string
	FetchedAt  time.Time
}

// MemoKey returns the per-conversation cache key for a personal document
// memo, e.g. "personal_doc_abc123".
func MemoKey(documentID string) string {
	return "personal_doc_" + documentID
}
