// Package retrieval implements the orchestrator's fixed tool catalog:
// uniform fetch/search access to CFR, DRS, and ADAMS regulatory sources,
// the tenant's indexed corpus, and a user's personal document uploads.
// Every tool is a pure function over (inputs, injected context) ->
// string, matching orchestrator.Tool.
package retrieval

import (
	"context"
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/regassist/regassist/internal/orchestrator"
	"github.com/regassist/regassist/pkg/models"
)

// CacheStore is the write-through document cache consulted
// by every fetch tool before reaching out to an external source.
type CacheStore interface {
	Get(ctx context.Context, kind, id string) (*models.Document, bool, error)
	Put(ctx context.Context, kind, id string, doc *models.Document) error
	MarkIndexed(ctx context.Context, kind, id string, indexedAt time.Time) error

	// GetOrFetch returns the cached document for (kind, id), or — on a
	// miss — calls fetch exactly once even under concurrent callers for
	// the same key, caches the result with HitCount 0 / Indexed false,
	// and returns it. hit reports whether the document was already
	// cached (true) or freshly fetched (false).
	GetOrFetch(ctx context.Context, kind, id string, fetch func(ctx context.Context) (*models.Document, error)) (doc *models.Document, hit bool, err error)
}

// Indexer schedules background chunk/embed/upload work. ScheduleIndex must
// return immediately; the work happens on a worker the caller doesn't
// block on.
type Indexer interface {
	ScheduleIndex(doc *models.Document, indexName string)
}

// DocumentSummary is one entry of a user's personal document listing.
type DocumentSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	PageCount  int       `json:"page_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// SearchProxyClient is the orchestrator-side client of the search proxy,
// the sole holder of vector-index credentials.
type SearchProxyClient interface {
	Search(ctx context.Context, index, fingerprint, query string, top int) ([]models.SearchHit, error)
	ListDocuments(ctx context.Context, index, fingerprint string) ([]DocumentSummary, error)
	DeleteDocument(ctx context.Context, index, fingerprint, documentID string) error
	DocumentChunks(ctx context.Context, index, fingerprint, documentID string) ([]models.Chunk, error)
}

// CFRClient fetches Code of Federal Regulations section text.
type CFRClient interface {
	FetchSection(ctx context.Context, title, part, section, date string) (*models.Document, error)
}

// DRSResult is one hit from an FAA Dynamic Regulatory System search.
type DRSResult struct {
	DocumentGUID string `json:"document_guid"`
	DocType      string `json:"doc_type"`
	Title        string `json:"title"`
}

// DRSClient fetches and searches FAA regulatory-portal documents.
type DRSClient interface {
	FetchDocument(ctx context.Context, documentGUID, docType string) (*models.Document, error)
	Search(ctx context.Context, query string) ([]DRSResult, error)
}

// APSResult is one hit from an ADAMS (NRC) search.
type APSResult struct {
	Accession string `json:"accession"`
	Title     string `json:"title"`
}

// APSClient fetches and searches NRC ADAMS regulatory documents.
type APSClient interface {
	FetchDocument(ctx context.Context, accession string) (*models.Document, error)
	Search(ctx context.Context, query string) ([]APSResult, error)
}

// Embedder computes fixed-dimensionality embeddings for arbitrary text,
// used by SearchPersonalDocumentTool to rank paragraphs within one memo
// without a round trip through the search proxy's index.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// toolError builds an error ToolResult, the uniform shape every tool in
// this package returns instead of a Go error — tool failures are never
// fatal to the turn.
func toolError(msg string) *orchestrator.ToolResult {
	return &orchestrator.ToolResult{Content: "Error: " + msg, IsError: true}
}

func toolOK(content string) *orchestrator.ToolResult {
	return &orchestrator.ToolResult{Content: content}
}

func truncate(s string, n int, marker string) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + marker
}

// schemaFor reflects a typed tool-input struct into the JSON Schema
// advertised to the model, using struct tags for descriptions and
// requiredness.
func schemaFor[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// invalidParams renders a JSON-unmarshal failure as a model-facing error
// rather than a Go error: always surface as a tool_result error, never
// abort the turn.
func invalidParams(err error) (*orchestrator.ToolResult, error) {
	return toolError("invalid parameters: " + err.Error()), nil
}
