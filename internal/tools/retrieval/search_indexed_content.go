package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/regassist/regassist/internal/orchestrator"
)

// SearchIndexedContentTool performs a semantic search over the tenant's
// vector-indexed chunks via the search proxy, which is the only component
// that ever sees an index credential.
type SearchIndexedContentTool struct {
	proxy SearchProxyClient
}

// NewSearchIndexedContentTool builds the tool. proxy must not be nil.
func NewSearchIndexedContentTool(proxy SearchProxyClient) *SearchIndexedContentTool {
	return &SearchIndexedContentTool{proxy: proxy}
}

func (t *SearchIndexedContentTool) Name() string { return "search_indexed_content" }

func (t *SearchIndexedContentTool) Description() string {
	return "Semantic search over this tenant's indexed regulatory and personal documents. Returns ranked excerpts with citations."
}

type searchIndexedContentInput struct {
	Query string `json:"query" jsonschema:"required,description=Natural-language search query"`
	Top   int    `json:"top,omitempty" jsonschema:"description=Maximum number of results (default 5, max 20)"`
}

func (t *SearchIndexedContentTool) Schema() json.RawMessage {
	return schemaFor[searchIndexedContentInput]()
}

func (t *SearchIndexedContentTool) Execute(ctx context.Context, tc orchestrator.ToolContext, params json.RawMessage) (*orchestrator.ToolResult, error) {
	var input searchIndexedContentInput
	if err := json.Unmarshal(params, &input); err != nil {
		return invalidParams(err)
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return toolError("query is required"), nil
	}
	top := input.Top
	if top <= 0 {
		top = 5
	}
	if top > 20 {
		top = 20
	}

	hits, err := t.proxy.Search(ctx, tc.Index, tc.Fingerprint, query, top)
	if err != nil {
		return toolError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(hits) == 0 {
		return toolOK("No indexed content matched this query."), nil
	}

	var b strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. %s (%s) — score %.3f\n%s\n\n", i+1, hit.Chunk.Title, hit.Chunk.Citation, hit.Score, truncate(hit.Chunk.Body, 600, "…truncated…"))
	}
	return toolOK(strings.TrimSpace(b.String())), nil
}
