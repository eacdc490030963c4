package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/regassist/regassist/internal/orchestrator"
)

// SearchDRSTool searches the FAA Dynamic Regulatory System portal by
// keyword, returning metadata for the model to select a document to fetch.
type SearchDRSTool struct {
	client DRSClient
}

// NewSearchDRSTool builds the tool.
func NewSearchDRSTool(client DRSClient) *SearchDRSTool {
	return &SearchDRSTool{client: client}
}

func (t *SearchDRSTool) Name() string { return "search_drs" }

func (t *SearchDRSTool) Description() string {
	return "Searches the FAA regulatory-portal (DRS) for documents matching a keyword query. Returns a list of matches to fetch with fetch_drs_document."
}

type searchDRSInput struct {
	Query string `json:"query" jsonschema:"required,description=Keyword search query"`
}

func (t *SearchDRSTool) Schema() json.RawMessage {
	return schemaFor[searchDRSInput]()
}

func (t *SearchDRSTool) Execute(ctx context.Context, tc orchestrator.ToolContext, params json.RawMessage) (*orchestrator.ToolResult, error) {
	var input searchDRSInput
	if err := json.Unmarshal(params, &input); err != nil {
		return invalidParams(err)
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return toolError("query is required"), nil
	}

	results, err := t.client.Search(ctx, query)
	if err != nil {
		return toolError(fmt.Sprintf("DRS search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return toolOK("No DRS documents matched this query."), nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%s, guid=%s)\n", i+1, r.Title, r.DocType, r.DocumentGUID)
	}
	return toolOK(strings.TrimSpace(b.String())), nil
}
