package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/regassist/regassist/internal/orchestrator"
)

// SearchAPSTool searches the NRC ADAMS portal by keyword.
type SearchAPSTool struct {
	client APSClient
}

// NewSearchAPSTool builds the tool.
func NewSearchAPSTool(client APSClient) *SearchAPSTool {
	return &SearchAPSTool{client: client}
}

func (t *SearchAPSTool) Name() string { return "search_aps" }

func (t *SearchAPSTool) Description() string {
	return "Searches the NRC ADAMS document repository for documents matching a keyword query. Returns a list of matches to fetch with fetch_aps_document."
}

type searchAPSInput struct {
	Query string `json:"query" jsonschema:"required,description=Keyword search query"`
}

func (t *SearchAPSTool) Schema() json.RawMessage {
	return schemaFor[searchAPSInput]()
}

func (t *SearchAPSTool) Execute(ctx context.Context, tc orchestrator.ToolContext, params json.RawMessage) (*orchestrator.ToolResult, error) {
	var input searchAPSInput
	if err := json.Unmarshal(params, &input); err != nil {
		return invalidParams(err)
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return toolError("query is required"), nil
	}

	results, err := t.client.Search(ctx, query)
	if err != nil {
		return toolError(fmt.Sprintf("ADAMS search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return toolOK("No ADAMS documents matched this query."), nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (accession=%s)\n", i+1, r.Title, r.Accession)
	}
	return toolOK(strings.TrimSpace(b.String())), nil
}
