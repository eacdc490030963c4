package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/regassist/regassist/internal/orchestrator"
	"github.com/regassist/regassist/pkg/models"
)

// FetchCFRSectionTool returns the complete text of one Code of Federal
// Regulations section, cache-backed.
type FetchCFRSectionTool struct {
	cache   CacheStore
	indexer Indexer
	client  CFRClient
}

// NewFetchCFRSectionTool builds the tool.
func NewFetchCFRSectionTool(cache CacheStore, indexer Indexer, client CFRClient) *FetchCFRSectionTool {
	return &FetchCFRSectionTool{cache: cache, indexer: indexer, client: client}
}

func (t *FetchCFRSectionTool) Name() string { return "fetch_cfr_section" }

func (t *FetchCFRSectionTool) Description() string {
	return "Fetches the complete text of a Code of Federal Regulations section by title, part, and section number."
}

type fetchCFRSectionInput struct {
	Title   int    `json:"title" jsonschema:"required,description=CFR title number, e.g. 14"`
	Part    int    `json:"part" jsonschema:"required,description=CFR part number, e.g. 25"`
	Section string `json:"section" jsonschema:"required,description=CFR section identifier, e.g. 1309"`
	Date    string `json:"date,omitempty" jsonschema:"description=As-of date YYYY-MM-DD; omit for the current version"`
}

func (t *FetchCFRSectionTool) Schema() json.RawMessage {
	return schemaFor[fetchCFRSectionInput]()
}

func canonicalCFRID(title, part int, section string) string {
	return fmt.Sprintf("%d-%d-%s", title, part, section)
}

func (t *FetchCFRSectionTool) Execute(ctx context.Context, tc orchestrator.ToolContext, params json.RawMessage) (*orchestrator.ToolResult, error) {
	var input fetchCFRSectionInput
	if err := json.Unmarshal(params, &input); err != nil {
		return invalidParams(err)
	}
	if input.Title == 0 || input.Part == 0 || strings.TrimSpace(input.Section) == "" {
		return toolError("title, part, and section are all required"), nil
	}

	id := canonicalCFRID(input.Title, input.Part, input.Section)

	doc, hit, err := t.cache.GetOrFetch(ctx, string(models.SourceCFR), id, func(ctx context.Context) (*models.Document, error) {
		fetched, err := t.client.FetchSection(ctx, fmt.Sprintf("%d", input.Title), fmt.Sprintf("%d", input.Part), input.Section, input.Date)
		if err != nil {
			return nil, err
		}
		fetched.CanonicalID = "cfr/" + id
		fetched.Source = models.SourceCFR
		return fetched, nil
	})
	if err != nil {
		return toolError(fmt.Sprintf("fetch_cfr_section failed: %v", err)), nil
	}

	if hit {
		doc.HitCount++
		if err := t.cache.Put(ctx, string(models.SourceCFR), id, doc); err != nil {
			return toolError(fmt.Sprintf("cache write failed: %v", err)), nil
		}
		if !doc.Indexed && doc.HitCount >= 1 {
			t.indexer.ScheduleIndex(doc, tc.Index)
		}
	}
	return toolOK(doc.Body), nil
}
