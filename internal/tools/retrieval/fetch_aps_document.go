package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/regassist/regassist/internal/orchestrator"
	"github.com/regassist/regassist/pkg/models"
)

// FetchAPSDocumentTool returns the complete body of an NRC ADAMS document
// by accession number, cache-backed.
type FetchAPSDocumentTool struct {
	cache   CacheStore
	indexer Indexer
	client  APSClient
}

// NewFetchAPSDocumentTool builds the tool.
func NewFetchAPSDocumentTool(cache CacheStore, indexer Indexer, client APSClient) *FetchAPSDocumentTool {
	return &FetchAPSDocumentTool{cache: cache, indexer: indexer, client: client}
}

func (t *FetchAPSDocumentTool) Name() string { return "fetch_aps_document" }

func (t *FetchAPSDocumentTool) Description() string {
	return "Fetches the complete text of an NRC ADAMS document by accession number."
}

type fetchAPSDocumentInput struct {
	Accession string `json:"accession" jsonschema:"required,description=ADAMS accession number"`
}

func (t *FetchAPSDocumentTool) Schema() json.RawMessage {
	return schemaFor[fetchAPSDocumentInput]()
}

func (t *FetchAPSDocumentTool) Execute(ctx context.Context, tc orchestrator.ToolContext, params json.RawMessage) (*orchestrator.ToolResult, error) {
	var input fetchAPSDocumentInput
	if err := json.Unmarshal(params, &input); err != nil {
		return invalidParams(err)
	}
	accession := strings.TrimSpace(input.Accession)
	if accession == "" {
		return toolError("accession is required"), nil
	}

	doc, hit, err := t.cache.GetOrFetch(ctx, string(models.SourceAPS), accession, func(ctx context.Context) (*models.Document, error) {
		fetched, err := t.client.FetchDocument(ctx, accession)
		if err != nil {
			return nil, err
		}
		fetched.CanonicalID = "aps/" + accession
		fetched.Source = models.SourceAPS
		return fetched, nil
	})
	if err != nil {
		return toolError(fmt.Sprintf("fetch_aps_document failed: %v", err)), nil
	}

	if hit {
		doc.HitCount++
		if err := t.cache.Put(ctx, string(models.SourceAPS), accession, doc); err != nil {
			return toolError(fmt.Sprintf("cache write failed: %v", err)), nil
		}
		if !doc.Indexed && doc.HitCount >= 1 {
			t.indexer.ScheduleIndex(doc, tc.Index)
		}
	}
	return toolOK(doc.Body), nil
}
