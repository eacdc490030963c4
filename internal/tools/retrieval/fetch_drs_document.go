package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/regassist/regassist/internal/orchestrator"
	"github.com/regassist/regassist/pkg/models"
)

const drsMaxBodyChars = 15000

// FetchDRSDocumentTool returns the complete body of an FAA Dynamic
// Regulatory System document, cache-backed and truncated at ~15k chars.
type FetchDRSDocumentTool struct {
	cache   CacheStore
	indexer Indexer
	client  DRSClient
}

// NewFetchDRSDocumentTool builds the tool.
func NewFetchDRSDocumentTool(cache CacheStore, indexer Indexer, client DRSClient) *FetchDRSDocumentTool {
	return &FetchDRSDocumentTool{cache: cache, indexer: indexer, client: client}
}

func (t *FetchDRSDocumentTool) Name() string { return "fetch_drs_document" }

func (t *FetchDRSDocumentTool) Description() string {
	return "Fetches the complete text of an FAA regulatory-portal (DRS) document by its GUID and document type."
}

type fetchDRSDocumentInput struct {
	DocumentGUID string `json:"document_guid" jsonschema:"required,description=DRS document GUID"`
	DocType      string `json:"doc_type" jsonschema:"required,description=DRS document type, e.g. Order, AC, Notice"`
}

func (t *FetchDRSDocumentTool) Schema() json.RawMessage {
	return schemaFor[fetchDRSDocumentInput]()
}

func (t *FetchDRSDocumentTool) Execute(ctx context.Context, tc orchestrator.ToolContext, params json.RawMessage) (*orchestrator.ToolResult, error) {
	var input fetchDRSDocumentInput
	if err := json.Unmarshal(params, &input); err != nil {
		return invalidParams(err)
	}
	guid := strings.TrimSpace(input.DocumentGUID)
	docType := strings.TrimSpace(input.DocType)
	if guid == "" || docType == "" {
		return toolError("document_guid and doc_type are both required"), nil
	}

	id := docType + "-" + guid

	doc, hit, err := t.cache.GetOrFetch(ctx, string(models.SourceDRS), id, func(ctx context.Context) (*models.Document, error) {
		fetched, err := t.client.FetchDocument(ctx, guid, docType)
		if err != nil {
			return nil, err
		}
		fetched.CanonicalID = "drs/" + id
		fetched.Source = models.SourceDRS
		return fetched, nil
	})
	if err != nil {
		return toolError(fmt.Sprintf("fetch_drs_document failed: %v", err)), nil
	}

	if hit {
		doc.HitCount++
		if err := t.cache.Put(ctx, string(models.SourceDRS), id, doc); err != nil {
			return toolError(fmt.Sprintf("cache write failed: %v", err)), nil
		}
		if !doc.Indexed && doc.HitCount >= 1 {
			t.indexer.ScheduleIndex(doc, tc.Index)
		}
	}
	return toolOK(truncate(doc.Body, drsMaxBodyChars, "\n…truncated…")), nil
}
