package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/regassist/regassist/internal/orchestrator"
	"github.com/regassist/regassist/pkg/models"
)

const personalDocMaxChars = 50000

// FetchPersonalDocumentTool reassembles and returns a personal document's
// full text from its indexed chunks, and populates the per-conversation
// memo used by SearchPersonalDocumentTool.
type FetchPersonalDocumentTool struct {
	proxy SearchProxyClient
	memo  *MemoStore
}

// NewFetchPersonalDocumentTool builds the tool. memo must be shared with
// the SearchPersonalDocumentTool instance registered for the same agent.
func NewFetchPersonalDocumentTool(proxy SearchProxyClient, memo *MemoStore) *FetchPersonalDocumentTool {
	return &FetchPersonalDocumentTool{proxy: proxy, memo: memo}
}

func (t *FetchPersonalDocumentTool) Name() string { return "fetch_personal_document" }

func (t *FetchPersonalDocumentTool) Description() string {
	return "Reassembles and returns the full text (up to the first 50,000 characters) of one of the caller's own uploaded personal documents."
}

type fetchPersonalDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"required,description=Personal document id"`
}

func (t *FetchPersonalDocumentTool) Schema() json.RawMessage {
	return schemaFor[fetchPersonalDocumentInput]()
}

func (t *FetchPersonalDocumentTool) Execute(ctx context.Context, tc orchestrator.ToolContext, params json.RawMessage) (*orchestrator.ToolResult, error) {
	var input fetchPersonalDocumentInput
	if err := json.Unmarshal(params, &input); err != nil {
		return invalidParams(err)
	}
	documentID := strings.TrimSpace(input.DocumentID)
	if documentID == "" {
		return toolError("document_id is required"), nil
	}

	body, err := t.reassemble(ctx, tc, documentID)
	if err != nil {
		return toolError(err.Error()), nil
	}

	t.memo.Set(tc.ConversationID, &models.PersonalDocumentMemo{
		DocumentID: documentID,
		Body:       body,
		FetchedAt:  time.Now(),
	})

	if len(body) <= personalDocMaxChars {
		return toolOK(body), nil
	}
	return toolOK(body[:personalDocMaxChars] + "\n…truncated… ask me to search the remainder for a specific phrase."), nil
}

// reassemble loads documentID's chunks (ownership already enforced by the
// search proxy, which rejects a fingerprint mismatch), orders them by
// chunk index, and concatenates their bodies.
func (t *FetchPersonalDocumentTool) reassemble(ctx context.Context, tc orchestrator.ToolContext, documentID string) (string, error) {
	chunks, err := t.proxy.DocumentChunks(ctx, tc.Index, tc.Fingerprint, documentID)
	if err != nil {
		return "", fmt.Errorf("document lookup failed: %w", err)
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("no document found with id %s", documentID)
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })

	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Body)
	}
	return b.String(), nil
}
