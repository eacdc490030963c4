package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/regassist/regassist/internal/orchestrator"
)

// DeleteMyDocumentTool deletes one of the caller's personal documents.
// Ownership is enforced by the search proxy, never by this tool: a
// mismatched fingerprint surfaces as an error here, it is never silently
// dropped.
type DeleteMyDocumentTool struct {
	proxy SearchProxyClient
}

// NewDeleteMyDocumentTool builds the tool.
func NewDeleteMyDocumentTool(proxy SearchProxyClient) *DeleteMyDocumentTool {
	return &DeleteMyDocumentTool{proxy: proxy}
}

func (t *DeleteMyDocumentTool) Name() string { return "delete_my_document" }

func (t *DeleteMyDocumentTool) Description() string {
	return "Deletes one of the caller's own uploaded personal documents and all of its indexed chunks."
}

type deleteMyDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"required,description=Personal document id to delete"`
}

func (t *DeleteMyDocumentTool) Schema() json.RawMessage {
	return schemaFor[deleteMyDocumentInput]()
}

func (t *DeleteMyDocumentTool) Execute(ctx context.Context, tc orchestrator.ToolContext, params json.RawMessage) (*orchestrator.ToolResult, error) {
	var input deleteMyDocumentInput
	if err := json.Unmarshal(params, &input); err != nil {
		return invalidParams(err)
	}
	documentID := strings.TrimSpace(input.DocumentID)
	if documentID == "" {
		return toolError("document_id is required"), nil
	}

	if err := t.proxy.DeleteDocument(ctx, tc.Index, tc.Fingerprint, documentID); err != nil {
		return toolError(fmt.Sprintf("delete failed: %v", err)), nil
	}
	return toolOK(fmt.Sprintf("Document %s deleted.", documentID)), nil
}
