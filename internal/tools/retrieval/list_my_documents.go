package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/regassist/regassist/internal/orchestrator"
)

// ListMyDocumentsTool lists the caller's personal document uploads in the
// current tenant.
type ListMyDocumentsTool struct {
	proxy SearchProxyClient
}

// NewListMyDocumentsTool builds the tool.
func NewListMyDocumentsTool(proxy SearchProxyClient) *ListMyDocumentsTool {
	return &ListMyDocumentsTool{proxy: proxy}
}

func (t *ListMyDocumentsTool) Name() string { return "list_my_documents" }

func (t *ListMyDocumentsTool) Description() string {
	return "Lists the caller's own uploaded personal documents in this tenant: id, title, page count, and upload time."
}

func (t *ListMyDocumentsTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

func (t *ListMyDocumentsTool) Execute(ctx context.Context, tc orchestrator.ToolContext, params json.RawMessage) (*orchestrator.ToolResult, error) {
	docs, err := t.proxy.ListDocuments(ctx, tc.Index, tc.Fingerprint)
	if err != nil {
		return toolError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if len(docs) == 0 {
		return toolOK("You have not uploaded any documents in this tenant."), nil
	}

	var b strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&b, "%d. %s (id=%s, %d pages, uploaded %s)\n", i+1, d.Title, d.ID, d.PageCount, d.UploadedAt.Format("2006-01-02"))
	}
	return toolOK(strings.TrimSpace(b.String())), nil
}
