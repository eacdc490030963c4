package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/regassist/regassist/internal/orchestrator"
)

const personalSearchMaxChars = 10000

var paragraphSplitRE = regexp.MustCompile(`\n\s*\n`)

// SearchPersonalDocumentTool performs a semantic search within one
// personal document's full text, reading the conversation's memo
// (fetching cold if necessary), and returning the best-matching
// paragraphs with one paragraph of neighbor context on each side.
type SearchPersonalDocumentTool struct {
	fetch    *FetchPersonalDocumentTool
	memo     *MemoStore
	embedder Embedder
}

// NewSearchPersonalDocumentTool builds the tool. fetch and memo must be
// the same instances used by the agent's FetchPersonalDocumentTool, so a
// cold search warms the same memo a later fetch would reuse.
func NewSearchPersonalDocumentTool(fetch *FetchPersonalDocumentTool, memo *MemoStore, embedder Embedder) *SearchPersonalDocumentTool {
	return &SearchPersonalDocumentTool{fetch: fetch, memo: memo, embedder: embedder}
}

func (t *SearchPersonalDocumentTool) Name() string { return "search_personal_document" }

func (t *SearchPersonalDocumentTool) Description() string {
	return "Semantically searches within one of the caller's personal documents for passages relevant to a query, returning up to 10,000 characters of matching paragraphs with surrounding context."
}

type searchPersonalDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"required,description=Personal document id"`
	Query      string `json:"query" jsonschema:"required,description=Natural-language search query"`
}

func (t *SearchPersonalDocumentTool) Schema() json.RawMessage {
	return schemaFor[searchPersonalDocumentInput]()
}

func (t *SearchPersonalDocumentTool) Execute(ctx context.Context, tc orchestrator.ToolContext, params json.RawMessage) (*orchestrator.ToolResult, error) {
	var input searchPersonalDocumentInput
	if err := json.Unmarshal(params, &input); err != nil {
		return invalidParams(err)
	}
	documentID := strings.TrimSpace(input.DocumentID)
	query := strings.TrimSpace(input.Query)
	if documentID == "" || query == "" {
		return toolError("document_id and query are both required"), nil
	}

	body, err := t.bodyFor(ctx, tc, documentID)
	if err != nil {
		return toolError(err.Error()), nil
	}

	paragraphs := splitParagraphs(body)
	if len(paragraphs) == 0 {
		return toolOK("This document has no searchable text."), nil
	}

	texts := append([]string{query}, paragraphs...)
	vectors, err := t.embedder.Embed(ctx, texts)
	if err != nil {
		return toolError(fmt.Sprintf("embedding failed: %v", err)), nil
	}
	if len(vectors) != len(texts) {
		return toolError("embedding provider returned an unexpected vector count"), nil
	}
	queryVec := vectors[0]
	paragraphVecs := vectors[1:]

	type scored struct {
		idx   int
		score float32
	}
	ranked := make([]scored, len(paragraphVecs))
	for i, v := range paragraphVecs {
		ranked[i] = scored{idx: i, score: cosineSimilarity(queryVec, v)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var b strings.Builder
	seen := make(map[int]bool)
	for _, r := range ranked {
		if b.Len() >= personalSearchMaxChars {
			break
		}
		lo, hi := r.idx-1, r.idx+1
		if lo < 0 {
			lo = 0
		}
		if hi >= len(paragraphs) {
			hi = len(paragraphs) - 1
		}
		for i := lo; i <= hi; i++ {
			if seen[i] {
				continue
			}
			seen[i] = true
			b.WriteString(paragraphs[i])
			b.WriteString("\n\n")
		}
	}

	result := strings.TrimSpace(b.String())
	if len(result) > personalSearchMaxChars {
		result = result[:personalSearchMaxChars] + "\n…truncated…"
	}
	return toolOK(result), nil
}

// bodyFor returns the memoized body for documentID, fetching (and thereby
// warming the memo) if it is not already cached for this conversation.
func (t *SearchPersonalDocumentTool) bodyFor(ctx context.Context, tc orchestrator.ToolContext, documentID string) (string, error) {
	if memo, ok := t.memo.Get(tc.ConversationID, documentID); ok {
		return memo.Body, nil
	}
	params, _ := json.Marshal(fetchPersonalDocumentInput{DocumentID: documentID})
	result, err := t.fetch.Execute(ctx, tc, params)
	if err != nil {
		return "", err
	}
	if result.IsError {
		return "", fmt.Errorf("%s", result.Content)
	}
	if memo, ok := t.memo.Get(tc.ConversationID, documentID); ok {
		return memo.Body, nil
	}
	return result.Content, nil
}

func splitParagraphs(body string) []string {
	raw := paragraphSplitRE.Split(body, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}
