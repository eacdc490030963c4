package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regassist/regassist/internal/orchestrator"
	"github.com/regassist/regassist/pkg/models"
)

// fakeCache is an in-memory CacheStore for tests.
type fakeCache struct {
	docs map[string]*models.Document
}

func newFakeCache() *fakeCache { return &fakeCache{docs: make(map[string]*models.Document)} }

func (c *fakeCache) Get(ctx context.Context, kind, id string) (*models.Document, bool, error) {
	doc, ok := c.docs[kind+"/"+id]
	return doc, ok, nil
}

func (c *fakeCache) Put(ctx context.Context, kind, id string, doc *models.Document) error {
	c.docs[kind+"/"+id] = doc
	return nil
}

func (c *fakeCache) GetOrFetch(ctx context.Context, kind, id string, fetch func(ctx context.Context) (*models.Document, error)) (*models.Document, bool, error) {
	if doc, ok := c.docs[kind+"/"+id]; ok {
		return doc, true, nil
	}
	doc, err := fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	doc.HitCount = 0
	doc.Indexed = false
	c.docs[kind+"/"+id] = doc
	return doc, false, nil
}

func (c *fakeCache) MarkIndexed(ctx context.Context, kind, id string, indexedAt time.Time) error {
	doc, ok := c.docs[kind+"/"+id]
	if !ok {
		return errors.New("not found")
	}
	doc.Indexed = true
	doc.IndexedAt = indexedAt
	return nil
}

// fakeIndexer records ScheduleIndex calls.
type fakeIndexer struct {
	calls []string
}

func (i *fakeIndexer) ScheduleIndex(doc *models.Document, indexName string) {
	i.calls = append(i.calls, doc.CanonicalID+"@"+indexName)
}

// fakeCFRClient returns a canned document or error.
type fakeCFRClient struct {
	doc    *models.Document
	err    error
	fetchN int
}

func (c *fakeCFRClient) FetchSection(ctx context.Context, title, part, section, date string) (*models.Document, error) {
	c.fetchN++
	if c.err != nil {
		return nil, c.err
	}
	return c.doc, nil
}

// fakeProxy implements SearchProxyClient for tests.
type fakeProxy struct {
	hits      []models.SearchHit
	searchErr error
	docs      []DocumentSummary
	chunks    map[string][]models.Chunk
	deleteErr error
	deletedID string
}

func (p *fakeProxy) Search(ctx context.Context, index, fingerprint, query string, top int) ([]models.SearchHit, error) {
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	return p.hits, nil
}

func (p *fakeProxy) ListDocuments(ctx context.Context, index, fingerprint string) ([]DocumentSummary, error) {
	return p.docs, nil
}

func (p *fakeProxy) DeleteDocument(ctx context.Context, index, fingerprint, documentID string) error {
	p.deletedID = documentID
	return p.deleteErr
}

func (p *fakeProxy) DocumentChunks(ctx context.Context, index, fingerprint, documentID string) ([]models.Chunk, error) {
	return p.chunks[documentID], nil
}

// fakeEmbedder returns a fixed vector per text from its lookup table
// ({0, 0, 1} for unknown texts) so ranking is testable.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{0, 0, 1}
	}
	return out, nil
}

func TestFetchCFRSectionCacheMiss(t *testing.T) {
	cache := newFakeCache()
	indexer := &fakeIndexer{}
	client := &fakeCFRClient{doc: &models.Document{Title: "14 CFR 25.1309", Body: "system design requirements"}}
	tool := NewFetchCFRSectionTool(cache, indexer, client)
	tc := orchestrator.ToolContext{Index: "faa-agent"}

	params, _ := json.Marshal(fetchCFRSectionInput{Title: 14, Part: 25, Section: "1309"})
	result, err := tool.Execute(context.Background(), tc, params)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, "system design requirements")
	assert.Equal(t, 1, client.fetchN)

	doc, ok, _ := cache.Get(context.Background(), "cfr", "14-25-1309")
	require.True(t, ok)
	assert.Equal(t, 0, doc.HitCount)
	assert.False(t, doc.Indexed)
	assert.Empty(t, indexer.calls)
}

func TestFetchCFRSectionSecondHitSchedulesIndex(t *testing.T) {
	cache := newFakeCache()
	indexer := &fakeIndexer{}
	client := &fakeCFRClient{doc: &models.Document{Title: "14 CFR 25.1309", Body: "body"}}
	tool := NewFetchCFRSectionTool(cache, indexer, client)
	tc := orchestrator.ToolContext{Index: "faa-agent"}

	params, _ := json.Marshal(fetchCFRSectionInput{Title: 14, Part: 25, Section: "1309"})
	ctx := context.Background()

	_, err := tool.Execute(ctx, tc, params) // miss, hit_count=0
	require.NoError(t, err)
	_, err = tool.Execute(ctx, tc, params) // hit, hit_count=1 -> schedules index
	require.NoError(t, err)

	assert.Equal(t, 1, client.fetchN)
	require.Len(t, indexer.calls, 1)
	assert.Contains(t, indexer.calls[0], "faa-agent")
}

func TestFetchCFRSectionMissingFields(t *testing.T) {
	tool := NewFetchCFRSectionTool(newFakeCache(), &fakeIndexer{}, &fakeCFRClient{})
	params, _ := json.Marshal(fetchCFRSectionInput{Title: 14})
	result, err := tool.Execute(context.Background(), orchestrator.ToolContext{}, params)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSearchIndexedContentRequiresQuery(t *testing.T) {
	tool := NewSearchIndexedContentTool(&fakeProxy{})
	params, _ := json.Marshal(searchIndexedContentInput{Query: "  "})
	result, err := tool.Execute(context.Background(), orchestrator.ToolContext{}, params)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSearchIndexedContentReturnsHits(t *testing.T) {
	proxy := &fakeProxy{hits: []models.SearchHit{
		{Chunk: &models.Chunk{Title: "25.1309", Citation: "14 CFR 25.1309", Body: "equipment must be designed"}, Score: 0.91},
	}}
	tool := NewSearchIndexedContentTool(proxy)
	tc := orchestrator.ToolContext{Index: "faa-agent", Fingerprint: "fp-1"}

	params, _ := json.Marshal(searchIndexedContentInput{Query: "equipment design"})
	result, err := tool.Execute(context.Background(), tc, params)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, "25.1309")
	assert.Contains(t, result.Content, "equipment must be designed")
}

func TestDeleteMyDocumentEnforcesNoLocalOwnershipLogic(t *testing.T) {
	proxy := &fakeProxy{deleteErr: errors.New("ownership violation: fingerprint mismatch")}
	tool := NewDeleteMyDocumentTool(proxy)
	tc := orchestrator.ToolContext{Index: "faa-agent", Fingerprint: "fp-2"}

	params, _ := json.Marshal(deleteMyDocumentInput{DocumentID: "doc-1"})
	result, err := tool.Execute(context.Background(), tc, params)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "ownership violation")
	assert.Equal(t, "doc-1", proxy.deletedID)
}

func TestFetchPersonalDocumentReassemblesInOrder(t *testing.T) {
	proxy := &fakeProxy{chunks: map[string][]models.Chunk{
		"doc-1": {
			{Index: 1, Body: "second "},
			{Index: 0, Body: "first "},
			{Index: 2, Body: "third"},
		},
	}}
	memo := NewMemoStore()
	tool := NewFetchPersonalDocumentTool(proxy, memo)
	tc := orchestrator.ToolContext{Index: "faa-agent", Fingerprint: "fp-1", ConversationID: "conv-1"}

	params, _ := json.Marshal(fetchPersonalDocumentInput{DocumentID: "doc-1"})
	result, err := tool.Execute(context.Background(), tc, params)
	require.NoError(t, err)
	assert.Equal(t, "first second third", result.Content)

	cached, ok := memo.Get("conv-1", "doc-1")
	require.True(t, ok)
	assert.Equal(t, "first second third", cached.Body)
}

func TestFetchPersonalDocumentNotFound(t *testing.T) {
	proxy := &fakeProxy{chunks: map[string][]models.Chunk{}}
	tool := NewFetchPersonalDocumentTool(proxy, NewMemoStore())
	tc := orchestrator.ToolContext{Fingerprint: "fp-1"}

	params, _ := json.Marshal(fetchPersonalDocumentInput{DocumentID: "missing"})
	result, err := tool.Execute(context.Background(), tc, params)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSearchPersonalDocumentWarmsMemoOnColdSearch(t *testing.T) {
	proxy := &fakeProxy{chunks: map[string][]models.Chunk{
		"doc-1": {{Index: 0, Body: "Alpha paragraph about turbines.\n\nBeta paragraph about fuselage.\n\nGamma paragraph about avionics."}},
	}}
	memo := NewMemoStore()
	fetch := NewFetchPersonalDocumentTool(proxy, memo)
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"avionics failure modes":          {1, 0, 0},
		"Gamma paragraph about avionics.": {1, 0, 0},
		"Alpha paragraph about turbines.": {0, 1, 0},
		"Beta paragraph about fuselage.":  {0, 0.5, 0.5},
	}}
	search := NewSearchPersonalDocumentTool(fetch, memo, embedder)
	tc := orchestrator.ToolContext{Index: "faa-agent", Fingerprint: "fp-1", ConversationID: "conv-9"}

	params, _ := json.Marshal(searchPersonalDocumentInput{DocumentID: "doc-1", Query: "avionics failure modes"})
	result, err := search.Execute(context.Background(), tc, params)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, "Gamma paragraph about avionics.")

	_, ok := memo.Get("conv-9", "doc-1")
	assert.True(t, ok)
}

func TestMemoStoreEvictConversation(t *testing.T) {
	memo := NewMemoStore()
	memo.Set("conv-a", &models.PersonalDocumentMemo{DocumentID: "d1", Body: "x"})
	memo.Set("conv-b", &models.PersonalDocumentMemo{DocumentID: "d1", Body: "y"})

	memo.EvictConversation("conv-a")

	_, ok := memo.Get("conv-a", "d1")
	assert.False(t, ok)
	_, ok = memo.Get("conv-b", "d1")
	assert.True(t, ok)
}
