package searchproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/regassist/regassist/internal/tools/retrieval"
	"github.com/regassist/regassist/pkg/models"
)

// Client is the orchestrator-side HTTP client of the search proxy. It
// holds the proxy's credentials so nothing upstream of it ever needs
// index-provider access. It satisfies both
// retrieval.SearchProxyClient (the user-facing search/list/delete path)
// and indexer.IndexWriter (the background indexing write path), using
// separate bearer tokens for each.
type Client struct {
	baseURL              string
	token                string
	regulatoryWriteToken string
	httpClient           *http.Client
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL              string
	Token                string
	RegulatoryWriteToken string
	Timeout              time.Duration
}

// NewClient builds a Client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:              cfg.BaseURL,
		token:                cfg.Token,
		regulatoryWriteToken: cfg.RegulatoryWriteToken,
		httpClient:           &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("search proxy request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		msg := errBody.Error
		if msg == "" {
			msg = resp.Status
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError carries the search proxy's HTTP status code, so callers can
// distinguish an ownership violation (403) from a transient failure
// (5xx) without string-matching an error message.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search proxy: %d %s", e.Code, e.Message)
}

// Search implements retrieval.SearchProxyClient.
func (c *Client) Search(ctx context.Context, index, fingerprint, query string, top int) ([]models.SearchHit, error) {
	var resp struct {
		Hits []models.SearchHit `json:"hits"`
	}
	err := c.do(ctx, http.MethodPost, "/search", c.token, searchRequest{
		Query: query, Index: index, Fingerprint: fingerprint, Top: top,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// ListDocuments implements retrieval.SearchProxyClient.
func (c *Client) ListDocuments(ctx context.Context, index, fingerprint string) ([]retrieval.DocumentSummary, error) {
	var resp struct {
		Documents []retrieval.DocumentSummary `json:"documents"`
	}
	path := fmt.Sprintf("/documents?index=%s&fingerprint=%s", urlEscape(index), urlEscape(fingerprint))
	if err := c.do(ctx, http.MethodGet, path, c.token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// DeleteDocument implements retrieval.SearchProxyClient.
func (c *Client) DeleteDocument(ctx context.Context, index, fingerprint, documentID string) error {
	path := fmt.Sprintf("/documents/%s?index=%s&fingerprint=%s", url.PathEscape(documentID), urlEscape(index), urlEscape(fingerprint))
	return c.do(ctx, http.MethodDelete, path, c.token, nil, nil)
}

// DocumentChunks implements retrieval.SearchProxyClient, backing the
// reference-walk tool's full-text reassembly of a personal document —
// supplemented beyond the core fetch/search/index/delete endpoints: a
// GET on the same /documents/{id} path the delete handler already
// validates ownership against, returning its chunks instead of deleting
// them.
func (c *Client) DocumentChunks(ctx context.Context, index, fingerprint, documentID string) ([]models.Chunk, error) {
	var resp struct {
		Chunks []models.Chunk `json:"chunks"`
	}
	path := fmt.Sprintf("/documents/%s?index=%s&fingerprint=%s", url.PathEscape(documentID), urlEscape(index), urlEscape(fingerprint))
	if err := c.do(ctx, http.MethodGet, path, c.token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chunks, nil
}

// WriteChunks implements indexer.IndexWriter, using the regulatory-write
// credential since every chunk the background indexer produces from a
// cache document is either regulatory (owner_fingerprint == "") or a
// personal upload whose fingerprint the caller already validated.
func (c *Client) WriteChunks(ctx context.Context, index string, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]indexChunk, len(chunks))
	fingerprint := chunks[0].OwnerFingerprint
	for i, ch := range chunks {
		docs[i] = indexChunk{
			ID:               ch.ID,
			DocumentID:       ch.DocumentID,
			Title:            ch.Title,
			Body:             ch.Body,
			Citation:         ch.Citation,
			Source:           string(ch.Source),
			OwnerFingerprint: ch.OwnerFingerprint,
			Index:            ch.Index,
			PageCount:        ch.PageCount,
			FileHash:         ch.FileHash,
			Embedding:        ch.Embedding,
		}
	}
	return c.do(ctx, http.MethodPost, "/index", c.regulatoryWriteToken, indexRequest{
		Index: index, Fingerprint: fingerprint, Documents: docs,
	}, nil)
}

func urlEscape(s string) string {
	return url.QueryEscape(s)
}
