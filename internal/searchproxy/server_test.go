package searchproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	return bytes.NewReader(data)
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

func TestServerSearchRejectsMissingCredential(t *testing.T) {
	srv := NewServer(nil, &fakeEmbedder{}, ServerConfig{Token: "secret"})

	req := httptest.NewRequest(http.MethodPost, "/search", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestServerSearchRejectsMissingFields(t *testing.T) {
	srv := NewServer(nil, &fakeEmbedder{}, ServerConfig{Token: "secret"})

	req := httptest.NewRequest(http.MethodPost, "/search", jsonBody(t, searchRequest{}))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServerListDocumentsRequiresQueryParams(t *testing.T) {
	srv := NewServer(nil, &fakeEmbedder{}, ServerConfig{Token: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServerIndexRejectsUnauthorizedRegulatoryWrite(t *testing.T) {
	srv := NewServer(&Store{dimension: 3}, &fakeEmbedder{}, ServerConfig{
		Token:                "secret",
		RegulatoryWriteToken: "reg-secret",
	})

	body := indexRequest{
		Index: "faa-agent",
		Documents: []indexChunk{
			{ID: "c1", DocumentID: "cfr/14-25-1309", Source: "cfr", Embedding: []float32{0.1, 0.2, 0.3}},
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/index", jsonBody(t, body))
	req.Header.Set("Authorization", "Bearer secret") // user token, not the regulatory one
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unauthorized regulatory write, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(req); got != "abc123" {
		t.Errorf("bearerToken() = %q, want %q", got, "abc123")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := bearerToken(req2); got != "" {
		t.Errorf("bearerToken() with no header = %q, want empty", got)
	}
}
