package searchproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/regassist/regassist/pkg/models"
)

func TestClientSearchSendsBearerAndDecodesHits(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req searchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Index != "faa-agent" || req.Query != "engine failure" {
			t.Errorf("unexpected request body: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"hits": []models.SearchHit{{Chunk: &models.Chunk{ID: "c1"}, Score: 0.9}},
		})
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Token: "secret"})
	hits, err := client.Search(context.Background(), "faa-agent", "bob", "engine failure", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer token forwarded, got %q", gotAuth)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != "c1" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestClientWriteChunksUsesRegulatoryToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"written": 1})
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Token: "user-secret", RegulatoryWriteToken: "reg-secret"})
	err := client.WriteChunks(context.Background(), "faa-agent", []*models.Chunk{
		{ID: "c1", DocumentID: "cfr/14-25-1309", Source: models.SourceCFR, Embedding: []float32{0.1, 0.2}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer reg-secret" {
		t.Errorf("expected regulatory-write bearer token, got %q", gotAuth)
	}
}

func TestClientSurfacesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "ownership violation"})
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Token: "secret"})
	err := client.DeleteDocument(context.Background(), "faa-agent", "bob", "doc-1")
	if err == nil {
		t.Fatal("expected error")
	}
	statusErr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T", err)
	}
	if statusErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", statusErr.Code)
	}
}
