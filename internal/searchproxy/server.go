package searchproxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/regassist/regassist/pkg/models"
)

// Embedder computes the query vector for a raw search string. The proxy
// embeds queries itself so callers never need index-provider credentials,
// only the proxy's own bearer secret.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ServerConfig names the two credentials the proxy accepts: Token
// authorizes search/list/delete and personal-document writes; write
// requests for regulatory chunks (owner_fingerprint == "") additionally
// require RegulatoryWriteToken, a credential never exposed to user-facing
// paths.
type ServerConfig struct {
	Token                string
	RegulatoryWriteToken string
}

// Server is the search proxy's HTTP surface. It is the sole process with
// a path to the chunk store; nothing else in this repo imports *Store
// directly.
type Server struct {
	store    *Store
	embedder Embedder
	cfg      ServerConfig
	mux      *http.ServeMux
}

// NewServer builds a Server and registers its routes.
func NewServer(store *Store, embedder Embedder, cfg ServerConfig) *Server {
	s := &Server{store: store, embedder: embedder, cfg: cfg, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /search", s.handleSearch)
	s.mux.HandleFunc("POST /index", s.handleIndex)
	s.mux.HandleFunc("GET /documents", s.handleListDocuments)
	s.mux.HandleFunc("GET /documents/{id}", s.handleGetDocumentChunks)
	s.mux.HandleFunc("DELETE /documents/{id}", s.handleDeleteDocument)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimPrefix(auth, prefix)
}

func (s *Server) authorized(r *http.Request) bool {
	return s.cfg.Token != "" && bearerToken(r) == s.cfg.Token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type searchRequest struct {
	Query       string `json:"query"`
	Index       string `json:"index"`
	Fingerprint string `json:"fingerprint"`
	Top         int    `json:"top"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusForbidden, "invalid credential")
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Index == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "index and query are required")
		return
	}

	vectors, err := s.embedder.Embed(r.Context(), []string{req.Query})
	if err != nil {
		slog.Error("search: embed query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "embedding failed")
		return
	}

	hits, err := s.store.Search(r.Context(), req.Index, req.Fingerprint, vectors[0], req.Top)
	if err != nil {
		slog.Error("search: store search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

type indexRequest struct {
	Index       string       `json:"index"`
	Fingerprint string       `json:"fingerprint"`
	Documents   []indexChunk `json:"documents"`
}

// indexChunk is the wire shape of one chunk in an /index request. The
// field is named "documents" in the request body even though each entry
// is one chunk of a (possibly multi-chunk) document.
type indexChunk struct {
	ID               string    `json:"id"`
	DocumentID       string    `json:"document_id"`
	Title            string    `json:"title"`
	Body             string    `json:"body"`
	Citation         string    `json:"citation"`
	Source           string    `json:"source"`
	OwnerFingerprint string    `json:"owner_fingerprint,omitempty"`
	Index            int       `json:"index"`
	PageCount        int       `json:"page_count"`
	FileHash         string    `json:"file_hash"`
	Embedding        []float32 `json:"embedding"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusForbidden, "invalid credential")
		return
	}
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Index == "" || len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "index and documents are required")
		return
	}

	regulatoryWrite := s.cfg.RegulatoryWriteToken != "" && bearerToken(r) == s.cfg.RegulatoryWriteToken

	chunks := toModelChunks(req.Documents)
	if err := s.store.WriteChunks(r.Context(), req.Index, req.Fingerprint, regulatoryWrite, chunks); err != nil {
		if errors.Is(err, ErrForbidden) {
			writeError(w, http.StatusForbidden, "ownership violation")
			return
		}
		slog.Error("index: write chunks failed", "error", err)
		writeError(w, http.StatusInternalServerError, "write failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"written": len(chunks)})
}

func toModelChunks(docs []indexChunk) []*models.Chunk {
	out := make([]*models.Chunk, len(docs))
	for i, d := range docs {
		out[i] = &models.Chunk{
			ID:               d.ID,
			DocumentID:       d.DocumentID,
			Title:            d.Title,
			Body:             d.Body,
			Citation:         d.Citation,
			Source:           models.SourceKind(d.Source),
			OwnerFingerprint: d.OwnerFingerprint,
			Index:            d.Index,
			PageCount:        d.PageCount,
			FileHash:         d.FileHash,
			Embedding:        d.Embedding,
		}
	}
	return out
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusForbidden, "invalid credential")
		return
	}
	index := r.URL.Query().Get("index")
	fingerprint := r.URL.Query().Get("fingerprint")
	if index == "" || fingerprint == "" {
		writeError(w, http.StatusBadRequest, "index and fingerprint are required")
		return
	}
	docs, err := s.store.ListDocuments(r.Context(), index, fingerprint)
	if err != nil {
		slog.Error("list documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocumentChunks(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusForbidden, "invalid credential")
		return
	}
	id := r.PathValue("id")
	index := r.URL.Query().Get("index")
	fingerprint := r.URL.Query().Get("fingerprint")
	if id == "" || index == "" || fingerprint == "" {
		writeError(w, http.StatusBadRequest, "id, index, and fingerprint are required")
		return
	}
	chunks, err := s.store.DocumentChunks(r.Context(), index, fingerprint, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		slog.Error("get document chunks failed", "error", err)
		writeError(w, http.StatusInternalServerError, "fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusForbidden, "invalid credential")
		return
	}
	id := r.PathValue("id")
	index := r.URL.Query().Get("index")
	fingerprint := r.URL.Query().Get("fingerprint")
	if id == "" || index == "" || fingerprint == "" {
		writeError(w, http.StatusBadRequest, "id, index, and fingerprint are required")
		return
	}

	// Ownership check first: a fingerprint that never owned this document
	// gets 404, not a silent no-op delete of someone else's chunks.
	if _, err := s.store.DocumentChunks(r.Context(), index, fingerprint, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		slog.Error("delete: ownership check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}

	if err := s.store.DeleteDocument(r.Context(), index, fingerprint, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		slog.Error("delete document failed", "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
