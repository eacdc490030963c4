package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/regassist/regassist/internal/ratelimit"
	"github.com/regassist/regassist/internal/tools/retrieval"
	"github.com/regassist/regassist/pkg/models"
)

// APSClient fetches and searches NRC ADAMS (Agencywide Documents Access
// and Management System) regulatory documents, satisfying
// retrieval.APSClient.
type APSClient struct {
	client *httpClient
}

// APSConfig configures the ADAMS adapter.
type APSConfig struct {
	BaseURL   string
	APIKey    string
	RateLimit ratelimit.Config
}

// DefaultAPSConfig returns a conservative rate limit; BaseURL/APIKey must
// still be supplied from configuration.
func DefaultAPSConfig() APSConfig {
	return APSConfig{
		RateLimit: ratelimit.Config{RequestsPerSecond: 3, BurstSize: 6, Enabled: true},
	}
}

// NewAPSClient builds an ADAMS adapter from cfg.
func NewAPSClient(cfg APSConfig) *APSClient {
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = DefaultAPSConfig().RateLimit
	}

	var authorize func(ctx context.Context, req *http.Request) error
	if cfg.APIKey != "" {
		authorize = func(ctx context.Context, req *http.Request) error {
			req.Header.Set("X-Api-Key", cfg.APIKey)
			return nil
		}
	}

	return &APSClient{client: newHTTPClient(cfg.BaseURL, cfg.RateLimit, authorize)}
}

type apsDocumentResponse struct {
	Accession string `json:"accession"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// FetchDocument retrieves one ADAMS document by accession number.
func (c *APSClient) FetchDocument(ctx context.Context, accession string) (*models.Document, error) {
	path := "/documents/" + url.PathEscape(accession)

	var resp apsDocumentResponse
	if err := c.client.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(resp.Body))
	return &models.Document{
		CanonicalID: fmt.Sprintf("aps/%s", accession),
		Title:       resp.Title,
		Body:        resp.Body,
		Source:      models.SourceAPS,
		Citation:    resp.Title,
		ContentHash: hex.EncodeToString(sum[:]),
		FetchedAt:   time.Now(),
	}, nil
}

type apsSearchResponse struct {
	Results []struct {
		Accession string `json:"accession"`
		Title     string `json:"title"`
	} `json:"results"`
}

// Search runs a free-text query against the ADAMS search endpoint.
func (c *APSClient) Search(ctx context.Context, query string) ([]retrieval.APSResult, error) {
	path := "/search?q=" + url.QueryEscape(query)

	var resp apsSearchResponse
	if err := c.client.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	hits := make([]retrieval.APSResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, retrieval.APSResult{Accession: r.Accession, Title: r.Title})
	}
	return hits, nil
}
