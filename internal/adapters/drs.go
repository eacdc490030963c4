package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/regassist/regassist/internal/ratelimit"
	"github.com/regassist/regassist/internal/tools/retrieval"
	"github.com/regassist/regassist/pkg/models"
)

// DRSClient fetches and searches FAA Dynamic Regulatory System documents,
// satisfying retrieval.DRSClient. Unlike the API-key CFR and ADAMS portals,
// DRS requires an OAuth2 client-credentials bearer token, refreshed
// transparently by oauth2.TokenSource on expiry.
type DRSClient struct {
	client *httpClient
}

// DRSConfig configures the DRS adapter's endpoint and OAuth2 credentials.
type DRSConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	RateLimit    ratelimit.Config
}

// DefaultDRSConfig returns a conservative rate limit; BaseURL/credentials
// must still be supplied from configuration.
func DefaultDRSConfig() DRSConfig {
	return DRSConfig{
		RateLimit: ratelimit.Config{RequestsPerSecond: 3, BurstSize: 6, Enabled: true},
	}
}

// NewDRSClient builds a DRS adapter. The OAuth2 token source is created
// once and shared across requests; golang.org/x/oauth2 handles caching and
// transparent refresh.
func NewDRSClient(cfg DRSConfig) *DRSClient {
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = DefaultDRSConfig().RateLimit
	}

	oauthCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	var tokenSource oauth2.TokenSource
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		tokenSource = oauthCfg.TokenSource(context.Background())
	}

	authorize := func(ctx context.Context, req *http.Request) error {
		if tokenSource == nil {
			return nil
		}
		token, err := tokenSource.Token()
		if err != nil {
			return fmt.Errorf("acquire oauth2 token: %w", err)
		}
		token.SetAuthHeader(req)
		return nil
	}

	return &DRSClient{client: newHTTPClient(cfg.BaseURL, cfg.RateLimit, authorize)}
}

type drsDocumentResponse struct {
	DocumentGUID string `json:"documentGuid"`
	DocType      string `json:"docType"`
	Title        string `json:"title"`
	Body         string `json:"body"`
}

// FetchDocument retrieves one DRS document by GUID and document type.
func (c *DRSClient) FetchDocument(ctx context.Context, documentGUID, docType string) (*models.Document, error) {
	path := fmt.Sprintf("/documents/%s?docType=%s", documentGUID, docType)

	var resp drsDocumentResponse
	if err := c.client.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(resp.Body))
	return &models.Document{
		CanonicalID: fmt.Sprintf("drs/%s-%s", docType, documentGUID),
		Title:       resp.Title,
		Body:        resp.Body,
		Source:      models.SourceDRS,
		Citation:    resp.Title,
		ContentHash: hex.EncodeToString(sum[:]),
		FetchedAt:   time.Now(),
	}, nil
}

type drsSearchResponse struct {
	Results []struct {
		DocumentGUID string `json:"documentGuid"`
		DocType      string `json:"docType"`
		Title        string `json:"title"`
	} `json:"results"`
}

// Search runs a free-text query against the DRS portal's search endpoint.
func (c *DRSClient) Search(ctx context.Context, query string) ([]retrieval.DRSResult, error) {
	path := "/search?q=" + url.QueryEscape(query)

	var resp drsSearchResponse
	if err := c.client.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	hits := make([]retrieval.DRSResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, retrieval.DRSResult{
			DocumentGUID: r.DocumentGUID,
			DocType:      r.DocType,
			Title:        r.Title,
		})
	}
	return hits, nil
}
