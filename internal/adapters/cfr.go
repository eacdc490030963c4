package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/regassist/regassist/internal/ratelimit"
	"github.com/regassist/regassist/pkg/models"
)

// CFRClient fetches Code of Federal Regulations section text from the
// eCFR API, satisfying retrieval.CFRClient.
type CFRClient struct {
	client *httpClient
}

// CFRConfig configures the CFR adapter.
type CFRConfig struct {
	// BaseURL defaults to the public eCFR API.
	BaseURL string
	APIKey  string
	RateLimit ratelimit.Config
}

// DefaultCFRConfig returns the public eCFR endpoint with a conservative
// rate limit, since the eCFR API is unauthenticated and shared.
func DefaultCFRConfig() CFRConfig {
	return CFRConfig{
		BaseURL:   "https://www.ecfr.gov/api/versioner/v1",
		RateLimit: ratelimit.Config{RequestsPerSecond: 5, BurstSize: 10, Enabled: true},
	}
}

// NewCFRClient builds a CFR adapter from cfg, defaulting unset fields.
func NewCFRClient(cfg CFRConfig) *CFRClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCFRConfig().BaseURL
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = DefaultCFRConfig().RateLimit
	}

	var authorize func(ctx context.Context, req *http.Request) error
	if cfg.APIKey != "" {
		authorize = func(ctx context.Context, req *http.Request) error {
			req.Header.Set("X-Api-Key", cfg.APIKey)
			return nil
		}
	}

	return &CFRClient{client: newHTTPClient(cfg.BaseURL, cfg.RateLimit, authorize)}
}

type cfrSectionResponse struct {
	FullTextXMLURL string `json:"full_text_xml_url"`
	Content        string `json:"content"`
	Title          string `json:"title"`
}

// FetchSection retrieves the full text of one CFR section, identified by
// title, part, section, and an optional as-of date (defaults to "current").
func (c *CFRClient) FetchSection(ctx context.Context, title, part, section, date string) (*models.Document, error) {
	if date == "" {
		date = "current"
	}
	path := fmt.Sprintf("/full/%s/title-%s.json?part=%s&section=%s", date, title, part, section)

	var resp cfrSectionResponse
	if err := c.client.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	body := resp.Content
	if body == "" {
		body = resp.FullTextXMLURL
	}
	citation := fmt.Sprintf("%s CFR § %s.%s", title, part, section)
	sum := sha256.Sum256([]byte(body))

	return &models.Document{
		CanonicalID: fmt.Sprintf("cfr/%s-%s-%s", title, part, section),
		Title:       citation,
		Body:        body,
		Source:      models.SourceCFR,
		Citation:    citation,
		ContentHash: hex.EncodeToString(sum[:]),
		FetchedAt:   time.Now(),
	}, nil
}
