package indexer

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/regassist/regassist/pkg/models"
)

// OpenAIEmbedder computes chunk embeddings via OpenAI's embedding API,
// pinned to models.EmbeddingDimension (1024) via the API's dimensions
// parameter so every chunk in the corpus, regardless of which agent or
// source produced it, lands in the same vector space.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// OpenAIEmbedderConfig configures an OpenAIEmbedder.
type OpenAIEmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string // e.g. "text-embedding-3-small"
}

// NewOpenAIEmbedder builds an OpenAIEmbedder.
func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Embed implements the Embedder interface this package's Manager (and,
// structurally, internal/tools/retrieval's Embedder) expects.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: models.EmbeddingDimension,
	})
	if err != nil {
		return nil, fmt.Errorf("openai create embeddings: %w", err)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}
