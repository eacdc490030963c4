// Package llm defines the provider-neutral interface the orchestrator uses
// to drive a streaming chat completion, plus the two concrete providers
// (Anthropic primary, Bedrock failover).
package llm

import (
	"context"
	"encoding/json"

	"github.com/regassist/regassist/pkg/models"
)

// Provider is a streaming chat completion backend. Implementations must be
// safe for concurrent use: the orchestrator may have many turns in flight
// against the same Provider.
type Provider interface {
	// Complete starts a streaming completion. The returned channel is closed
	// when the stream ends, whether by completion, cancellation, or error;
	// the final chunk before closure carries either Done or Error.
	Complete(ctx context.Context, req *Request) (<-chan *Chunk, error)

	// Name is the stable, lowercase provider identifier used in logs and
	// metrics (e.g. "anthropic", "bedrock").
	Name() string
}

// Request is everything needed to drive one completion call.
type Request struct {
	Model   string
	System  string
	Message []Message

	// ToolDefs advertises the tools available to the model this turn,
	// already filtered to the calling agent's allow-list.
	ToolDefs []ToolDef

	MaxTokens       int
	ReasoningBudget int // extended-thinking token budget; 0 disables it
}

// Message is one entry of conversation history in provider-neutral form.
type Message struct {
	Role        models.Role
	Text        string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// ToolDef is a tool definition presented to the model.
type ToolDef struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Chunk is one item of a streaming completion.
type Chunk struct {
	Text      string
	Reasoning string

	// ToolCall is populated once a tool-use block finishes accumulating.
	ToolCall *models.ToolCall

	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}
