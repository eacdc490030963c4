package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool parameter limits, preventing a malformed or adversarial model
// response from forcing unbounded registry/executor work.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 1 << 20
)

// Tool is one callable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, tc ToolContext, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is a tool's output, or an error rendered for the model.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolContext carries the values a tool may need beyond the model's own
// arguments: the calling agent's vector search index namespace, the
// caller's identity fingerprint, and the active conversation ID. It is
// built fresh per call by the loop and passed straight through Execute —
// never stored on the tool itself — since one Tool instance is shared by
// every concurrent turn that names it, across different conversations and
// different fingerprints.
type ToolContext struct {
	Index          string
	Fingerprint    string
	ConversationID string
}

// ToolRegistry is a thread-safe lookup of tools by name.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds or replaces a tool by name, compiling its declared JSON
// Schema (advertised to the model via invopop/jsonschema) so that
// Execute can reject malformed model-supplied arguments before dispatch.
// A tool whose schema fails to compile is still registered — a schema
// authoring bug must not take an otherwise-working tool offline — but its
// arguments go unvalidated, which Register logs at call sites that carry
// a logger; ToolRegistry itself has none, so silent skip is the contract.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	r.tools[name] = tool

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(tool.Schema())); err == nil {
		if compiled, err := compiler.Compile(name); err == nil {
			r.schemas[name] = compiled
		}
	}
}

// Get returns the named tool.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute validates and runs a tool call by name, passing tc through to
// the tool unchanged.
func (r *ToolRegistry) Execute(ctx context.Context, tc ToolContext, name string, params json.RawMessage) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return &ToolResult{Content: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength), IsError: true}, nil
	}
	if len(params) > MaxToolParamsSize {
		return &ToolResult{Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize), IsError: true}, nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return &ToolResult{Content: "tool not found: " + name, IsError: true}, nil
	}

	if schema != nil {
		var args any
		if len(params) == 0 {
			args = map[string]any{}
		} else if err := json.Unmarshal(params, &args); err != nil {
			return &ToolResult{Content: fmt.Sprintf("invalid tool arguments: %v", err), IsError: true}, nil
		}
		if err := schema.Validate(args); err != nil {
			return &ToolResult{Content: fmt.Sprintf("tool arguments failed validation: %v", err), IsError: true}, nil
		}
	}

	return tool.Execute(ctx, tc, params)
}

// ForAgent returns tool definitions for the subset of registered tools
// named in allowedNames, in the order given.
func (r *ToolRegistry) ForAgent(allowedNames []string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(allowedNames))
	for _, name := range allowedNames {
		if t, ok := r.tools[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// conversationLocks serializes turns per conversation ID, rejecting a
// second concurrent turn instead of queuing it (Open Question resolved in
// DESIGN.md: a disconnected client must never be able to wedge a
// conversation behind an indefinite queue wait).
type conversationLocks struct {
	mu    sync.Mutex
	inUse map[string]struct{}
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{inUse: make(map[string]struct{})}
}

// TryAcquire claims the lock for conversationID. It returns a release
// function and true on success, or a nil function and false if a turn is
// already in flight for that conversation.
func (c *conversationLocks) TryAcquire(conversationID string) (func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inUse[conversationID]; busy {
		return nil, false
	}
	c.inUse[conversationID] = struct{}{}
	return func() {
		c.mu.Lock()
		delete(c.inUse, conversationID)
		c.mu.Unlock()
	}, true
}
