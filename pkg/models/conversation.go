package models

import (
	"encoding/json"
	"time"
)

// Role indicates the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to execute a tool, with a stable call ID the
// provider uses to correlate the eventual result.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the model-facing outcome of one tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Turn is one entry in a conversation's append-only sequence. A turn
// carries exactly one of: plain text (user turns), a set of tool-use
// blocks alongside assistant text (assistant turns), or a set of tool
// results (tool-result turns).
type Turn struct {
	ConversationID string       `json:"conversation_id"`
	Sequence       int64        `json:"sequence"`
	Role           Role         `json:"role"`
	Text           string       `json:"text,omitempty"`
	ToolCalls      []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults    []ToolResult `json:"tool_results,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Conversation identifies an ordered, append-only sequence of turns.
type Conversation struct {
	ID        string    `json:"id"`
	AgentName string    `json:"agent_name"`
	CreatedAt time.Time `json:"created_at"`
}
