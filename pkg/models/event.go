package models

// EventKind discriminates Event payloads on the wire.
type EventKind string

const (
	EventText          EventKind = "text"
	EventReasoning     EventKind = "reasoning"
	EventToolUse       EventKind = "tool_use"
	EventToolExecuting EventKind = "tool_executing"
	EventToolResult    EventKind = "tool_result"
	EventWarning       EventKind = "warning"
	EventQuotaUpdate   EventKind = "quota_update"
	EventError         EventKind = "error"
	EventDone          EventKind = "done"
)

// Event is one normalized item in the per-turn stream delivered to the
// client. Only the payload fields belonging to Kind are populated
// (tool events, for example, carry ToolCallID and ToolName together).
type Event struct {
	Kind EventKind `json:"kind"`

	// Text is a content delta (Kind == EventText).
	Text string `json:"text,omitempty"`

	// Reasoning is an optional model reasoning delta (Kind == EventReasoning).
	Reasoning string `json:"reasoning,omitempty"`

	// ToolCallID correlates tool_use/tool_executing/tool_result events.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	// ToolInput is the model-requested arguments (Kind == EventToolUse).
	ToolInput []byte `json:"tool_input,omitempty"`

	// ToolResultSummary is a truncated, human-readable summary
	// (Kind == EventToolResult).
	ToolResultSummary string `json:"tool_result_summary,omitempty"`
	ToolResultIsError bool   `json:"tool_result_is_error,omitempty"`

	// Warning is a non-fatal classification + message (Kind == EventWarning).
	Warning string `json:"warning,omitempty"`

	// QuotaRemaining is a post-turn counter snapshot (Kind == EventQuotaUpdate).
	QuotaRemaining int `json:"quota_remaining,omitempty"`

	// ErrClass and ErrMessage classify a terminal error (Kind == EventError).
	ErrClass   string `json:"err_class,omitempty"`
	ErrMessage string `json:"err_message,omitempty"`
}
