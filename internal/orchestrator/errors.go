package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced by the turn loop.
var (
	// ErrTurnInFlight is returned when a new turn is requested for a
	// conversation that already has one running: concurrent turns on the
	// same conversation are rejected, not queued.
	ErrTurnInFlight = errors.New("a turn is already in flight for this conversation")

	ErrNoProvider    = errors.New("no llm provider configured")
	ErrUnknownAgent  = errors.New("unknown agent")
	ErrToolNotFound  = errors.New("tool not found")
	ErrToolTimeout   = errors.New("tool execution timed out")
)

// ToolErrorType categorizes a tool failure for retry and reporting.
type ToolErrorType string

const (
	ToolErrorNotFound     ToolErrorType = "not_found"
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorNetwork      ToolErrorType = "network"
	ToolErrorPermission   ToolErrorType = "permission"
	ToolErrorRateLimit    ToolErrorType = "rate_limit"
	ToolErrorExecution    ToolErrorType = "execution"
	ToolErrorPanic        ToolErrorType = "panic"
	ToolErrorUnknown      ToolErrorType = "unknown"
)

// IsRetryable reports whether a tool error of this type is worth retrying.
func (t ToolErrorType) IsRetryable() bool {
	switch t {
	case ToolErrorTimeout, ToolErrorNetwork, ToolErrorRateLimit:
		return true
	default:
		return false
	}
}

// ToolError is a structured tool-execution failure.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
	Retryable  bool
	Attempts   int
}

func (e *ToolError) Error() string {
	parts := []string{fmt.Sprintf("[tool:%s]", e.Type)}
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("(attempts=%d)", e.Attempts))
	}
	return strings.Join(parts, " ")
}

func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolError wraps cause, classifying it from its text.
func NewToolError(toolName string, cause error) *ToolError {
	e := &ToolError{ToolName: toolName, Cause: cause, Type: ToolErrorUnknown, Attempts: 1}
	if cause != nil {
		e.Message = cause.Error()
		e.Type = classifyToolError(cause)
		e.Retryable = e.Type.IsRetryable()
	}
	return e
}

func (e *ToolError) WithType(t ToolErrorType) *ToolError {
	e.Type = t
	e.Retryable = t.IsRetryable()
	return e
}

func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

func (e *ToolError) WithMessage(msg string) *ToolError {
	e.Message = msg
	return e
}

func classifyToolError(err error) ToolErrorType {
	if err == nil {
		return ToolErrorUnknown
	}
	if errors.Is(err, ErrToolNotFound) {
		return ToolErrorNotFound
	}
	if errors.Is(err, ErrToolTimeout) {
		return ToolErrorTimeout
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return ToolErrorTimeout
	case strings.Contains(s, "connection"), strings.Contains(s, "network"), strings.Contains(s, "dns"), strings.Contains(s, "refused"), strings.Contains(s, "unreachable"):
		return ToolErrorNetwork
	case strings.Contains(s, "rate limit"), strings.Contains(s, "too many requests"), strings.Contains(s, "429"):
		return ToolErrorRateLimit
	case strings.Contains(s, "permission"), strings.Contains(s, "forbidden"), strings.Contains(s, "unauthorized"), strings.Contains(s, "access denied"):
		return ToolErrorPermission
	case strings.Contains(s, "invalid"), strings.Contains(s, "validation"), strings.Contains(s, "required"), strings.Contains(s, "missing"):
		return ToolErrorInvalidInput
	default:
		return ToolErrorExecution
	}
}

// GetToolError extracts a *ToolError from err's chain.
func GetToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsToolRetryable reports whether err should be retried.
func IsToolRetryable(err error) bool {
	if te, ok := GetToolError(err); ok {
		return te.Retryable
	}
	return classifyToolError(err).IsRetryable()
}

// Phase names one stage of the turn state machine, recorded on TurnError
// for diagnostics.
type Phase string

const (
	PhaseInit         Phase = "init"
	PhaseStream       Phase = "stream"
	PhaseExecuteTools Phase = "execute_tools"
	PhaseContinue     Phase = "continue"
	PhaseComplete     Phase = "complete"
)

// TurnError reports the phase and round at which a turn failed.
type TurnError struct {
	Phase   Phase
	Round   int
	Message string
	Cause   error
}

func (e *TurnError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("turn error at %s (round %d): %s", e.Phase, e.Round, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("turn error at %s (round %d): %v", e.Phase, e.Round, e.Cause)
	}
	return fmt.Sprintf("turn error at %s (round %d)", e.Phase, e.Round)
}

func (e *TurnError) Unwrap() error { return e.Cause }
