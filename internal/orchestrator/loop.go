// Package orchestrator implements the per-turn agentic loop: stream a
// completion, execute any requested tools, feed results back, and repeat
// until the model stops requesting tools or a round limit is hit.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/regassist/regassist/internal/llm"
	"github.com/regassist/regassist/pkg/models"
)

// ConversationStore is the minimal persistence contract the loop needs:
// append-only, gap-free, ascending-sequence turn history per conversation.
type ConversationStore interface {
	AppendTurn(ctx context.Context, turn *models.Turn) error
	History(ctx context.Context, conversationID string) ([]*models.Turn, error)
}

// Metrics receives turn- and tool-scoped observations. Satisfied by
// *metrics.Collector; left nil, the loop and executor skip recording
// rather than requiring a no-op implementation at every call site.
type Metrics interface {
	RecordTurn(agent string, durationSeconds float64, outcome string)
	RecordToolExecution(tool string, durationSeconds float64, outcome string)
}

// Tracer opens turn- and tool-scoped spans. Satisfied by *tracing.Tracer.
type Tracer interface {
	StartTurn(ctx context.Context, agent, conversationID string) (context.Context, func(error))
	StartTool(ctx context.Context, tool string) (context.Context, func(error))
}

// Config bounds one turn's execution.
type Config struct {
	MaxToolRounds int
	MaxTokens     int
	TurnTimeout   time.Duration
}

// DefaultConfig returns reasonable defaults for a single-agent deployment.
func DefaultConfig() *Config {
	return &Config{
		MaxToolRounds: 8,
		MaxTokens:     4096,
		TurnTimeout:   120 * time.Second,
	}
}

// Loop drives one agent's conversations through the turn state machine.
type Loop struct {
	provider llm.Provider
	registry *ToolRegistry
	executor *Executor
	store    ConversationStore
	config   *Config
	log      *slog.Logger

	locks   *conversationLocks
	metrics Metrics
	tracer  Tracer
}

// SetMetrics attaches a metrics sink to the loop and its tool executor.
// Must be called before the first HandleTurn to avoid a data race.
func (l *Loop) SetMetrics(m Metrics) {
	l.metrics = m
	l.executor.SetMetrics(m)
}

// SetTracer attaches a span tracer to the loop and its tool executor.
// Must be called before the first HandleTurn to avoid a data race.
func (l *Loop) SetTracer(t Tracer) {
	l.tracer = t
	l.executor.SetTracer(t)
}

// NewLoop builds a Loop. config may be nil (DefaultConfig is used).
func NewLoop(provider llm.Provider, registry *ToolRegistry, store ConversationStore, config *Config, log *slog.Logger) *Loop {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		provider: provider,
		registry: registry,
		executor: NewExecutor(registry, DefaultExecutorConfig()),
		store:    store,
		config:   config,
		log:      log,
		locks:    newConversationLocks(),
	}
}

// turnState tracks one in-progress turn across rounds.
type turnState struct {
	round       int
	messages    []llm.Message
	accumulated string
}

// HandleTurn runs one user turn to completion, streaming normalized events
// to the returned channel. The channel is closed when the turn ends; the
// final event before closure is EventDone on natural completion, or on
// hitting the round limit (preceded by an EventWarning and one
// tools-disabled synthesis round), and EventError on failure.
//
// If a turn is already running for conversationID, HandleTurn returns
// ErrTurnInFlight immediately rather than queuing behind it.
func (l *Loop) HandleTurn(ctx context.Context, agent *models.Agent, conversationID, fingerprint, userText string) (<-chan *models.Event, error) {
	if l.provider == nil {
		return nil, ErrNoProvider
	}
	if agent == nil {
		return nil, ErrUnknownAgent
	}

	release, ok := l.locks.TryAcquire(conversationID)
	if !ok {
		return nil, ErrTurnInFlight
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if l.config.TurnTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, l.config.TurnTimeout)
	}

	events := make(chan *models.Event, 32)

	go func() {
		defer release()
		defer close(events)
		if cancel != nil {
			defer cancel()
		}

		turnStart := time.Now()
		outcome := "error"
		var endSpan func(error)
		if l.tracer != nil {
			runCtx, endSpan = l.tracer.StartTurn(runCtx, agent.Name, conversationID)
		}
		var turnErr error
		defer func() {
			if endSpan != nil {
				endSpan(turnErr)
			}
			if l.metrics != nil {
				l.metrics.RecordTurn(agent.Name, time.Since(turnStart).Seconds(), outcome)
			}
		}()

		state, err := l.initialize(runCtx, agent, conversationID, userText)
		if err != nil {
			turnErr = err
			l.emitError(events, PhaseInit, 0, err)
			return
		}

		for state.round < l.config.MaxToolRounds {
			select {
			case <-runCtx.Done():
				turnErr = runCtx.Err()
				l.emitError(events, PhaseStream, state.round, turnErr)
				return
			default:
			}

			toolCalls, err := l.streamRound(runCtx, agent, state, events, true)
			if err != nil {
				turnErr = err
				l.emitError(events, PhaseStream, state.round, err)
				return
			}

			if err := l.persistAssistant(runCtx, conversationID, state.accumulated, toolCalls); err != nil {
				turnErr = err
				l.emitError(events, PhaseStream, state.round, err)
				return
			}

			if len(toolCalls) == 0 {
				outcome = "done"
				events <- &models.Event{Kind: models.EventDone}
				return
			}

			toolCtx := ToolContext{Index: agent.SearchIndex, Fingerprint: fingerprint, ConversationID: conversationID}
			toolResults := l.executeTools(runCtx, toolCtx, toolCalls, events)

			if err := l.persistToolResults(runCtx, conversationID, toolCalls, toolResults); err != nil {
				turnErr = err
				l.emitError(events, PhaseExecuteTools, state.round, err)
				return
			}

			l.continueRound(state, toolCalls, toolResults)
			state.round++
		}

		events <- &models.Event{
			Kind:    models.EventWarning,
			Warning: fmt.Sprintf("maximum tool rounds (%d) reached; finishing without further tool calls", l.config.MaxToolRounds),
		}

		finalCalls, err := l.streamRound(runCtx, agent, state, events, false)
		if err != nil {
			turnErr = err
			l.emitError(events, PhaseStream, state.round, err)
			return
		}
		if err := l.persistAssistant(runCtx, conversationID, state.accumulated, finalCalls); err != nil {
			turnErr = err
			l.emitError(events, PhaseStream, state.round, err)
			return
		}

		outcome = "done"
		events <- &models.Event{Kind: models.EventDone}
	}()

	return events, nil
}

func (l *Loop) initialize(ctx context.Context, agent *models.Agent, conversationID, userText string) (*turnState, error) {
	history, err := l.store.History(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	for _, t := range history {
		messages = append(messages, llm.Message{
			Role:        t.Role,
			Text:        t.Text,
			ToolCalls:   t.ToolCalls,
			ToolResults: t.ToolResults,
		})
	}
	messages = append(messages, llm.Message{Role: models.RoleUser, Text: userText})

	if err := l.store.AppendTurn(ctx, &models.Turn{
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Text:           userText,
		CreatedAt:      now(),
	}); err != nil {
		return nil, fmt.Errorf("persist user turn: %w", err)
	}

	return &turnState{messages: messages}, nil
}

// streamRound streams one completion for state, advertising agent's tools
// when toolsEnabled is true and no tools at all otherwise — used to force
// a final synthesis round once the turn has hit its round limit.
func (l *Loop) streamRound(ctx context.Context, agent *models.Agent, state *turnState, events chan<- *models.Event, toolsEnabled bool) ([]models.ToolCall, error) {
	var defs []llm.ToolDef
	if toolsEnabled {
		tools := l.registry.ForAgent(agent.Tools)
		defs = make([]llm.ToolDef, 0, len(tools))
		for _, t := range tools {
			defs = append(defs, llm.ToolDef{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
		}
	}

	req := &llm.Request{
		System:    agent.SystemPrompt,
		Message:   state.messages,
		ToolDefs:  defs,
		MaxTokens: l.config.MaxTokens,
	}

	stream, err := l.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var toolCalls []models.ToolCall
	var text string

	for chunk := range stream {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		if chunk.Text != "" {
			text += chunk.Text
			events <- &models.Event{Kind: models.EventText, Text: chunk.Text}
		}
		if chunk.Reasoning != "" {
			events <- &models.Event{Kind: models.EventReasoning, Reasoning: chunk.Reasoning}
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
			events <- &models.Event{Kind: models.EventToolUse, ToolCallID: chunk.ToolCall.ID, ToolName: chunk.ToolCall.Name, ToolInput: chunk.ToolCall.Input}
		}
	}

	state.accumulated = text
	return toolCalls, nil
}

func (l *Loop) executeTools(ctx context.Context, toolCtx ToolContext, calls []models.ToolCall, events chan<- *models.Event) []models.ToolResult {
	for _, c := range calls {
		events <- &models.Event{Kind: models.EventToolExecuting, ToolCallID: c.ID, ToolName: c.Name}
	}

	execResults := l.executor.ExecuteAll(ctx, toolCtx, calls)

	for _, r := range execResults {
		summary := ""
		isErr := r.Error != nil
		if isErr {
			summary = r.Error.Error()
		} else if r.Result != nil {
			summary = truncate(r.Result.Content, 500)
			isErr = r.Result.IsError
		}
		events <- &models.Event{
			Kind:              models.EventToolResult,
			ToolCallID:        r.ToolCallID,
			ToolName:          r.ToolName,
			ToolResultSummary: summary,
			ToolResultIsError: isErr,
		}
	}

	return ResultsToModel(execResults)
}

func (l *Loop) continueRound(state *turnState, calls []models.ToolCall, results []models.ToolResult) {
	state.messages = append(state.messages, llm.Message{Role: models.RoleAssistant, Text: state.accumulated, ToolCalls: calls})
	state.messages = append(state.messages, llm.Message{Role: models.RoleTool, ToolResults: results})
	state.accumulated = ""
}

func (l *Loop) persistAssistant(ctx context.Context, conversationID, text string, calls []models.ToolCall) error {
	return l.store.AppendTurn(ctx, &models.Turn{
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Text:           text,
		ToolCalls:      calls,
		CreatedAt:      now(),
	})
}

func (l *Loop) persistToolResults(ctx context.Context, conversationID string, calls []models.ToolCall, results []models.ToolResult) error {
	return l.store.AppendTurn(ctx, &models.Turn{
		ConversationID: conversationID,
		Role:           models.RoleTool,
		ToolResults:    results,
		CreatedAt:      now(),
	})
}

func (l *Loop) emitError(events chan<- *models.Event, phase Phase, round int, err error) {
	te := &TurnError{Phase: phase, Round: round, Cause: err}
	l.log.Error("turn failed", "phase", phase, "round", round, "error", err)
	events <- &models.Event{Kind: models.EventError, ErrClass: string(phase), ErrMessage: te.Error()}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func now() time.Time { return time.Now() }
