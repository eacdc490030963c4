package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/regassist/regassist/pkg/models"
)

// ExecutorConfig configures the parallel tool executor.
type ExecutorConfig struct {
	MaxConcurrency  int
	DefaultTimeout  time.Duration
	DefaultRetries  int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// DefaultExecutorConfig returns sane defaults.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency:  5,
		DefaultTimeout:  30 * time.Second,
		DefaultRetries:  1,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
	}
}

// Executor runs tool calls concurrently against a ToolRegistry, bounding
// concurrency with a semaphore and retrying transient failures with
// exponential backoff.
type Executor struct {
	registry *ToolRegistry
	config   *ExecutorConfig
	sem      chan struct{}

	mu      sync.Mutex
	metrics executorMetrics

	reporter Metrics
	tracer   Tracer
}

// SetMetrics attaches an external metrics sink, in addition to the
// executor's own in-process counters returned by Metrics().
func (e *Executor) SetMetrics(m Metrics) { e.reporter = m }

// SetTracer attaches a span tracer, opening one span per tool execution.
func (e *Executor) SetTracer(t Tracer) { e.tracer = t }

type executorMetrics struct {
	totalExecutions int64
	totalRetries    int64
	totalFailures   int64
	totalTimeouts   int64
	totalPanics     int64
}

// NewExecutor builds an Executor over registry. A nil config uses
// DefaultExecutorConfig.
func NewExecutor(registry *ToolRegistry, config *ExecutorConfig) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	return &Executor{
		registry: registry,
		config:   config,
		sem:      make(chan struct{}, config.MaxConcurrency),
	}
}

// ExecutionResult is the outcome of one tool call.
type ExecutionResult struct {
	ToolCallID string
	ToolName   string
	Result     *ToolResult
	Error      error
	Duration   time.Duration
	Attempts   int
}

// ExecuteAll runs calls concurrently against the same ToolContext,
// returning results in call order.
func (e *Executor) ExecuteAll(ctx context.Context, toolCtx ToolContext, calls []models.ToolCall) []*ExecutionResult {
	if len(calls) == 0 {
		return nil
	}
	results := make([]*ExecutionResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c models.ToolCall) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, toolCtx, c)
		}(i, call)
	}
	wg.Wait()
	return results
}

// Execute runs a single tool call with timeout, retry, and panic recovery.
func (e *Executor) Execute(ctx context.Context, toolCtx ToolContext, call models.ToolCall) *ExecutionResult {
	start := time.Now()
	result := &ExecutionResult{ToolCallID: call.ID, ToolName: call.Name}

	var endSpan func(error)
	if e.tracer != nil {
		ctx, endSpan = e.tracer.StartTool(ctx, call.Name)
	}
	defer func() {
		if endSpan != nil {
			endSpan(result.Error)
		}
		if e.reporter != nil {
			outcome := "success"
			if result.Error != nil {
				outcome = "error"
			}
			e.reporter.RecordToolExecution(call.Name, result.Duration.Seconds(), outcome)
		}
	}()

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		result.Error = NewToolError(call.Name, ctx.Err()).WithType(ToolErrorTimeout).WithToolCallID(call.ID)
		result.Duration = time.Since(start)
		return result
	}

	maxRetries := e.config.DefaultRetries
	backoff := e.config.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result.Attempts = attempt + 1

		execResult, execErr := e.executeWithTimeout(ctx, toolCtx, call, e.config.DefaultTimeout)
		if execErr == nil {
			result.Result = execResult
			result.Duration = time.Since(start)
			e.recordSuccess(attempt)
			return result
		}

		lastErr = execErr
		if !IsToolRetryable(execErr) || ctx.Err() != nil || attempt >= maxRetries {
			break
		}

		sleep := backoff * time.Duration(1<<uint(attempt))
		if sleep > e.config.MaxRetryBackoff {
			sleep = e.config.MaxRetryBackoff
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			lastErr = NewToolError(call.Name, ctx.Err()).WithType(ToolErrorTimeout).WithToolCallID(call.ID)
		}
	}

	result.Error = lastErr
	result.Duration = time.Since(start)
	e.recordFailure(lastErr)
	return result
}

func (e *Executor) executeWithTimeout(ctx context.Context, toolCtx ToolContext, call models.ToolCall, timeout time.Duration) (*ToolResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *ToolResult
		err    error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := NewToolError(call.Name, fmt.Errorf("panic: %v\n%s", r, debug.Stack())).
					WithType(ToolErrorPanic).WithToolCallID(call.ID)
				resultCh <- outcome{err: err}
			}
		}()

		result, err := e.registry.Execute(execCtx, toolCtx, call.Name, call.Input)
		if err != nil {
			resultCh <- outcome{err: NewToolError(call.Name, err).WithToolCallID(call.ID)}
			return
		}
		resultCh <- outcome{result: result}
	}()

	select {
	case res := <-resultCh:
		return res.result, res.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, NewToolError(call.Name, ctx.Err()).WithType(ToolErrorTimeout).WithToolCallID(call.ID).WithMessage("context cancelled")
		}
		return nil, NewToolError(call.Name, ErrToolTimeout).WithType(ToolErrorTimeout).WithToolCallID(call.ID).
			WithMessage(fmt.Sprintf("execution timed out after %s", timeout))
	}
}

func (e *Executor) recordSuccess(attempt int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics.totalExecutions++
	if attempt > 0 {
		e.metrics.totalRetries += int64(attempt)
	}
}

func (e *Executor) recordFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics.totalExecutions++
	e.metrics.totalFailures++
	if te, ok := GetToolError(err); ok {
		switch te.Type {
		case ToolErrorTimeout:
			e.metrics.totalTimeouts++
		case ToolErrorPanic:
			e.metrics.totalPanics++
		}
	}
}

// MetricsSnapshot is a point-in-time copy of executor counters.
type MetricsSnapshot struct {
	TotalExecutions int64
	TotalRetries    int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
}

// Metrics returns a copy-safe snapshot.
func (e *Executor) Metrics() MetricsSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return MetricsSnapshot{
		TotalExecutions: e.metrics.totalExecutions,
		TotalRetries:    e.metrics.totalRetries,
		TotalFailures:   e.metrics.totalFailures,
		TotalTimeouts:   e.metrics.totalTimeouts,
		TotalPanics:     e.metrics.totalPanics,
	}
}

// ResultsToModel converts execution results into model-facing tool results,
// in call order.
func ResultsToModel(results []*ExecutionResult) []models.ToolResult {
	out := make([]models.ToolResult, len(results))
	for i, r := range results {
		switch {
		case r.Error != nil:
			out[i] = models.ToolResult{ToolCallID: r.ToolCallID, Content: r.Error.Error(), IsError: true}
		case r.Result != nil:
			out[i] = models.ToolResult{ToolCallID: r.ToolCallID, Content: r.Result.Content, IsError: r.Result.IsError}
		}
	}
	return out
}
