package llm

import (
	"context"
	"log/slog"
)

// FailoverProvider tries a primary Provider first and, on an error whose
// FailoverReason.ShouldFailover() is true, retries the whole request once
// against a secondary Provider. If secondary is nil the
// wrapper behaves exactly like primary.
type FailoverProvider struct {
	primary   Provider
	secondary Provider
	log       *slog.Logger
}

// NewFailoverProvider builds a FailoverProvider. secondary may be nil.
func NewFailoverProvider(primary, secondary Provider, log *slog.Logger) *FailoverProvider {
	if log == nil {
		log = slog.Default()
	}
	return &FailoverProvider{primary: primary, secondary: secondary, log: log}
}

func (f *FailoverProvider) Name() string { return f.primary.Name() }

// Complete attempts primary, falling back to secondary once when the
// primary fails with a failover-eligible reason. A request that has already
// started streaming text is not resumed on the secondary — the orchestrator
// observes the failure as a single completion error.
func (f *FailoverProvider) Complete(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	chunks, err := f.primary.Complete(ctx, req)
	if err == nil {
		return f.wrapForFailover(ctx, req, chunks), nil
	}
	if f.secondary == nil || !ShouldFailover(err) {
		return nil, err
	}
	f.log.Warn("llm failover engaged", "primary", f.primary.Name(), "secondary", f.secondary.Name(), "reason", err)
	return f.secondary.Complete(ctx, req)
}

// wrapForFailover watches the primary's stream for an early, pre-first-chunk
// error and fails over transparently; once any content chunk has been
// emitted, failover is no longer safe (the caller may have already shown
// partial output) and errors pass through as-is.
func (f *FailoverProvider) wrapForFailover(ctx context.Context, req *Request, upstream <-chan *Chunk) <-chan *Chunk {
	out := make(chan *Chunk, 16)
	go func() {
		defer close(out)
		emittedContent := false
		for chunk := range upstream {
			if chunk.Error != nil && !emittedContent && f.secondary != nil && ShouldFailover(chunk.Error) {
				f.log.Warn("llm failover engaged mid-stream", "primary", f.primary.Name(), "secondary", f.secondary.Name(), "reason", chunk.Error)
				secondary, err := f.secondary.Complete(ctx, req)
				if err != nil {
					out <- &Chunk{Error: err, Done: true}
					return
				}
				for sc := range secondary {
					out <- sc
				}
				return
			}
			if chunk.Text != "" || chunk.ToolCall != nil {
				emittedContent = true
			}
			out <- chunk
		}
	}()
	return out
}
