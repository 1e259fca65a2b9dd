// Package llm provides the completion capability the pipeline needs from an
// OpenAI-compatible API: submit a role prompt plus text, get text back.
package llm

import (
	"context"
	"fmt"
)

// CompletionRequest is a single prompt submission. System carries the role
// instructions, Prompt the user content.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float32
}

// Client submits prompts to a language model and returns the cleaned
// completion text.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// UpstreamError reports that a model call failed after exhausting its retry
// budget. Attempts counts every try including the first.
type UpstreamError struct {
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream LLM call failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
