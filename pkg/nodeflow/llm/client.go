// Package llm provides the language model clients used by prompt nodes.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Client sends completion requests to a language model.
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream returns a channel of incremental chunks. The channel is
	// closed after a chunk with Done set. Cancelling ctx ends the stream
	// with a final chunk carrying ctx.Err().
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}

// ErrEmptyPrompt is returned when a request carries no user content.
var ErrEmptyPrompt = errors.New("llm: empty prompt")

// Collect drains a stream into a single string. It returns the first
// stream error.
func Collect(ch <-chan StreamChunk) (string, *TokenUsage, error) {
	var sb strings.Builder
	var usage *TokenUsage
	for chunk := range ch {
		if chunk.Error != nil {
			return sb.String(), usage, chunk.Error
		}
		sb.WriteString(chunk.Content)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	return sb.String(), usage, nil
}
