package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/petal-labs/iris/core"
	"github.com/petal-labs/iris/providers"
	"github.com/petal-labs/iris/providers/ollama"

	// Auto-register hosted providers for NewProvider.
	_ "github.com/petal-labs/iris/providers/anthropic"
	_ "github.com/petal-labs/iris/providers/openai"
)

// DefaultOllamaURL is the address of a local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// IrisClient implements Client on top of an iris provider.
type IrisClient struct {
	provider core.Provider
	model    string
}

// IrisOption configures IrisClient.
type IrisOption func(*IrisClient)

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) IrisOption {
	return func(c *IrisClient) { c.model = model }
}

// NewIrisClient wraps an iris provider.
func NewIrisClient(provider core.Provider, opts ...IrisOption) *IrisClient {
	c := &IrisClient{provider: provider}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewOllama returns a client for the Ollama server at baseURL.
// An empty baseURL uses DefaultOllamaURL.
func NewOllama(baseURL string, opts ...IrisOption) *IrisClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return NewIrisClient(ollama.New(ollama.WithBaseURL(baseURL)), opts...)
}

// NewProvider returns a client for a named iris provider such as
// "openai" or "anthropic". "ollama" uses apiKey as the base URL.
func NewProvider(name, apiKey string, opts ...IrisOption) (*IrisClient, error) {
	if name == "ollama" {
		return NewOllama(apiKey, opts...), nil
	}
	p, err := providers.Create(name, apiKey)
	if err != nil {
		return nil, fmt.Errorf("creating provider %q: %w", name, err)
	}
	return NewIrisClient(p, opts...), nil
}

// ProviderID returns the underlying provider's identifier.
func (c *IrisClient) ProviderID() string { return c.provider.ID() }

// Complete implements Client.
func (c *IrisClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	resp, err := c.provider.Chat(ctx, c.chatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("provider chat failed: %w", err)
	}
	return &CompletionResponse{
		Content: resp.Output,
		Model:   string(resp.Model),
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Duration: time.Since(start),
	}, nil
}

// Stream implements Client.
func (c *IrisClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	stream, err := c.provider.StreamChat(ctx, c.chatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("provider stream chat failed: %w", err)
	}

	out := make(chan StreamChunk, 1)
	go func() {
		defer close(out)

		for chunk := range stream.Ch {
			select {
			case out <- StreamChunk{Content: chunk.Delta}:
			case <-ctx.Done():
				out <- StreamChunk{Error: ctx.Err(), Done: true}
				return
			}
		}
		if ctx.Err() != nil {
			out <- StreamChunk{Error: ctx.Err(), Done: true}
			return
		}

		select {
		case err, ok := <-stream.Err:
			if ok && err != nil {
				out <- StreamChunk{Error: err, Done: true}
				return
			}
		default:
		}

		final := StreamChunk{Done: true}
		select {
		case resp, ok := <-stream.Final:
			if ok && resp != nil {
				final.Usage = &TokenUsage{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
					TotalTokens:  resp.Usage.TotalTokens,
				}
			}
		case <-ctx.Done():
			final.Error = ctx.Err()
		}
		out <- final
	}()
	return out, nil
}

func (c *IrisClient) chatRequest(req CompletionRequest) *core.ChatRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]core.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, core.Message{Role: core.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, core.Message{Role: toRole(m.Role), Content: m.Content})
	}

	chatReq := &core.ChatRequest{
		Model:    core.ModelID(model),
		Messages: messages,
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		chatReq.Temperature = &temp
	}
	if req.MaxTokens != nil {
		chatReq.MaxTokens = req.MaxTokens
	}
	return chatReq
}

func toRole(r Role) core.Role {
	switch r {
	case RoleSystem:
		return core.RoleSystem
	case RoleAssistant:
		return core.RoleAssistant
	default:
		return core.RoleUser
	}
}

var _ Client = (*IrisClient)(nil)
