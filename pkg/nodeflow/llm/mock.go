package llm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockClient is a scripted Client for tests.
type MockClient struct {
	mu         sync.Mutex
	responses  []string
	next       int
	err        error
	chunkDelay time.Duration
	calls      []CompletionRequest
}

// NewMockClient returns a client answering every request with response.
func NewMockClient(response string) *MockClient {
	return &MockClient{responses: []string{response}}
}

// WithResponses sets responses returned in turn, cycling after the last.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	m.next = 0
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithChunkDelay pauses before each streamed chunk.
func (m *MockClient) WithChunkDelay(d time.Duration) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkDelay = d
	return m
}

// Calls returns the requests received so far.
func (m *MockClient) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.calls...)
}

func (m *MockClient) take(req CompletionRequest) (string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return "", 0, m.err
	}
	if len(m.responses) == 0 {
		return "", m.chunkDelay, nil
	}
	resp := m.responses[m.next%len(m.responses)]
	m.next++
	return resp, m.chunkDelay, nil
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, _, err := m.take(req)
	if err != nil {
		return nil, err
	}
	return &CompletionResponse{
		Content: resp,
		Model:   req.Model,
		Usage:   TokenUsage{OutputTokens: len(splitTokens(resp)), TotalTokens: len(splitTokens(resp))},
	}, nil
}

// Stream implements Client. The response is streamed one word (with its
// trailing whitespace) per chunk.
func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	resp, delay, err := m.take(req)
	if err != nil {
		return nil, err
	}
	tokens := splitTokens(resp)

	out := make(chan StreamChunk, 1)
	go func() {
		defer close(out)
		for _, tok := range tokens {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					out <- StreamChunk{Error: ctx.Err(), Done: true}
					return
				}
			}
			select {
			case out <- StreamChunk{Content: tok}:
			case <-ctx.Done():
				out <- StreamChunk{Error: ctx.Err(), Done: true}
				return
			}
		}
		out <- StreamChunk{Done: true, Usage: &TokenUsage{OutputTokens: len(tokens), TotalTokens: len(tokens)}}
	}()
	return out, nil
}

func splitTokens(s string) []string {
	var tokens []string
	for len(s) > 0 {
		i := strings.IndexAny(s, " \n\t")
		if i < 0 {
			tokens = append(tokens, s)
			break
		}
		j := i
		for j < len(s) && strings.ContainsRune(" \n\t", rune(s[j])) {
			j++
		}
		tokens = append(tokens, s[:j])
		s = s[j:]
	}
	return tokens
}

var _ Client = (*MockClient)(nil)
