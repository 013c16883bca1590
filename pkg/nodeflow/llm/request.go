package llm

import "time"

// CompletionRequest configures an LLM completion call.
type CompletionRequest struct {
	// Prompt configuration
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`

	// Model configuration. Nil sampling fields use the provider default.
	Model       string   `json:"model,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Message is a conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role identifies the message sender.
type Role string

// Standard message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// CompletionResponse is the output of a completion call.
type CompletionResponse struct {
	Content  string        `json:"content"`
	Usage    TokenUsage    `json:"usage"`
	Model    string        `json:"model"`
	Duration time.Duration `json:"duration"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add adds other to u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// StreamChunk is a piece of a streaming response.
type StreamChunk struct {
	Content string      `json:"content,omitempty"`
	Usage   *TokenUsage `json:"usage,omitempty"` // Only set in final chunk
	Done    bool        `json:"done"`
	Error   error       `json:"-"` // Non-nil if streaming failed
}

// UserPrompt builds a request with an optional system prompt and one user
// message.
func UserPrompt(model, system, user string) CompletionRequest {
	return CompletionRequest{
		Model:        model,
		SystemPrompt: system,
		Messages:     []Message{{Role: RoleUser, Content: user}},
	}
}
