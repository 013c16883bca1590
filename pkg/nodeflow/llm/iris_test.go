package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/petal-labs/iris/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	chatResponse *core.ChatResponse
	chatErr      error
	stream       *core.ChatStream
	lastReq      *core.ChatRequest
}

func (f *fakeProvider) ID() string { return "fake" }

func (f *fakeProvider) Chat(_ context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	f.lastReq = req
	return f.chatResponse, f.chatErr
}

func (f *fakeProvider) StreamChat(_ context.Context, req *core.ChatRequest) (*core.ChatStream, error) {
	f.lastReq = req
	if f.stream == nil {
		return nil, errors.New("no stream")
	}
	return f.stream, nil
}

func (f *fakeProvider) Models() []core.ModelInfo { return []core.ModelInfo{{ID: "fake-model"}} }

func (f *fakeProvider) Supports(feature core.Feature) bool { return feature == core.FeatureChat }

func newStream(deltas []string, final *core.ChatResponse, streamErr error) *core.ChatStream {
	chunkCh := make(chan core.ChatChunk, len(deltas))
	errCh := make(chan error, 1)
	finalCh := make(chan *core.ChatResponse, 1)
	for _, d := range deltas {
		chunkCh <- core.ChatChunk{Delta: d}
	}
	close(chunkCh)
	if streamErr != nil {
		errCh <- streamErr
	}
	close(errCh)
	if final != nil {
		finalCh <- final
	}
	close(finalCh)
	return &core.ChatStream{Ch: chunkCh, Err: errCh, Final: finalCh}
}

func TestIrisClient_ChatRequest(t *testing.T) {
	c := NewIrisClient(&fakeProvider{}, WithDefaultModel("llama3.2"))
	temp := 0.5
	maxTokens := 64
	req := UserPrompt("", "be brief", "hello")
	req.Temperature = &temp
	req.MaxTokens = &maxTokens

	chatReq := c.chatRequest(req)
	assert.Equal(t, core.ModelID("llama3.2"), chatReq.Model)
	require.Len(t, chatReq.Messages, 2)
	assert.Equal(t, core.RoleSystem, chatReq.Messages[0].Role)
	assert.Equal(t, "hello", chatReq.Messages[1].Content)
	require.NotNil(t, chatReq.Temperature)
	assert.InDelta(t, 0.5, *chatReq.Temperature, 1e-6)
	assert.Equal(t, &maxTokens, chatReq.MaxTokens)

	chatReq = c.chatRequest(UserPrompt("other", "", "x"))
	assert.Equal(t, core.ModelID("other"), chatReq.Model)
	assert.Len(t, chatReq.Messages, 1)
	assert.Nil(t, chatReq.Temperature)
}

func TestIrisClient_Complete(t *testing.T) {
	p := &fakeProvider{chatResponse: &core.ChatResponse{
		Model:  "fake-model",
		Output: "hi there",
		Usage:  core.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}}
	c := NewIrisClient(p)

	resp, err := c.Complete(context.Background(), UserPrompt("fake-model", "", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.Equal(t, "fake", c.ProviderID())

	p.chatErr = errors.New("down")
	_, err = c.Complete(context.Background(), UserPrompt("fake-model", "", "hi"))
	assert.ErrorContains(t, err, "down")
}

func TestIrisClient_Stream(t *testing.T) {
	p := &fakeProvider{stream: newStream(
		[]string{"Hel", "lo"},
		&core.ChatResponse{Usage: core.TokenUsage{CompletionTokens: 2, TotalTokens: 4}},
		nil,
	)}
	ch, err := NewIrisClient(p).Stream(context.Background(), UserPrompt("m", "", "hi"))
	require.NoError(t, err)

	text, usage, err := Collect(ch)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	require.NotNil(t, usage)
	assert.Equal(t, 2, usage.OutputTokens)
}

func TestIrisClient_StreamError(t *testing.T) {
	p := &fakeProvider{stream: newStream([]string{"partial"}, nil, errors.New("stream broke"))}
	ch, err := NewIrisClient(p).Stream(context.Background(), UserPrompt("m", "", "hi"))
	require.NoError(t, err)

	text, _, err := Collect(ch)
	assert.EqualError(t, err, "stream broke")
	assert.Equal(t, "partial", text)
}

func TestNewOllamaDefaults(t *testing.T) {
	c := NewOllama("")
	assert.NotNil(t, c)
	c2, err := NewProvider("ollama", "http://example:11434")
	require.NoError(t, err)
	assert.NotNil(t, c2)
}
