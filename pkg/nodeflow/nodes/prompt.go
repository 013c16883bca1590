package nodes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/llm"
)

// Filter modes for the prompt node's "Response" output.
const (
	FilterNone    = "None"
	FilterRemove  = "Remove Pattern"
	FilterExtract = "Extract Pattern"
)

const (
	defaultModel   = "llama3.2"
	placeholder    = "Processing..."
	statusInterval = 5
)

// ErrNoClient is the fault of a prompt node without an LLM client.
var ErrNoClient = errors.New("no LLM client configured")

// Prompt streams a completion for "User Prompt" (or the "user_prompt"
// property) and outputs the raw text on "Raw Response" and the filtered
// text on "Response". It runs asynchronously and honours Node.Stop.
func Prompt(deps Deps) nodeflow.NodeSpec {
	model := deps.DefaultModel
	if model == "" {
		model = defaultModel
	}
	return nodeflow.NodeSpec{
		Title: "LLM Prompt",
		Inputs: []nodeflow.PortSpec{
			{Name: "System Prompt", Kind: nodeflow.KindString},
			{Name: "User Prompt", Kind: nodeflow.KindString},
		},
		Outputs: []nodeflow.PortSpec{
			{Name: "Raw Response", Kind: nodeflow.KindString},
			{Name: "Response", Kind: nodeflow.KindString},
		},
		Properties: map[string]any{
			"model":           model,
			"system_prompt":   "You are a helpful assistant.",
			"user_prompt":     "",
			"temperature":     0.7,
			"max_tokens":      2048,
			"filter_mode":     FilterRemove,
			"filter_pattern":  `<think>.*?</think>`,
			"use_regex_flags": true,
			"dotall_flag":     true,
			"multiline_flag":  true,
			"ignorecase_flag": false,
		},
		Async: true,
		Body:  &promptBody{client: deps.LLM},
	}
}

type promptBody struct {
	client llm.Client
}

func (b *promptBody) Execute(ec *nodeflow.ExecContext) (nodeflow.Outputs, error) {
	system := textInput(ec, "System Prompt", "system_prompt")
	user := textInput(ec, "User Prompt", "user_prompt")

	if user == "" {
		ec.SetCompleteStatus("No user prompt input")
		out := nodeflow.Outputs{"Raw Response": "", "Response": ""}
		ec.Complete(out, nil)
		return out, nil
	}
	if b.client == nil {
		return nil, ErrNoClient
	}

	props := ec.Props()
	req := llm.UserPrompt(props.String("model", defaultModel), system, user)
	if props.Has("temperature") {
		t := props.Float("temperature", 0.7)
		req.Temperature = &t
	}
	if props.Has("max_tokens") {
		n := props.Int("max_tokens", 2048)
		req.MaxTokens = &n
	}

	stream, err := b.client.Stream(ec, req)
	if err != nil {
		return nil, err
	}
	ec.SetStatus("Generating...")
	go b.consume(ec, stream, props)

	return nodeflow.Outputs{"Raw Response": placeholder, "Response": placeholder}, nil
}

func (b *promptBody) consume(ec *nodeflow.ExecContext, stream <-chan llm.StreamChunk, props config.Config) {
	start := time.Now()
	var sb strings.Builder
	tokens := 0
	rate := func() float64 {
		if s := time.Since(start).Seconds(); s > 0 {
			return float64(tokens) / s
		}
		return 0
	}

	for chunk := range stream {
		if chunk.Error != nil {
			if ec.Stopped() {
				ec.Logger().Debug("generation stopped", "tokens", tokens)
				return
			}
			ec.Complete(nil, chunk.Error)
			return
		}
		if chunk.Content == "" {
			continue
		}
		sb.WriteString(chunk.Content)
		tokens++
		if tokens%statusInterval == 0 {
			ec.SetStatus(fmt.Sprintf("Generating: %d tokens (%.1f/s)", tokens, rate()))
		}
	}
	if ec.Stopped() {
		return
	}

	raw := sb.String()
	filtered := filterResponse(raw, props)
	ec.SetCompleteStatus(fmt.Sprintf("Complete: %d tokens (%.1f/s)", tokens, rate()))
	ec.Complete(nodeflow.Outputs{"Raw Response": raw, "Response": filtered}, nil)
}

// filterResponse applies the filter mode. An empty or invalid pattern
// leaves the text unchanged.
func filterResponse(text string, props config.Config) string {
	mode := props.String("filter_mode", FilterRemove)
	pattern := props.String("filter_pattern", "")
	if mode == FilterNone || mode == "" || pattern == "" {
		return text
	}

	var flags regexFlags
	if props.Bool("use_regex_flags", true) {
		flags = regexFlags{
			dotAll:     props.Bool("dotall_flag", true),
			multiline:  props.Bool("multiline_flag", true),
			ignoreCase: props.Bool("ignorecase_flag", false),
		}
	}
	re, err := compilePattern(pattern, flags)
	if err != nil {
		return text
	}

	switch mode {
	case FilterRemove:
		return re.ReplaceAllString(text, "")
	case FilterExtract:
		return strings.Join(findAll(re, text, ""), "\n")
	default:
		return text
	}
}
