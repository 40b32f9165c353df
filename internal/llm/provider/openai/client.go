// Package openai adapts the investigation engine's provider-agnostic
// llm.Client to the OpenAI Chat Completions API via
// github.com/openai/openai-go.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/olorin-ai/investigation-engine/internal/llm"
)

type (
	// ChatClient captures the subset of openai-go used by the adapter.
	ChatClient interface {
		New(ctx context.Context, params oa.ChatCompletionNewParams, opts ...option.RequestOption) (*oa.ChatCompletion, error)
	}

	// Options configures the adapter's model selection.
	Options struct {
		DefaultModel string
		HighModel    string
		SmallModel   string
		MaxTokens    int
		Temperature  float64
	}

	// Client implements llm.Client via OpenAI Chat Completions.
	Client struct {
		chat       ChatClient
		defaultMod string
		highMod    string
		smallMod   string
		maxTok     int
		temp       float64
	}
)

// New builds an OpenAI-backed llm.Client from an existing chat completions
// service (or a test double satisfying ChatClient).
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{
		chat:       chat,
		defaultMod: opts.DefaultModel,
		highMod:    opts.HighModel,
		smallMod:   opts.SmallModel,
		maxTok:     opts.MaxTokens,
		temp:       opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client reading OPENAI_API_KEY via the SDK's
// default option chain.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	client := oa.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Chat.Completions, Options{DefaultModel: defaultModel})
}

// Complete renders one chat completion request.
func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	params := oa.ChatCompletionNewParams{
		Model:    c.resolveModelID(req),
		Messages: encodeMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = oa.Int(int64(req.MaxTokens))
	} else if c.maxTok > 0 {
		params.MaxCompletionTokens = oa.Int(int64(c.maxTok))
	}
	temp := float64(req.Temperature)
	if temp <= 0 {
		temp = c.temp
	}
	if temp > 0 {
		params.Temperature = oa.Float(temp)
	}
	if tools := encodeTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	return translateResponse(resp), nil
}

func (c *Client) resolveModelID(req *llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	switch req.ModelClass {
	case llm.ModelClassHighReasoning:
		if c.highMod != "" {
			return c.highMod
		}
	case llm.ModelClassSmall:
		if c.smallMod != "" {
			return c.smallMod
		}
	}
	return c.defaultMod
}

func encodeMessages(msgs []*llm.Message) []oa.ChatCompletionMessageParamUnion {
	out := make([]oa.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		text := m.Text()
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, oa.SystemMessage(text))
		case llm.RoleHuman:
			out = append(out, oa.UserMessage(text))
		case llm.RoleAssistant:
			assistant := oa.ChatCompletionAssistantMessageParam{}
			if text != "" {
				assistant.Content.OfString = oa.String(text)
			}
			for _, tc := range m.ToolCalls() {
				assistant.ToolCalls = append(assistant.ToolCalls, oa.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: oa.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			out = append(out, oa.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case llm.RoleTool:
			for _, p := range m.Parts {
				if tr, ok := p.(llm.ToolResultPart); ok {
					out = append(out, oa.ToolMessage(contentString(tr.Content), tr.ToolUseID))
				}
			}
		}
	}
	return out
}

func contentString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []byte:
		return string(c)
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func encodeTools(defs []*llm.ToolDefinition) []oa.ChatCompletionToolParam {
	if len(defs) == 0 {
		return nil
	}
	out := make([]oa.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		var params map[string]any
		if raw, err := json.Marshal(def.InputSchema); err == nil {
			_ = json.Unmarshal(raw, &params)
		}
		out = append(out, oa.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: oa.String(def.Description),
				Parameters:  params,
			},
		})
	}
	return out
}

func translateResponse(resp *oa.ChatCompletion) *llm.Response {
	out := &llm.Message{Role: llm.RoleAssistant}
	stop := ""
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		stop = string(choice.FinishReason)
		if choice.Message.Content != "" {
			out.Parts = append(out.Parts, llm.TextPart{Text: choice.Message.Content})
		}
		for _, tc := range choice.Message.ToolCalls {
			out.Parts = append(out.Parts, llm.ToolUsePart{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: json.RawMessage(tc.Function.Arguments),
			})
		}
	}
	return &llm.Response{
		Message: out,
		Usage: llm.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
		StopReason: stop,
	}
}

// classifyError maps an OpenAI SDK error into the llm.* error kind taxonomy.
func classifyError(err error) error {
	var apiErr *oa.Error
	if !errors.As(err, &apiErr) {
		return llm.NewProviderError("openai", "chat.completions.new", llm.ErrorKindTransient, "", err.Error(), "", err)
	}
	kind := llm.ErrorKindTransient
	switch apiErr.StatusCode {
	case 400:
		kind = llm.ErrorKindContextLength
	case 404:
		kind = llm.ErrorKindModelNotFound
	case 429:
		kind = llm.ErrorKindRateLimit
	case 500, 502, 503:
		kind = llm.ErrorKindTransient
	}
	return llm.NewProviderError("openai", "chat.completions.new", kind, fmt.Sprintf("%d", apiErr.StatusCode), apiErr.Error(), "", err)
}
