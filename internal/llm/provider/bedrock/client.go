// Package bedrock adapts the investigation engine's provider-agnostic
// llm.Client to the AWS Bedrock Converse API via
// github.com/aws/aws-sdk-go-v2/service/bedrockruntime.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/olorin-ai/investigation-engine/internal/llm"
)

// RuntimeClient is the subset of the Bedrock runtime client used by the
// adapter, satisfied by *bedrockruntime.Client or a test double.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the Bedrock adapter's model selection.
type Options struct {
	DefaultModel string
	HighModel    string
	SmallModel   string
	MaxTokens    int
	Temperature  float32
}

// Client implements llm.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	highModel    string
	smallModel   string
	maxTok       int
	temp         float32
}

// New builds a Bedrock-backed llm.Client.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{
		runtime:      runtime,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// Complete issues a Converse call and translates the response into the
// generic llm.Response shape.
func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	messages, system := encodeMessages(req.Messages)
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.resolveModelID(req)),
		Messages: messages,
	}
	if len(system) > 0 {
		input.System = system
	}
	if toolCfg := encodeTools(req.Tools); toolCfg != nil {
		input.ToolConfig = toolCfg
	}
	inferenceCfg := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inferenceCfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
	} else if c.maxTok > 0 {
		inferenceCfg.MaxTokens = aws.Int32(int32(c.maxTok))
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = c.temp
	}
	if temp > 0 {
		inferenceCfg.Temperature = aws.Float32(temp)
	}
	input.InferenceConfig = inferenceCfg

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, classifyError(err)
	}
	return translateResponse(out)
}

func (c *Client) resolveModelID(req *llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	switch req.ModelClass {
	case llm.ModelClassHighReasoning:
		if c.highModel != "" {
			return c.highModel
		}
	case llm.ModelClassSmall:
		if c.smallModel != "" {
			return c.smallModel
		}
	}
	return c.defaultModel
}

func encodeMessages(msgs []*llm.Message) ([]brtypes.Message, []brtypes.SystemContentBlock) {
	out := make([]brtypes.Message, 0, len(msgs))
	var system []brtypes.SystemContentBlock
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == llm.RoleSystem {
			if text := m.Text(); text != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: text})
			}
			continue
		}
		var blocks []brtypes.ContentBlock
		for _, p := range m.Parts {
			switch v := p.(type) {
			case llm.TextPart:
				if v.Text != "" {
					blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
				}
			case llm.ToolUsePart:
				var input map[string]any
				_ = json.Unmarshal(v.Input, &input)
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(v.ID),
					Name:      aws.String(v.Name),
					Input:     document.NewLazyDocument(input),
				}})
			case llm.ToolResultPart:
				blocks = append(blocks, encodeToolResult(v))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == llm.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}
	return out, system
}

func encodeToolResult(v llm.ToolResultPart) brtypes.ContentBlock {
	status := brtypes.ToolResultStatusSuccess
	if v.IsError {
		status = brtypes.ToolResultStatusError
	}
	text := ""
	switch c := v.Content.(type) {
	case string:
		text = c
	case []byte:
		text = string(c)
	default:
		if data, err := json.Marshal(c); err == nil {
			text = string(data)
		}
	}
	return &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
		ToolUseId: aws.String(v.ToolUseID),
		Status:    status,
		Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: text}},
	}}
}

func encodeTools(defs []*llm.ToolDefinition) *brtypes.ToolConfiguration {
	if len(defs) == 0 {
		return nil
	}
	var specs []brtypes.Tool
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		var schema map[string]any
		if raw, err := json.Marshal(def.InputSchema); err == nil {
			_ = json.Unmarshal(raw, &schema)
		}
		specs = append(specs, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(def.Name),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}})
	}
	if len(specs) == 0 {
		return nil
	}
	return &brtypes.ToolConfiguration{Tools: specs}
}

func translateResponse(out *bedrockruntime.ConverseOutput) (*llm.Response, error) {
	member, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, errors.New("bedrock: unexpected converse output type")
	}
	msg := &llm.Message{Role: llm.RoleAssistant}
	for _, block := range member.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			if v.Value != "" {
				msg.Parts = append(msg.Parts, llm.TextPart{Text: v.Value})
			}
		case *brtypes.ContentBlockMemberToolUse:
			payload, _ := json.Marshal(v.Value.Input)
			msg.Parts = append(msg.Parts, llm.ToolUsePart{
				ID:    aws.ToString(v.Value.ToolUseId),
				Name:  aws.ToString(v.Value.Name),
				Input: payload,
			})
		}
	}
	resp := &llm.Response{Message: msg, StopReason: string(out.StopReason)}
	if out.Usage != nil {
		resp.Usage = llm.TokenUsage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	return resp, nil
}

// classifyError maps a Bedrock SDK error into the llm.* error kind taxonomy.
func classifyError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return llm.NewProviderError("bedrock", "converse", llm.ErrorKindTransient, "", err.Error(), "", err)
	}
	kind := llm.ErrorKindTransient
	switch apiErr.ErrorCode() {
	case "ValidationException":
		kind = llm.ErrorKindContextLength
	case "ResourceNotFoundException":
		kind = llm.ErrorKindModelNotFound
	case "ThrottlingException", "ServiceQuotaExceededException":
		kind = llm.ErrorKindRateLimit
	case "ModelTimeoutException", "InternalServerException", "ServiceUnavailableException":
		kind = llm.ErrorKindTransient
	}
	return llm.NewProviderError("bedrock", "converse", kind, apiErr.ErrorCode(), apiErr.ErrorMessage(), "", err)
}
