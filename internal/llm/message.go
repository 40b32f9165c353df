// Package llm defines the provider-agnostic request/response/message types
// used by the orchestrator, plus a ProviderError taxonomy
// mapped onto the investigation's llm.* error kinds. Concrete providers
// (Anthropic, OpenAI, Bedrock) and a deterministic mock live in the
// provider subpackages.
package llm

import "encoding/json"

// Role identifies the speaker for a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type (
	// Part is implemented by every message content block.
	Part interface {
		isPart()
	}

	// TextPart is plain text content.
	TextPart struct {
		Text string
	}

	// ThinkingPart carries provider-issued extended-thinking content. Treated
	// as opaque diagnostic text; never parsed for routing decisions.
	ThinkingPart struct {
		Text      string
		Signature string
		Final     bool
	}

	// ToolUsePart declares a tool invocation requested by the model.
	ToolUsePart struct {
		// ID correlates this request to the eventual ToolResultPart.
		ID string
		// Name is the tool identifier as registered in the Tool Registry.
		Name string
		// Input is the raw JSON arguments supplied by the model.
		Input json.RawMessage
	}

	// ToolResultPart carries the outcome of a prior ToolUsePart, attached to
	// a Tool message so the model can read it on the next turn.
	ToolResultPart struct {
		ToolUseID string
		Name      string
		Content   any
		IsError   bool
	}

	// CacheCheckpointPart marks a prompt-caching boundary. Provider adapters
	// translate it into provider-specific caching directives (for example,
	// Bedrock's cachePoint); providers without caching support ignore it.
	CacheCheckpointPart struct{}

	// Message is a single entry in an investigation's conversation
	// transcript. It mirrors the state package's Message sum type
	// {System, Human, AI(tool_calls?), Tool(name,payload)}: Role picks the
	// variant and Parts carries the variant's payload.
	Message struct {
		Role  Role
		Parts []Part
		Meta  map[string]any
	}
)

func (TextPart) isPart()            {}
func (ThinkingPart) isPart()        {}
func (ToolUsePart) isPart()         {}
func (ToolResultPart) isPart()      {}
func (CacheCheckpointPart) isPart() {}

// System constructs a system-role message from plain text.
func System(text string) *Message {
	return &Message{Role: RoleSystem, Parts: []Part{TextPart{Text: text}}}
}

// Human constructs a human-role message from plain text.
func Human(text string) *Message {
	return &Message{Role: RoleHuman, Parts: []Part{TextPart{Text: text}}}
}

// Tool constructs a tool-role message carrying one named result.
func Tool(name string, toolUseID string, content any, isError bool) *Message {
	return &Message{
		Role: RoleTool,
		Parts: []Part{ToolResultPart{
			ToolUseID: toolUseID,
			Name:      name,
			Content:   content,
			IsError:   isError,
		}},
	}
}

// ToolCalls extracts every ToolUsePart from an assistant message, in order.
func (m *Message) ToolCalls() []ToolUsePart {
	if m == nil {
		return nil
	}
	var calls []ToolUsePart
	for _, p := range m.Parts {
		if tu, ok := p.(ToolUsePart); ok {
			calls = append(calls, tu)
		}
	}
	return calls
}

// Text concatenates every TextPart in the message.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	var out string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}
