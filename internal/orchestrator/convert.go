package orchestrator

import (
	"github.com/olorin-ai/investigation-engine/internal/llm"
	"github.com/olorin-ai/investigation-engine/internal/state"
)

// toLLMMessages converts the transcript into the provider-agnostic wire
// shape, skipping system messages: the orchestrator rebuilds its own system
// section on every turn.
func toLLMMessages(history []state.Message) []*llm.Message {
	out := make([]*llm.Message, 0, len(history))
	for _, m := range history {
		switch m.Kind {
		case state.MessageSystem:
			continue
		case state.MessageHuman:
			out = append(out, llm.Human(m.Text))
		case state.MessageAI:
			out = append(out, toLLMAssistant(m))
		case state.MessageTool:
			out = append(out, toLLMTool(m))
		}
	}
	return out
}

func toLLMAssistant(m state.Message) *llm.Message {
	parts := make([]llm.Part, 0, 1+len(m.ToolCalls))
	if m.Text != "" {
		parts = append(parts, llm.TextPart{Text: m.Text})
	}
	for _, tc := range m.ToolCalls {
		parts = append(parts, llm.ToolUsePart{ID: tc.CallID, Name: tc.Name, Input: tc.Input})
	}
	return &llm.Message{Role: llm.RoleAssistant, Parts: parts}
}

func toLLMTool(m state.Message) *llm.Message {
	var content any
	isError := m.Payload.Kind == state.ToolPayloadError
	switch m.Payload.Kind {
	case state.ToolPayloadParsed:
		content = m.Payload.Parsed
	case state.ToolPayloadRaw:
		content = string(m.Payload.Raw)
	case state.ToolPayloadError:
		content = m.Payload.ErrorMessage
	}
	return &llm.Message{
		Role: llm.RoleTool,
		Parts: []llm.Part{llm.ToolResultPart{
			ToolUseID: m.CallID,
			Name:      m.ToolName,
			Content:   content,
			IsError:   isError,
		}},
	}
}

// fromLLMResponse converts a completed LLM turn into the state AI message it
// produces, extracting any requested tool calls.
func fromLLMResponse(resp *llm.Response) state.Message {
	if resp == nil || resp.Message == nil {
		return state.AI("")
	}
	calls := make([]state.ToolCallRequest, 0, len(resp.Message.Parts))
	for _, p := range resp.Message.Parts {
		if tu, ok := p.(llm.ToolUsePart); ok {
			calls = append(calls, state.ToolCallRequest{CallID: tu.ID, Name: tu.Name, Input: tu.Input})
		}
	}
	return state.AI(resp.Message.Text(), calls...)
}
