// Package state implements the State Store: the single mutable
// InvestigationState record, its Message and StateUpdate sum types, and the
// merge semantics nodes use to publish updates.
package state

import "encoding/json"

// MessageKind identifies which Message variant a record carries.
type MessageKind string

const (
	MessageSystem MessageKind = "system"
	MessageHuman  MessageKind = "human"
	MessageAI     MessageKind = "ai"
	MessageTool   MessageKind = "tool"
)

// ToolCallRequest is one tool invocation requested by an AI message.
type ToolCallRequest struct {
	CallID string
	Name   string
	Input  json.RawMessage
}

// ToolPayloadKind identifies which ToolPayload variant a Tool message
// carries.
type ToolPayloadKind string

const (
	ToolPayloadParsed ToolPayloadKind = "parsed"
	ToolPayloadRaw    ToolPayloadKind = "raw"
	ToolPayloadError  ToolPayloadKind = "error"
)

// ToolPayload is the sum type {Parsed(JSON), Raw(bytes, content_type),
// Error(kind, message)} a Tool message carries.
type ToolPayload struct {
	Kind ToolPayloadKind

	// Parsed holds the structured result when Kind is ToolPayloadParsed.
	Parsed any

	// Raw and ContentType hold the result when Kind is ToolPayloadRaw.
	Raw         []byte
	ContentType string

	// ErrorKind and ErrorMessage hold the failure when Kind is
	// ToolPayloadError (mirrors a toolerrors.Kind value without importing
	// the toolerrors package, keeping state dependency-free).
	ErrorKind    string
	ErrorMessage string
}

// Message is one append-only record in an investigation's transcript. Role
// selects the variant: System and Human carry only Text; AI optionally
// carries ToolCalls; Tool carries Name and Payload.
type Message struct {
	Kind MessageKind
	Text string

	// ToolCalls is set only for Kind == MessageAI, when the model requested
	// one or more tool invocations in this turn.
	ToolCalls []ToolCallRequest

	// ToolName and Payload are set only for Kind == MessageTool.
	ToolName string
	Payload  ToolPayload

	// CallID correlates a Tool message back to the ToolCallRequest it
	// resolves.
	CallID string
}

// System constructs a system-role message.
func System(text string) Message { return Message{Kind: MessageSystem, Text: text} }

// Human constructs a human-role message.
func Human(text string) Message { return Message{Kind: MessageHuman, Text: text} }

// AI constructs an assistant message, optionally carrying tool-call
// requests.
func AI(text string, toolCalls ...ToolCallRequest) Message {
	return Message{Kind: MessageAI, Text: text, ToolCalls: toolCalls}
}

// ToolParsed constructs a successful Tool message carrying a structured
// result.
func ToolParsed(callID, name string, parsed any) Message {
	return Message{
		Kind:     MessageTool,
		ToolName: name,
		CallID:   callID,
		Payload:  ToolPayload{Kind: ToolPayloadParsed, Parsed: parsed},
	}
}

// ToolRaw constructs a successful Tool message carrying raw bytes.
func ToolRaw(callID, name string, raw []byte, contentType string) Message {
	return Message{
		Kind:     MessageTool,
		ToolName: name,
		CallID:   callID,
		Payload:  ToolPayload{Kind: ToolPayloadRaw, Raw: raw, ContentType: contentType},
	}
}

// ToolErr constructs a failed Tool message.
func ToolErr(callID, name, kind, message string) Message {
	return Message{
		Kind:     MessageTool,
		ToolName: name,
		CallID:   callID,
		Payload:  ToolPayload{Kind: ToolPayloadError, ErrorKind: kind, ErrorMessage: message},
	}
}

// HasUnresolvedToolCalls reports whether this AI message requested tool
// calls that have not yet been answered by Tool messages (the caller is
// expected to check against the remainder of the transcript; this only
// reports whether the message itself is a tool-call-bearing AI message).
func (m Message) HasUnresolvedToolCalls() bool {
	return m.Kind == MessageAI && len(m.ToolCalls) > 0
}
