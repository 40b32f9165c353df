// Package mock provides a deterministic llm.Client for tests: a fixed
// sequence of canned responses replayed in call order, with no network
// access and no randomness. Used to exercise the orchestrator and graph
// runtime without a live provider.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/olorin-ai/investigation-engine/internal/llm"
)

// Step is one canned response in a Client's replay sequence. Exactly one of
// Text or ToolCalls should be set.
type Step struct {
	Text      string
	ToolCalls []llm.ToolUsePart
	// Err, when non-nil, is returned instead of a Response for this step.
	Err error
}

// Client replays a fixed Step sequence regardless of the Request content.
// Calling Complete past the end of the sequence repeats the final step,
// which keeps a runaway-loop test (an orchestrator that never advances)
// from panicking instead of hitting its ceiling.
type Client struct {
	mu    sync.Mutex
	steps []Step
	calls int
}

// New constructs a Client that replays steps in order.
func New(steps ...Step) *Client {
	return &Client{steps: steps}
}

// Calls reports how many times Complete has been invoked.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Complete implements llm.Client.
func (c *Client) Complete(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	idx := c.calls
	c.calls++
	c.mu.Unlock()

	if len(c.steps) == 0 {
		return &llm.Response{Message: llm.Human(""), StopReason: "end_turn"}, nil
	}
	if idx >= len(c.steps) {
		idx = len(c.steps) - 1
	}
	step := c.steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	msg := &llm.Message{Role: llm.RoleAssistant}
	if step.Text != "" {
		msg.Parts = append(msg.Parts, llm.TextPart{Text: step.Text})
	}
	for _, tc := range step.ToolCalls {
		msg.Parts = append(msg.Parts, tc)
	}
	stop := "end_turn"
	if len(step.ToolCalls) > 0 {
		stop = "tool_use"
	}
	return &llm.Response{Message: msg, StopReason: stop}, nil
}

// ToolCall is a convenience constructor for a canned ToolUsePart.
func ToolCall(id, name string, input any) llm.ToolUsePart {
	raw, err := json.Marshal(input)
	if err != nil {
		raw = json.RawMessage("{}")
	}
	return llm.ToolUsePart{ID: id, Name: name, Input: raw}
}

// WarehouseQueryInvestigation builds the canonical deterministic sequence
// used by the end-to-end fixtures: an opening acknowledgment, the warehouse
// query call, one tool call per domain-relevant tool, then a plain text
// completion for every call thereafter.
func WarehouseQueryInvestigation(entityType, entityID string, dateRangeDays int, warehouseToolName string, domainTools ...string) *Client {
	steps := []Step{
		{Text: fmt.Sprintf("Opening investigation into %s %s.", entityType, entityID)},
		{ToolCalls: []llm.ToolUsePart{ToolCall("call-0", warehouseToolName, map[string]any{
			"entity_type":     entityType,
			"entity_id":       entityID,
			"date_range_days": dateRangeDays,
		})}},
	}
	for i, name := range domainTools {
		steps = append(steps, Step{ToolCalls: []llm.ToolUsePart{
			ToolCall(fmt.Sprintf("call-%d", i+1), name, map[string]any{"entity_id": entityID}),
		}})
	}
	steps = append(steps, Step{Text: "proceeding to domain analysis"})
	return New(steps...)
}
