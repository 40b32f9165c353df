package graph

import (
	"context"
	"fmt"

	"github.com/olorin-ai/investigation-engine/internal/state"
	"github.com/olorin-ai/investigation-engine/internal/tools"
	"github.com/olorin-ai/investigation-engine/internal/warehouse"
)

// toolsNode resolves the last AI message's tool calls: it runs them through
// the executor (concurrently, results re-ordered to request order) and
// appends one Tool message per call. A warehouse result additionally
// populates snowflake_data and marks the mandatory phase complete.
func (r *Runtime) toolsNode(ctx context.Context, st *state.InvestigationState) (state.StateUpdate, error) {
	calls := pendingToolCalls(st)
	if len(calls) == 0 {
		return state.StateUpdate{}, fmt.Errorf("tools node invoked with no pending tool calls")
	}

	results := r.opts.Executor.Execute(ctx, st.InvestigationID, calls)

	update := state.StateUpdate{
		ToolResults: make(map[string]any),
	}
	if st.CurrentPhase == state.PhaseToolExecution {
		update.IncrementToolExecutionAttempts = true
	}

	for _, res := range results {
		update.ToolsUsed = append(update.ToolsUsed, res.Name)
		switch {
		case res.IsError:
			update.AppendMessages = append(update.AppendMessages,
				state.ToolErr(res.CallID, res.Name, string(res.Err.Kind), res.Err.Message))
		case res.Format == "raw":
			update.AppendMessages = append(update.AppendMessages,
				state.ToolRaw(res.CallID, res.Name, res.Raw, "application/octet-stream"))
			update.ToolResults[res.Name] = res.Raw
		default:
			update.AppendMessages = append(update.AppendMessages,
				state.ToolParsed(res.CallID, res.Name, res.Parsed))
			update.ToolResults[res.Name] = res.Parsed

			if res.Name == warehouse.ToolName {
				if parsed, ok := res.Parsed.(*state.SnowflakeResult); ok {
					completed := true
					update.SnowflakeData = parsed
					update.SnowflakeCompleted = &completed
				}
			}
		}
	}
	return update, nil
}

// pendingToolCalls extracts the unresolved tool calls from the last message
// when it is a tool-call-bearing AI message.
func pendingToolCalls(st *state.InvestigationState) []tools.Call {
	if len(st.Messages) == 0 {
		return nil
	}
	last := st.Messages[len(st.Messages)-1]
	if !last.HasUnresolvedToolCalls() {
		return nil
	}
	calls := make([]tools.Call, 0, len(last.ToolCalls))
	for _, tc := range last.ToolCalls {
		calls = append(calls, tools.Call{ID: tc.CallID, Name: tc.Name, Input: tc.Input})
	}
	return calls
}
