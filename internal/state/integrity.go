package state

import "fmt"

// validPhases indexes every known phase for integrity checking.
var validPhases = map[Phase]struct{}{
	PhaseInitialization: {}, PhaseSnowflake: {}, PhaseToolExecution: {},
	PhaseDomainAnalysis: {}, PhaseSummary: {}, PhaseComplete: {},
}

// ValidateIntegrity checks the record's structural invariants against
// a snapshot. A non-nil return is a programmer error: state was mutated
// outside the merge discipline, and the Graph Runtime aborts the
// investigation rather than continuing on corrupt state.
func ValidateIntegrity(st *InvestigationState) error {
	if st == nil {
		return fmt.Errorf("state: nil snapshot")
	}
	if _, ok := validPhases[st.CurrentPhase]; !ok {
		return fmt.Errorf("state: unknown phase %q", st.CurrentPhase)
	}
	if st.OrchestratorLoops < 0 || st.ToolExecutionAttempts < 0 {
		return fmt.Errorf("state: negative counter (loops=%d attempts=%d)", st.OrchestratorLoops, st.ToolExecutionAttempts)
	}
	if st.PhaseEnteredAtLoop > st.OrchestratorLoops {
		return fmt.Errorf("state: phase entered at loop %d but only %d loops recorded", st.PhaseEnteredAtLoop, st.OrchestratorLoops)
	}

	// snowflake_completed implies snowflake_data present.
	if st.SnowflakeCompleted && st.SnowflakeData == nil {
		return fmt.Errorf("state: snowflake_completed without snowflake_data")
	}

	// A domain completes at most once.
	seen := make(map[string]struct{}, len(st.DomainsCompleted))
	for _, d := range st.DomainsCompleted {
		if _, dup := seen[d]; dup {
			return fmt.Errorf("state: domain %q completed twice", d)
		}
		seen[d] = struct{}{}
	}

	// A recorded finding must sit inside its declared bounds.
	for name, f := range st.DomainFindings {
		if f.RiskScore < 0 || f.RiskScore > 1 || f.Confidence < 0 || f.Confidence > 1 {
			return fmt.Errorf("state: domain %q finding out of bounds (risk=%v confidence=%v)", name, f.RiskScore, f.Confidence)
		}
	}

	// Every tool call in an AI message is answered by one Tool
	// message per call-id before the next AI message.
	if err := validateMessageOrdering(st.Messages); err != nil {
		return err
	}

	// A domain may only appear complete if the investigation ever reached
	// domain_analysis.
	if len(st.DomainsCompleted) > 0 && phaseIndexOf(st.CurrentPhase) < phaseIndexOf(PhaseDomainAnalysis) {
		return fmt.Errorf("state: domains completed before domain_analysis was reached")
	}

	return nil
}

func phaseIndexOf(p Phase) int {
	order := []Phase{PhaseInitialization, PhaseSnowflake, PhaseToolExecution, PhaseDomainAnalysis, PhaseSummary, PhaseComplete}
	for i, v := range order {
		if v == p {
			return i
		}
	}
	return -1
}

// validateMessageOrdering enforces tool-call/result pairing over the
// transcript, allowing
// the final AI message's calls to still be pending (the Router resolves
// them on the next turn).
func validateMessageOrdering(messages []Message) error {
	pending := make(map[string]struct{})
	for i, m := range messages {
		switch m.Kind {
		case MessageAI:
			if len(pending) > 0 {
				return fmt.Errorf("state: message %d is an AI message while %d tool calls are unresolved", i, len(pending))
			}
			for _, tc := range m.ToolCalls {
				pending[tc.CallID] = struct{}{}
			}
		case MessageTool:
			delete(pending, m.CallID)
		}
	}
	return nil
}
