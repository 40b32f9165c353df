// Package router implements the Router: a pure, side-effect-free
// function that selects the next graph node from an investigation's current
// state. Every verdict is accompanied by a RoutingDecision describing which
// of the seven precedence rules fired, for the routing audit trail.
package router

import (
	"time"

	"github.com/olorin-ai/investigation-engine/internal/phase"
	"github.com/olorin-ai/investigation-engine/internal/state"
)

// Node identifies the next graph node to execute.
type Node string

const (
	// NodeOrchestrator drives one orchestrator turn for the current phase.
	NodeOrchestrator Node = "orchestrator"
	// NodeTools executes pending tool calls from the last AI message.
	NodeTools Node = "tools"
	// NodeDomainAgent prefixed with a domain name selects a specific domain
	// agent; use DomainNode to construct one.
	NodeDomainAgent Node = "domain_agent"
	// NodeSummary runs the summary node.
	NodeSummary Node = "summary"
	// NodeTerminal ends the graph loop.
	NodeTerminal Node = "terminal"
)

// Verdict is the Router's decision: which node runs next, which rule fired,
// and (for NodeDomainAgent) which domain.
type Verdict struct {
	Node   Node
	Domain string // set only when Node == NodeDomainAgent
	Rule   int
	Reason string
}

// DomainNode constructs a Verdict routing to a specific domain agent.
func DomainNode(domain string, rule int, reason string) Verdict {
	return Verdict{Node: NodeDomainAgent, Domain: domain, Rule: rule, Reason: reason}
}

// Route selects the next node to execute. It consults only st
// and ceilings; calling it twice on an unchanged state yields an identical
// Verdict.
func Route(st *state.InvestigationState, ceilings phase.Ceilings) Verdict {
	// Rule 1: global orchestrator-call ceiling exceeded -> force summary.
	if st.CurrentPhase != state.PhaseSummary && st.CurrentPhase != state.PhaseComplete &&
		st.OrchestratorLoops > ceilings.GlobalOrchestratorCalls {
		return Verdict{Node: NodeSummary, Rule: 1, Reason: "global orchestrator-call ceiling exceeded"}
	}

	// Rule 2: last message is an AI message with unresolved tool calls.
	// Complete is terminal: a stray pending call never
	// resurrects a finished investigation.
	if last, ok := lastMessage(st); ok && last.HasUnresolvedToolCalls() &&
		st.CurrentPhase != state.PhaseComplete {
		return Verdict{Node: NodeTools, Rule: 2, Reason: "unresolved tool calls pending"}
	}

	// Rule 3: forced-progression trigger satisfied for the current phase.
	if reason, ok := forcedProgression(st, ceilings); ok {
		return Verdict{Node: NodeOrchestrator, Rule: 3, Reason: reason}
	}

	// Rule 4: domain_analysis with an incomplete required domain.
	if st.CurrentPhase == state.PhaseDomainAnalysis {
		if domain, ok := phase.NextIncompleteDomain(st); ok {
			return DomainNode(domain, 4, "next incomplete required domain: "+domain)
		}
	}

	// Rule 5: summary phase routes to summary.
	if st.CurrentPhase == state.PhaseSummary {
		return Verdict{Node: NodeSummary, Rule: 5, Reason: "current phase is summary"}
	}

	// Rule 6: complete is terminal.
	if st.CurrentPhase == state.PhaseComplete {
		return Verdict{Node: NodeTerminal, Rule: 6, Reason: "investigation complete"}
	}

	// Rule 7: default to the orchestrator.
	return Verdict{Node: NodeOrchestrator, Rule: 7, Reason: "default orchestrator turn"}
}

// RecordDecision builds the RoutingDecision audit record for a Verdict,
// capturing the state snapshot inputs the rule consulted.
func RecordDecision(v Verdict, st *state.InvestigationState, at time.Time) state.RoutingDecision {
	inputs := map[string]any{
		"current_phase":       st.CurrentPhase,
		"orchestrator_loops":  st.OrchestratorLoops,
		"loops_in_phase":      st.LoopsInPhase(),
		"tools_used":          len(st.ToolsUsed),
		"domains_completed":   len(st.DomainsCompleted),
		"snowflake_completed": st.SnowflakeCompleted,
	}
	if v.Node == NodeDomainAgent {
		inputs["domain"] = v.Domain
	}
	return state.RoutingDecision{
		Rule:   v.Rule,
		Reason: v.Reason,
		Inputs: inputs,
		At:     at,
	}
}

func lastMessage(st *state.InvestigationState) (state.Message, bool) {
	if len(st.Messages) == 0 {
		return state.Message{}, false
	}
	return st.Messages[len(st.Messages)-1], true
}

// forcedProgression checks the current phase's progression triggers and returns a human-readable reason when one is satisfied.
func forcedProgression(st *state.InvestigationState, ceilings phase.Ceilings) (string, bool) {
	loopsInPhase := st.LoopsInPhase()
	switch st.CurrentPhase {
	case state.PhaseSnowflake:
		if phase.SnowflakeProgressionReady(st, ceilings, loopsInPhase) {
			return "snowflake progression trigger satisfied", true
		}
	case state.PhaseToolExecution:
		if phase.ToolExecutionProgressionReady(st, ceilings, loopsInPhase) {
			return "tool_execution progression trigger satisfied", true
		}
	case state.PhaseDomainAnalysis:
		if phase.DomainAnalysisProgressionReady(st, ceilings, loopsInPhase) {
			return "domain_analysis progression trigger satisfied", true
		}
	}
	return "", false
}
