// Package phase defines the finite set of investigation phases, the legal
// transitions between them, and the per-phase loop/tool ceilings that bound
// an investigation's runtime in the presence of a non-deterministic,
// LLM-driven router.
package phase

import "github.com/olorin-ai/investigation-engine/internal/state"

// Sequence is the only legal forward order of phases. Transitions never move backward.
var Sequence = []state.Phase{
	state.PhaseInitialization,
	state.PhaseSnowflake,
	state.PhaseToolExecution,
	state.PhaseDomainAnalysis,
	state.PhaseSummary,
	state.PhaseComplete,
}

// index returns p's position in Sequence, or -1 if p is not a known phase.
func index(p state.Phase) int {
	for i, s := range Sequence {
		if s == p {
			return i
		}
	}
	return -1
}

// IsForwardTransition reports whether moving from `from` to `to` is legal:
// strictly later in Sequence, or a no-op (same phase).
func IsForwardTransition(from, to state.Phase) bool {
	fi, ti := index(from), index(to)
	if fi < 0 || ti < 0 {
		return false
	}
	return ti >= fi
}

// Ceilings holds the tunable per-phase numeric policy. A
// "test mode" flag tightens every limit; DefaultCeilings and TestCeilings
// below are the two standard configurations, but callers
// may construct any Ceilings value (for example, from YAML config).
type Ceilings struct {
	SnowflakeLoops          int
	ToolExecutionLoops      int
	ToolCountCeiling        int
	DomainAnalysisLoops     int
	GlobalOrchestratorCalls int
	// ToolExecutionAttempts is the fixed "attempts >= N" progression trigger;
	// it is not scaled by test mode.
	ToolExecutionAttempts int
	// RecursionMargin is added to GlobalOrchestratorCalls to produce the
	// Graph Runtime's recursion budget.
	RecursionMargin int
}

// DefaultCeilings is the live numeric policy.
func DefaultCeilings() Ceilings {
	return Ceilings{
		SnowflakeLoops:          8,
		ToolExecutionLoops:      10,
		ToolCountCeiling:        10,
		DomainAnalysisLoops:     35,
		GlobalOrchestratorCalls: 55,
		ToolExecutionAttempts:   4,
		RecursionMargin:         70 - 55,
	}
}

// TestCeilings is the test-mode policy: every limit tightened for fast,
// deterministic test runs.
func TestCeilings() Ceilings {
	return Ceilings{
		SnowflakeLoops:          6,
		ToolExecutionLoops:      8,
		ToolCountCeiling:        8,
		DomainAnalysisLoops:     30,
		GlobalOrchestratorCalls: 45,
		ToolExecutionAttempts:   4,
		RecursionMargin:         60 - 45,
	}
}

// RecursionBudget returns the Graph Runtime's recursion budget: the
// orchestrator-call ceiling plus its margin.
func (c Ceilings) RecursionBudget() int {
	return c.GlobalOrchestratorCalls + c.RecursionMargin
}

// LoopCeilingFor returns the loop ceiling that applies while in phase p, or
// 0 if the phase has no per-phase loop ceiling of its own (domain_analysis
// and snowflake_analysis count separately from the global orchestrator
// ceiling; tool_execution shares the orchestrator-loop counter with them).
func (c Ceilings) LoopCeilingFor(p state.Phase) int {
	switch p {
	case state.PhaseSnowflake:
		return c.SnowflakeLoops
	case state.PhaseToolExecution:
		return c.ToolExecutionLoops
	case state.PhaseDomainAnalysis:
		return c.DomainAnalysisLoops
	default:
		return 0
	}
}

// EntryAllowed reports whether st may transition into target, enforcing the
// phase-specific entry preconditions beyond simple forward order.
func EntryAllowed(st *state.InvestigationState, target state.Phase) bool {
	if !IsForwardTransition(st.CurrentPhase, target) {
		return false
	}
	switch target {
	case state.PhaseToolExecution:
		return st.SnowflakeCompleted
	case state.PhaseDomainAnalysis:
		return st.ToolExecutionAttempts >= 1
	case state.PhaseComplete:
		return st.CurrentPhase == state.PhaseSummary
	default:
		return true
	}
}

// requiredDomains is the fixed execution order domain_analysis must drive
// to exit cleanly. risk is the last of the "required" domains;
// remediation is conditional and not part of exit gating.
var requiredDomains = []string{
	"network", "device", "location", "logs", "authentication", "web", "merchant", "risk",
}

// RequiredDomains returns the fixed domain execution order.
func RequiredDomains() []string {
	out := make([]string, len(requiredDomains))
	copy(out, requiredDomains)
	return out
}

// AllDomainsComplete reports whether every required domain has an entry in
// st.DomainsCompleted.
func AllDomainsComplete(st *state.InvestigationState) bool {
	done := make(map[string]struct{}, len(st.DomainsCompleted))
	for _, d := range st.DomainsCompleted {
		done[d] = struct{}{}
	}
	for _, d := range requiredDomains {
		if _, ok := done[d]; !ok {
			return false
		}
	}
	return true
}

// NextIncompleteDomain returns the first domain in RequiredDomains order
// that has not yet completed, and true if one exists. Once every required
// domain is done it returns "remediation" while RemediationPending holds,
// so the conditional remediation pass runs after risk and before summary.
func NextIncompleteDomain(st *state.InvestigationState) (string, bool) {
	done := make(map[string]struct{}, len(st.DomainsCompleted))
	for _, d := range st.DomainsCompleted {
		done[d] = struct{}{}
	}
	for _, d := range requiredDomains {
		if _, ok := done[d]; !ok {
			return d, true
		}
	}
	if RemediationPending(st) {
		return RemediationDomain, true
	}
	return "", false
}

// RemediationDomain names the conditional post-risk pass.
const RemediationDomain = "remediation"

// remediationRiskThreshold is the labelled-risk level at or above which the
// remediation pass must run after risk completes.
const remediationRiskThreshold = 0.3

// RemediationPending reports whether the remediation pass still has to run:
// every required domain has completed, some labelled risk is at or above
// the threshold, and remediation itself has not run yet.
func RemediationPending(st *state.InvestigationState) bool {
	if !AllDomainsComplete(st) {
		return false
	}
	for _, d := range st.DomainsCompleted {
		if d == RemediationDomain {
			return false
		}
	}
	for _, f := range st.DomainFindings {
		if f.RiskScore >= remediationRiskThreshold {
			return true
		}
	}
	return false
}

// SnowflakeProgressionReady reports whether tool_execution may be entered
// from snowflake_analysis: either a warehouse Tool message has already been
// observed (SnowflakeCompleted), or the phase's loop ceiling has been
// reached (forced progression).
func SnowflakeProgressionReady(st *state.InvestigationState, c Ceilings, loopsInPhase int) bool {
	return st.SnowflakeCompleted || loopsInPhase >= c.SnowflakeLoops
}

// ToolExecutionProgressionReady reports whether domain_analysis may be
// entered from tool_execution, via any of its three triggers.
func ToolExecutionProgressionReady(st *state.InvestigationState, c Ceilings, loopsInPhase int) bool {
	if st.ToolExecutionAttempts >= c.ToolExecutionAttempts {
		return true
	}
	if len(st.ToolsUsed) >= c.ToolCountCeiling {
		return true
	}
	if loopsInPhase >= c.ToolExecutionLoops {
		return true
	}
	return false
}

// DomainAnalysisProgressionReady reports whether summary may be entered
// from domain_analysis: all required domains done, or the domain loop
// ceiling reached (forced progression).
func DomainAnalysisProgressionReady(st *state.InvestigationState, c Ceilings, loopsInPhase int) bool {
	if loopsInPhase >= c.DomainAnalysisLoops {
		return true
	}
	return AllDomainsComplete(st) && !RemediationPending(st)
}
