package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/olorin-ai/investigation-engine/internal/state"
)

func TestIsForwardTransition(t *testing.T) {
	t.Parallel()

	assert.True(t, IsForwardTransition(state.PhaseInitialization, state.PhaseSnowflake))
	assert.True(t, IsForwardTransition(state.PhaseSnowflake, state.PhaseSummary))
	assert.True(t, IsForwardTransition(state.PhaseSummary, state.PhaseSummary))
	assert.False(t, IsForwardTransition(state.PhaseSummary, state.PhaseSnowflake))
	assert.False(t, IsForwardTransition("bogus", state.PhaseSummary))
}

func TestCeilingTables(t *testing.T) {
	t.Parallel()

	live := DefaultCeilings()
	assert.Equal(t, 8, live.SnowflakeLoops)
	assert.Equal(t, 10, live.ToolExecutionLoops)
	assert.Equal(t, 10, live.ToolCountCeiling)
	assert.Equal(t, 35, live.DomainAnalysisLoops)
	assert.Equal(t, 55, live.GlobalOrchestratorCalls)
	assert.Equal(t, 70, live.RecursionBudget())

	test := TestCeilings()
	assert.Equal(t, 6, test.SnowflakeLoops)
	assert.Equal(t, 8, test.ToolExecutionLoops)
	assert.Equal(t, 8, test.ToolCountCeiling)
	assert.Equal(t, 30, test.DomainAnalysisLoops)
	assert.Equal(t, 45, test.GlobalOrchestratorCalls)
	assert.Equal(t, 60, test.RecursionBudget())
}

func TestEntryPreconditions(t *testing.T) {
	t.Parallel()

	st := &state.InvestigationState{CurrentPhase: state.PhaseSnowflake}
	assert.False(t, EntryAllowed(st, state.PhaseToolExecution))
	st.SnowflakeCompleted = true
	assert.True(t, EntryAllowed(st, state.PhaseToolExecution))

	st = &state.InvestigationState{CurrentPhase: state.PhaseToolExecution, SnowflakeCompleted: true}
	assert.False(t, EntryAllowed(st, state.PhaseDomainAnalysis))
	st.ToolExecutionAttempts = 1
	assert.True(t, EntryAllowed(st, state.PhaseDomainAnalysis))

	st = &state.InvestigationState{CurrentPhase: state.PhaseDomainAnalysis}
	assert.False(t, EntryAllowed(st, state.PhaseComplete))
	st.CurrentPhase = state.PhaseSummary
	assert.True(t, EntryAllowed(st, state.PhaseComplete))
}

func TestToolExecutionProgressionTriggers(t *testing.T) {
	t.Parallel()

	c := DefaultCeilings()
	st := &state.InvestigationState{ToolsUsed: map[string]struct{}{}}
	assert.False(t, ToolExecutionProgressionReady(st, c, 1))

	st.ToolExecutionAttempts = 4
	assert.True(t, ToolExecutionProgressionReady(st, c, 1))

	st.ToolExecutionAttempts = 0
	for i := 0; i < 10; i++ {
		st.ToolsUsed[string(rune('a'+i))] = struct{}{}
	}
	assert.True(t, ToolExecutionProgressionReady(st, c, 1))

	st.ToolsUsed = map[string]struct{}{}
	assert.True(t, ToolExecutionProgressionReady(st, c, 10))
}

func TestDomainOrderAndCompletion(t *testing.T) {
	t.Parallel()

	st := &state.InvestigationState{}
	next, ok := NextIncompleteDomain(st)
	assert.True(t, ok)
	assert.Equal(t, "network", next)

	st.DomainsCompleted = []string{"network", "device", "location", "logs", "authentication", "web", "merchant"}
	next, ok = NextIncompleteDomain(st)
	assert.True(t, ok)
	assert.Equal(t, "risk", next)

	st.DomainsCompleted = append(st.DomainsCompleted, "risk")
	assert.True(t, AllDomainsComplete(st))
	_, ok = NextIncompleteDomain(st)
	assert.False(t, ok)
}

func TestRemediationPendingGatesExit(t *testing.T) {
	t.Parallel()

	st := &state.InvestigationState{
		DomainsCompleted: RequiredDomains(),
		DomainFindings:   map[string]state.DomainFinding{"network": {RiskScore: 0.6}},
	}
	assert.True(t, RemediationPending(st))

	next, ok := NextIncompleteDomain(st)
	assert.True(t, ok)
	assert.Equal(t, RemediationDomain, next)

	c := DefaultCeilings()
	assert.False(t, DomainAnalysisProgressionReady(st, c, 1))

	st.DomainsCompleted = append(st.DomainsCompleted, RemediationDomain)
	assert.False(t, RemediationPending(st))
	assert.True(t, DomainAnalysisProgressionReady(st, c, 1))

	// Low risk everywhere: remediation never pends.
	st2 := &state.InvestigationState{
		DomainsCompleted: RequiredDomains(),
		DomainFindings:   map[string]state.DomainFinding{"network": {RiskScore: 0.1}},
	}
	assert.False(t, RemediationPending(st2))
	assert.True(t, DomainAnalysisProgressionReady(st2, c, 1))
}

func TestDomainAnalysisCeilingForcesProgression(t *testing.T) {
	t.Parallel()

	c := DefaultCeilings()
	st := &state.InvestigationState{}
	assert.False(t, DomainAnalysisProgressionReady(st, c, c.DomainAnalysisLoops-1))
	assert.True(t, DomainAnalysisProgressionReady(st, c, c.DomainAnalysisLoops))
}
