package orchestrator

import (
	"fmt"
	"strings"

	"github.com/olorin-ai/investigation-engine/internal/llm"
	"github.com/olorin-ai/investigation-engine/internal/phase"
	"github.com/olorin-ai/investigation-engine/internal/state"
)

// phaseContracts holds the phase-specific contract text rendered into the
// system section of every prompt.
var phaseContracts = map[state.Phase]string{
	state.PhaseInitialization: "You are opening a fraud investigation. Acknowledge the entity " +
		"under investigation and proceed; you may not call any tool in this phase.",
	state.PhaseSnowflake: "You must query the transaction warehouse for this entity before anything " +
		"else. Call the warehouse_query tool with the entity and date range; do not call any other tool first.",
	state.PhaseToolExecution: "Select additional investigative tools relevant to the warehouse data " +
		"already retrieved. You may request multiple tool calls in one turn. Do not re-query the warehouse.",
	state.PhaseSummary: "Synthesise a final risk assessment from the collected warehouse data, tool " +
		"results, and domain findings. You may not call any tool. End your response with a line of the " +
		"exact form \"RISK_SCORE: <number in [0,1]>\" on its own line, followed by your reasoning.",
}

// forbiddenActions lists the actions the phase contract prohibits, appended
// to the system section so the model sees them alongside its instructions.
var forbiddenActions = map[state.Phase][]string{
	state.PhaseInitialization: {"calling any tool"},
	state.PhaseSnowflake:      {"calling a non-warehouse tool before the warehouse query"},
	state.PhaseToolExecution:  {"re-querying the warehouse"},
	state.PhaseSummary:        {"calling any tool", "calling the LLM more than once"},
}

// BuildMessages constructs the full message list for one orchestrator LLM
// call: a system section (phase contract + forbidden actions + optional
// user-priority section), followed by the transcript filtered of prior
// system messages.
func BuildMessages(st *state.InvestigationState) []*llm.Message {
	system := systemSection(st)
	history := toLLMMessages(st.Messages)
	out := make([]*llm.Message, 0, len(history)+1)
	out = append(out, system)
	out = append(out, history...)
	return out
}

func systemSection(st *state.InvestigationState) *llm.Message {
	contract := phaseContracts[st.CurrentPhase]
	if contract == "" {
		contract = "Continue the fraud investigation for the current phase."
	}

	var b strings.Builder
	if sanitized, ok := SanitizeCustomPrompt(st.CustomUserPrompt); ok {
		fmt.Fprintf(&b, "USER PRIORITY INSTRUCTION: %s\n\n", sanitized)
	}
	b.WriteString(contract)
	if forbidden := forbiddenActions[st.CurrentPhase]; len(forbidden) > 0 {
		b.WriteString("\n\nForbidden in this phase: ")
		b.WriteString(strings.Join(forbidden, "; "))
		b.WriteString(".")
	}
	b.WriteString("\n\n")
	b.WriteString(stateDigest(st))

	return llm.System(b.String())
}

// stateDigest renders a compact textual summary of warehouse data, tool
// results, and domain findings so far. Each section degrades to a one-line
// placeholder when empty instead of being omitted.
func stateDigest(st *state.InvestigationState) string {
	var b strings.Builder
	b.WriteString("## Warehouse data\n")
	b.WriteString(snowflakeDigest(st))
	b.WriteString("\n\n## Tool results\n")
	b.WriteString(toolResultsDigest(st))
	b.WriteString("\n\n## Domain findings\n")
	b.WriteString(domainFindingsDigest(st))
	if st.CurrentPhase == state.PhaseDomainAnalysis {
		b.WriteString("\n\n## Remaining domains\n")
		b.WriteString(remainingDomainsDigest(st))
	}
	return b.String()
}

func snowflakeDigest(st *state.InvestigationState) string {
	if st.SnowflakeData == nil || len(st.SnowflakeData.Rows) == 0 {
		return "No warehouse data available yet."
	}
	rows := st.SnowflakeData.Rows
	var highRisk, fraud int
	for _, r := range rows {
		if r.ModelScore > 0.7 {
			highRisk++
		}
		if r.IsFraudTx {
			fraud++
		}
	}
	return fmt.Sprintf("%d transactions, %d high-risk (model_score>0.7), %d confirmed fraud.",
		len(rows), highRisk, fraud)
}

func toolResultsDigest(st *state.InvestigationState) string {
	if len(st.ToolResults) == 0 {
		return "No additional tools executed."
	}
	names := make([]string, 0, len(st.ToolResults))
	for name := range st.ToolResults {
		names = append(names, name)
	}
	return "Executed: " + strings.Join(names, ", ") + "."
}

func domainFindingsDigest(st *state.InvestigationState) string {
	if len(st.DomainFindings) == 0 {
		return "No domain analysis completed."
	}
	var b strings.Builder
	for _, domain := range phase.RequiredDomains() {
		f, ok := st.DomainFindings[domain]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: risk=%.2f confidence=%.2f indicators=%s\n",
			domain, f.RiskScore, f.Confidence, strings.Join(f.RiskIndicators, ", "))
	}
	if b.Len() == 0 {
		return "No domain analysis completed."
	}
	return b.String()
}

func remainingDomainsDigest(st *state.InvestigationState) string {
	var remaining []string
	for _, d := range phase.RequiredDomains() {
		found := false
		for _, done := range st.DomainsCompleted {
			if done == d {
				found = true
				break
			}
		}
		if !found {
			remaining = append(remaining, d)
		}
	}
	if len(remaining) == 0 {
		return "All required domains complete."
	}
	return "Execute next, in order: " + strings.Join(remaining, ", ") + "."
}
