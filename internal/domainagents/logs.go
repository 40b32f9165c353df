package domainagents

import (
	"context"
	"fmt"

	"github.com/olorin-ai/investigation-engine/internal/state"
)

// logsAgent scores alert-history signals: accumulated fraud alerts,
// disputes, and any log-search tool corroboration.
type logsAgent struct{}

func (logsAgent) Name() string { return "logs" }

func (a *logsAgent) Analyze(_ context.Context, st *state.InvestigationState) (state.DomainFinding, error) {
	rs := rows(st)
	var indicators []string
	var risk float64

	var alerts, disputes int
	for _, r := range rs {
		alerts += r.FraudAlerts
		disputes += r.Disputes
	}
	if alerts > 0 {
		risk += 0.2 + 0.05*float64(alerts)
		indicators = append(indicators, fmt.Sprintf("%d fraud alerts on file", alerts))
	}
	if disputes > 0 {
		risk += 0.15 + 0.05*float64(disputes)
		indicators = append(indicators, fmt.Sprintf("%d disputes on file", disputes))
	}

	if _, ok := st.ToolResults["log_search"]; ok {
		indicators = append(indicators, "log search consulted")
	}

	risk += 0.2 * fraudRatio(rs)

	return finding(risk, baseConfidence(st, "log_search"), indicators, map[string]any{
		"fraud_alerts": alerts,
		"disputes":     disputes,
	}), nil
}
