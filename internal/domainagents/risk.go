package domainagents

import (
	"context"
	"fmt"

	"github.com/olorin-ai/investigation-engine/internal/state"
)

// riskAgent runs last of the required domains and aggregates: the mean of
// the preceding domains' risk scores blended with the warehouse model
// score, weighted by each finding's confidence.
type riskAgent struct{}

func (riskAgent) Name() string { return "risk" }

func (a *riskAgent) Analyze(_ context.Context, st *state.InvestigationState) (state.DomainFinding, error) {
	var weighted, weights float64
	var indicators []string
	for _, name := range []string{"network", "device", "location", "logs", "authentication", "web", "merchant"} {
		f, ok := st.DomainFindings[name]
		if !ok {
			continue
		}
		weighted += f.RiskScore * f.Confidence
		weights += f.Confidence
		if f.RiskScore >= RemediationThreshold {
			indicators = append(indicators, fmt.Sprintf("%s risk %.2f", name, f.RiskScore))
		}
	}

	model := meanModelScore(rows(st))
	var risk float64
	switch {
	case weights > 0:
		// Domain consensus dominates; the model score anchors it.
		risk = 0.7*(weighted/weights) + 0.3*model
	default:
		risk = model
	}
	if model >= 0.7 {
		indicators = append(indicators, fmt.Sprintf("mean model score %.2f", model))
	}

	confidence := clamp01(0.3 + 0.08*float64(len(st.DomainsCompleted)))

	return finding(risk, confidence, indicators, map[string]any{
		"domain_consensus": weights > 0,
		"mean_model_score": model,
	}), nil
}
