package domainagents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/olorin-ai/investigation-engine/internal/state"
)

// remediationActions maps a domain to the action recommended when that
// domain's finding crosses the remediation threshold.
var remediationActions = map[string]string{
	"network":        "block flagged IP addresses",
	"device":         "require device re-verification",
	"location":       "step up geo-velocity checks",
	"logs":           "escalate to manual review",
	"authentication": "force credential reset",
	"web":            "challenge automated clients",
	"merchant":       "hold high-value settlements",
	"risk":           "suspend entity pending review",
}

// remediationAgent runs after risk when any labelled risk crosses the
// threshold. It turns high-risk findings into a recommended action
// list and posts a notification.
type remediationAgent struct {
	deps Deps
}

func (*remediationAgent) Name() string { return "remediation" }

func (a *remediationAgent) Analyze(ctx context.Context, st *state.InvestigationState) (state.DomainFinding, error) {
	var actions, indicators []string
	var worst float64

	domains := make([]string, 0, len(st.DomainFindings))
	for name := range st.DomainFindings {
		domains = append(domains, name)
	}
	sort.Strings(domains)
	for _, name := range domains {
		f := st.DomainFindings[name]
		if f.RiskScore < RemediationThreshold {
			continue
		}
		if f.RiskScore > worst {
			worst = f.RiskScore
		}
		indicators = append(indicators, fmt.Sprintf("%s risk %.2f requires action", name, f.RiskScore))
		if action, ok := remediationActions[name]; ok {
			actions = append(actions, action)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, "monitor")
	}

	if a.deps.Notifier != nil && worst >= RemediationThreshold {
		body := fmt.Sprintf("entity %s/%s: %s", st.Entity.Type, st.Entity.ID, strings.Join(actions, "; "))
		if err := a.deps.Notifier.Notify(ctx, "Remediation required", body); err != nil {
			a.deps.logger().Warn(ctx, "remediation notification failed", "error", err.Error())
		}
	}

	// Remediation inherits the worst labelled risk; its confidence reflects
	// how much of the domain sweep actually completed.
	confidence := clamp01(0.4 + 0.07*float64(len(st.DomainsCompleted)))
	return finding(worst, confidence, indicators, map[string]any{
		"recommended_actions": actions,
	}), nil
}

// RecommendedActions extracts the remediation action list from a completed
// investigation's findings, falling back to "monitor" when remediation
// never ran or found nothing actionable.
func RecommendedActions(st *state.InvestigationState) []string {
	f, ok := st.DomainFindings["remediation"]
	if !ok {
		return []string{"monitor"}
	}
	details, ok := f.Details.(map[string]any)
	if !ok {
		return []string{"monitor"}
	}
	actions, ok := details["recommended_actions"].([]string)
	if !ok || len(actions) == 0 {
		return []string{"monitor"}
	}
	return actions
}
