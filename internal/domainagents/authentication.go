package domainagents

import (
	"context"
	"fmt"
	"strings"

	"github.com/olorin-ai/investigation-engine/internal/state"
)

// authenticationAgent scores identity signals: email churn across the
// window and prior decline decisions from the decision engine.
type authenticationAgent struct{}

func (authenticationAgent) Name() string { return "authentication" }

func (a *authenticationAgent) Analyze(_ context.Context, st *state.InvestigationState) (state.DomainFinding, error) {
	rs := rows(st)
	var indicators []string
	var risk float64

	emails := distinct(rs, func(r state.SnowflakeRow) string { return strings.ToLower(r.Email) })
	if emails > 2 {
		risk += 0.3
		indicators = append(indicators, fmt.Sprintf("%d distinct emails on the same entity", emails))
	}

	var declined int
	for _, r := range rs {
		if strings.EqualFold(r.NsureLastDecision, "decline") || strings.EqualFold(r.NsureLastDecision, "declined") {
			declined++
		}
	}
	if declined > 0 {
		risk += 0.2 + 0.05*float64(declined)
		indicators = append(indicators, fmt.Sprintf("%d previously declined transactions", declined))
	}

	risk += 0.25 * fraudRatio(rs)

	return finding(risk, baseConfidence(st, "identity_verification"), indicators, map[string]any{
		"distinct_emails": emails,
		"declined_count":  declined,
	}), nil
}
