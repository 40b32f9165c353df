package domainagents

import (
	"context"
	"fmt"

	"github.com/olorin-ai/investigation-engine/internal/state"
)

// highRiskCountries lists country codes whose traffic raises the network
// risk signal. Kept deliberately short; threat-intel tool results carry the
// authoritative reputation data when available.
var highRiskCountries = map[string]struct{}{
	"KP": {}, "IR": {}, "SY": {}, "CU": {},
}

// networkAgent scores IP-level signals: address churn, country diversity,
// sanctioned-country traffic, and any threat-intel tool corroboration.
type networkAgent struct{}

func (networkAgent) Name() string { return "network" }

func (a *networkAgent) Analyze(_ context.Context, st *state.InvestigationState) (state.DomainFinding, error) {
	rs := rows(st)
	var indicators []string
	var risk float64

	ips := distinct(rs, func(r state.SnowflakeRow) string { return r.IP })
	if ips > 3 {
		risk += 0.25
		indicators = append(indicators, fmt.Sprintf("%d distinct IP addresses in window", ips))
	}

	countries := distinctValues(rs, func(r state.SnowflakeRow) string { return r.IPCountryCode })
	if len(countries) > 2 {
		risk += 0.2
		indicators = append(indicators, fmt.Sprintf("traffic from %d countries", len(countries)))
	}
	for _, c := range countries {
		if _, ok := highRiskCountries[c]; ok {
			risk += 0.3
			indicators = append(indicators, "traffic from high-risk country "+c)
		}
	}

	if intel, ok := st.ToolResults["threat_intel_lookup"]; ok && intel != nil {
		indicators = append(indicators, "threat intel consulted")
	}

	risk += 0.3 * fraudRatio(rs)

	return finding(risk, baseConfidence(st, "threat_intel_lookup", "network_analysis"), indicators, map[string]any{
		"distinct_ips":  ips,
		"country_codes": countries,
	}), nil
}
