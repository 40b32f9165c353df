package domainagents

import (
	"context"
	"fmt"
	"time"

	"github.com/olorin-ai/investigation-engine/internal/state"
)

// locationAgent scores geographic signals: country churn and impossible
// travel (distinct countries within a short wall-clock window).
type locationAgent struct{}

func (locationAgent) Name() string { return "location" }

func (a *locationAgent) Analyze(_ context.Context, st *state.InvestigationState) (state.DomainFinding, error) {
	rs := rows(st)
	var indicators []string
	var risk float64

	countries := distinctValues(rs, func(r state.SnowflakeRow) string { return r.IPCountryCode })
	if len(countries) > 1 {
		risk += 0.15 * float64(len(countries)-1)
		indicators = append(indicators, fmt.Sprintf("transactions from %d countries", len(countries)))
	}

	if pair, ok := impossibleTravel(rs); ok {
		risk += 0.35
		indicators = append(indicators, "country change "+pair+" within one hour")
	}

	risk += 0.2 * fraudRatio(rs)

	return finding(risk, baseConfidence(st, "ip_geolocation"), indicators, map[string]any{
		"country_codes": countries,
	}), nil
}

// impossibleTravel reports two consecutive transactions (by TX_DATETIME)
// from different countries less than an hour apart. Rows arrive ordered by
// TX_DATETIME descending per the warehouse query contract.
func impossibleTravel(rs []state.SnowflakeRow) (string, bool) {
	for i := 1; i < len(rs); i++ {
		prev, cur := rs[i], rs[i-1]
		if prev.IPCountryCode == "" || cur.IPCountryCode == "" || prev.IPCountryCode == cur.IPCountryCode {
			continue
		}
		if cur.TxDatetime.Sub(prev.TxDatetime) < time.Hour {
			return prev.IPCountryCode + "->" + cur.IPCountryCode, true
		}
	}
	return "", false
}
