package domainagents

import (
	"context"
	"fmt"
	"strings"

	"github.com/olorin-ai/investigation-engine/internal/state"
)

// botAgentMarkers are user-agent substrings characteristic of automation.
var botAgentMarkers = []string{"curl", "python", "bot", "headless", "phantom", "selenium", "wget"}

// webAgent scores client-surface signals: automated user agents, user-agent
// churn, and any web-search tool corroboration.
type webAgent struct{}

func (webAgent) Name() string { return "web" }

func (a *webAgent) Analyze(_ context.Context, st *state.InvestigationState) (state.DomainFinding, error) {
	rs := rows(st)
	var indicators []string
	var risk float64

	var automated int
	for _, r := range rs {
		ua := strings.ToLower(r.UserAgent)
		for _, marker := range botAgentMarkers {
			if strings.Contains(ua, marker) {
				automated++
				break
			}
		}
	}
	if automated > 0 {
		risk += 0.35
		indicators = append(indicators, fmt.Sprintf("%d transactions from automated user agents", automated))
	}

	agents := distinct(rs, func(r state.SnowflakeRow) string { return r.UserAgent })
	if agents > 4 {
		risk += 0.15
		indicators = append(indicators, fmt.Sprintf("%d distinct user agents in window", agents))
	}

	if _, ok := st.ToolResults["web_search"]; ok {
		indicators = append(indicators, "web search consulted")
	}

	risk += 0.2 * fraudRatio(rs)

	return finding(risk, baseConfidence(st, "web_search"), indicators, map[string]any{
		"automated_count":      automated,
		"distinct_user_agents": agents,
	}), nil
}
