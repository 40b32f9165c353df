package orchestrator

import (
	"regexp"
	"strconv"

	"github.com/olorin-ai/investigation-engine/internal/state"
	"github.com/olorin-ai/investigation-engine/internal/warehouse"
)

// riskScorePattern matches the "RISK_SCORE: <number>" line the summary
// prompt instructs the model to emit.
var riskScorePattern = regexp.MustCompile(`(?i)RISK_SCORE:\s*([0-9]*\.?[0-9]+)`)

// RiskLevel names the five bands a risk_score maps onto.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
	RiskMinimal  RiskLevel = "minimal"
)

// Level maps a risk_score into its named band.
func Level(riskScore float64) RiskLevel {
	switch {
	case riskScore >= 0.8:
		return RiskCritical
	case riskScore >= 0.6:
		return RiskHigh
	case riskScore >= 0.4:
		return RiskMedium
	case riskScore >= 0.2:
		return RiskLow
	default:
		return RiskMinimal
	}
}

// applySummary finalises risk_score and confidence_score: an LLM-produced score when the call
// succeeded and emitted a parseable RISK_SCORE line, otherwise the mean
// MODEL_SCORE across warehouse rows. Both are clamped to [0,1].
func (o *Orchestrator) applySummary(st *state.InvestigationState, update *state.StateUpdate) {
	aiText := ""
	if len(update.AppendMessages) > 0 {
		aiText = update.AppendMessages[len(update.AppendMessages)-1].Text
	}

	riskScore, ok := parseRiskScore(aiText)
	if !ok {
		riskScore = fallbackRiskScore(st)
	}
	riskScore = clamp01(riskScore)

	confidence := confidenceScore(st)

	next := state.PhaseComplete
	update.CurrentPhase = &next
	update.RiskScore = &riskScore
	update.ConfidenceScore = &confidence
	update.AppendMessages = append(update.AppendMessages,
		state.System("Final risk level: "+string(Level(riskScore))+"; "+recommendationFor(Level(riskScore))))
}

func parseRiskScore(text string) (float64, bool) {
	m := riskScorePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func fallbackRiskScore(st *state.InvestigationState) float64 {
	if st.SnowflakeData == nil || len(st.SnowflakeData.Rows) == 0 {
		return 0
	}
	rows := make([]map[string]any, 0, len(st.SnowflakeData.Rows))
	for _, r := range st.SnowflakeData.Rows {
		rows = append(rows, map[string]any{"MODEL_SCORE": r.ModelScore})
	}
	return warehouse.MeanModelScore(rows)
}

// confidenceScore implements the confidence formula
// min(1, 0.2*snowflake_completed + 0.1*|tools_used| + 0.2*|domains_completed|).
func confidenceScore(st *state.InvestigationState) float64 {
	var snowflakeTerm float64
	if st.SnowflakeCompleted {
		snowflakeTerm = 0.2
	}
	score := snowflakeTerm + 0.1*float64(len(st.ToolsUsed)) + 0.2*float64(len(st.DomainsCompleted))
	if score > 1 {
		return 1
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func recommendationFor(level RiskLevel) string {
	switch level {
	case RiskCritical, RiskHigh:
		return "recommend immediate remediation"
	case RiskMedium:
		return "recommend further review"
	case RiskLow:
		return "recommend monitor"
	default:
		return "recommend monitor, no immediate action required"
	}
}
