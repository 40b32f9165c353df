// Package domainagents implements the nine specialised domain agents of the
// investigation: network, device, location, logs, authentication,
// web, merchant, risk, and remediation. Every agent follows the same
// contract: it consumes a read-only state snapshot, consults warehouse data
// plus any tool results relevant to its domain, and emits one DomainFinding
// with a risk score, confidence, and bounded indicator list. Agents never
// issue tool calls; tools are orchestrator-driven.
package domainagents

import (
	"context"
	"sort"

	"github.com/olorin-ai/investigation-engine/internal/notify"
	"github.com/olorin-ai/investigation-engine/internal/state"
	"github.com/olorin-ai/investigation-engine/internal/telemetry"
)

// MaxRiskIndicators bounds the indicator list each finding may carry.
const MaxRiskIndicators = 32

// Agent is the uniform domain-agent contract: a name matching the fixed
// execution order, and a single Analyze call over a read-only snapshot.
type Agent interface {
	Name() string
	Analyze(ctx context.Context, st *state.InvestigationState) (state.DomainFinding, error)
}

// Deps carries the shared collaborators agents may use. All fields are
// optional; agents degrade to warehouse-only heuristics when a dependency
// is absent.
type Deps struct {
	Logger   telemetry.Logger
	Notifier notify.Notifier
}

func (d Deps) logger() telemetry.Logger {
	if d.Logger == nil {
		return telemetry.NewNoopLogger()
	}
	return d.Logger
}

// All returns every domain agent in the fixed execution order:
// network, device, location, logs, authentication, web, merchant, risk,
// then remediation (conditional, run after risk).
func All(deps Deps) []Agent {
	return []Agent{
		&networkAgent{},
		&deviceAgent{},
		&locationAgent{},
		&logsAgent{},
		&authenticationAgent{},
		&webAgent{},
		&merchantAgent{},
		&riskAgent{},
		&remediationAgent{deps: deps},
	}
}

// ByName indexes All(deps) by agent name.
func ByName(deps Deps) map[string]Agent {
	out := make(map[string]Agent)
	for _, a := range All(deps) {
		out[a.Name()] = a
	}
	return out
}

// RemediationThreshold is the labelled-risk level at or above which the
// remediation agent runs after risk completes.
const RemediationThreshold = 0.3

// RemediationNeeded reports whether any recorded domain finding carries a
// risk score at or above RemediationThreshold.
func RemediationNeeded(st *state.InvestigationState) bool {
	for _, f := range st.DomainFindings {
		if f.RiskScore >= RemediationThreshold {
			return true
		}
	}
	return false
}

// finding assembles a DomainFinding with its invariants enforced: scores
// clamped to [0,1] and indicators bounded to MaxRiskIndicators.
func finding(riskScore, confidence float64, indicators []string, details any) state.DomainFinding {
	if len(indicators) > MaxRiskIndicators {
		indicators = indicators[:MaxRiskIndicators]
	}
	return state.DomainFinding{
		RiskScore:      clamp01(riskScore),
		Confidence:     clamp01(confidence),
		RiskIndicators: indicators,
		Details:        details,
	}
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

// rows returns the parsed warehouse rows, or nil when the warehouse phase
// produced nothing.
func rows(st *state.InvestigationState) []state.SnowflakeRow {
	if st.SnowflakeData == nil {
		return nil
	}
	return st.SnowflakeData.Rows
}

// baseConfidence scales an agent's confidence by how much evidence it had:
// no warehouse rows caps confidence low, tool corroboration raises it.
func baseConfidence(st *state.InvestigationState, toolNames ...string) float64 {
	c := 0.2
	if len(rows(st)) > 0 {
		c = 0.6
	}
	for _, name := range toolNames {
		if _, ok := st.ToolResults[name]; ok {
			c += 0.15
		}
	}
	return clamp01(c)
}

// distinct counts the unique non-empty values produced by key over rows.
func distinct(rs []state.SnowflakeRow, key func(state.SnowflakeRow) string) int {
	seen := make(map[string]struct{})
	for _, r := range rs {
		if v := key(r); v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// distinctValues returns the sorted unique non-empty values produced by key
// over rows.
func distinctValues(rs []state.SnowflakeRow, key func(state.SnowflakeRow) string) []string {
	seen := make(map[string]struct{})
	for _, r := range rs {
		if v := key(r); v != "" {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func fraudRatio(rs []state.SnowflakeRow) float64 {
	if len(rs) == 0 {
		return 0
	}
	var fraud int
	for _, r := range rs {
		if r.IsFraudTx {
			fraud++
		}
	}
	return float64(fraud) / float64(len(rs))
}

func meanModelScore(rs []state.SnowflakeRow) float64 {
	if len(rs) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rs {
		sum += r.ModelScore
	}
	return clamp01(sum / float64(len(rs)))
}
