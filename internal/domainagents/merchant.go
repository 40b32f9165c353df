package domainagents

import (
	"context"
	"fmt"

	"github.com/olorin-ai/investigation-engine/internal/state"
)

// merchantAgent scores transaction-value signals: amount spikes against the
// window's own baseline and the dispute-to-volume ratio.
type merchantAgent struct{}

func (merchantAgent) Name() string { return "merchant" }

func (a *merchantAgent) Analyze(_ context.Context, st *state.InvestigationState) (state.DomainFinding, error) {
	rs := rows(st)
	var indicators []string
	var risk float64

	var total, max float64
	var disputes int
	for _, r := range rs {
		total += r.PaidAmountValue
		if r.PaidAmountValue > max {
			max = r.PaidAmountValue
		}
		disputes += r.Disputes
	}
	if len(rs) > 1 {
		mean := total / float64(len(rs))
		if mean > 0 && max > 5*mean {
			risk += 0.25
			indicators = append(indicators, fmt.Sprintf("amount spike: max %.2f against mean %.2f", max, mean))
		}
	}
	if len(rs) > 0 && disputes > 0 {
		ratio := float64(disputes) / float64(len(rs))
		risk += 0.4 * ratio
		indicators = append(indicators, fmt.Sprintf("dispute ratio %.2f", ratio))
	}

	risk += 0.25 * fraudRatio(rs)

	return finding(risk, baseConfidence(st, "merchant_profile"), indicators, map[string]any{
		"total_paid":    total,
		"max_paid":      max,
		"dispute_count": disputes,
	}), nil
}
