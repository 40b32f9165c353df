package domainagents

import (
	"context"
	"fmt"

	"github.com/olorin-ai/investigation-engine/internal/state"
)

// deviceAgent scores device-level signals: device and fingerprint churn,
// fingerprint reuse across device ids, and device-type spread.
type deviceAgent struct{}

func (deviceAgent) Name() string { return "device" }

func (a *deviceAgent) Analyze(_ context.Context, st *state.InvestigationState) (state.DomainFinding, error) {
	rs := rows(st)
	var indicators []string
	var risk float64

	devices := distinct(rs, func(r state.SnowflakeRow) string { return r.DeviceID })
	fingerprints := distinct(rs, func(r state.SnowflakeRow) string { return r.DeviceFingerprint })
	types := distinct(rs, func(r state.SnowflakeRow) string { return r.DeviceType })

	if devices > 3 {
		risk += 0.25
		indicators = append(indicators, fmt.Sprintf("%d distinct devices in window", devices))
	}
	// More device ids than fingerprints means hardware is being re-identified
	// under new ids, a common emulator/farm signature.
	if fingerprints > 0 && devices > fingerprints {
		risk += 0.3
		indicators = append(indicators, fmt.Sprintf("fingerprint reuse: %d devices over %d fingerprints", devices, fingerprints))
	}
	if types > 2 {
		risk += 0.15
		indicators = append(indicators, fmt.Sprintf("%d device types in window", types))
	}

	risk += 0.3 * fraudRatio(rs)

	return finding(risk, baseConfidence(st, "device_fingerprint_lookup"), indicators, map[string]any{
		"distinct_devices":      devices,
		"distinct_fingerprints": fingerprints,
		"distinct_device_types": types,
	}), nil
}
