package domainagents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olorin-ai/investigation-engine/internal/state"
)

func snapshotWithRows(rows ...state.SnowflakeRow) *state.InvestigationState {
	st := state.New("inv-1", state.EntityRef{Type: "ip", ID: "203.0.113.5"}, 7, "")
	st.SnowflakeData = &state.SnowflakeResult{Rows: rows, RowCount: len(rows)}
	st.SnowflakeCompleted = true
	return st
}

func TestAllReturnsFixedOrder(t *testing.T) {
	t.Parallel()

	agents := All(Deps{})
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{
		"network", "device", "location", "logs", "authentication", "web", "merchant", "risk", "remediation",
	}, names)
}

func TestEveryAgentProducesBoundedFinding(t *testing.T) {
	t.Parallel()

	st := snapshotWithRows(
		state.SnowflakeRow{IP: "1.1.1.1", IPCountryCode: "US", DeviceID: "d1", Email: "a@x.com",
			ModelScore: 0.9, IsFraudTx: true, FraudAlerts: 3, Disputes: 2, PaidAmountValue: 900,
			UserAgent: "python-requests", NsureLastDecision: "decline", TxDatetime: time.Now()},
		state.SnowflakeRow{IP: "2.2.2.2", IPCountryCode: "IR", DeviceID: "d2", Email: "b@x.com",
			ModelScore: 0.8, PaidAmountValue: 10, TxDatetime: time.Now().Add(-10 * time.Minute)},
	)

	for _, agent := range All(Deps{}) {
		f, err := agent.Analyze(context.Background(), st)
		require.NoError(t, err, agent.Name())
		assert.GreaterOrEqual(t, f.RiskScore, 0.0, agent.Name())
		assert.LessOrEqual(t, f.RiskScore, 1.0, agent.Name())
		assert.GreaterOrEqual(t, f.Confidence, 0.0, agent.Name())
		assert.LessOrEqual(t, f.Confidence, 1.0, agent.Name())
		assert.LessOrEqual(t, len(f.RiskIndicators), MaxRiskIndicators, agent.Name())
	}
}

func TestNetworkAgentFlagsHighRiskCountry(t *testing.T) {
	t.Parallel()

	st := snapshotWithRows(
		state.SnowflakeRow{IP: "1.1.1.1", IPCountryCode: "IR"},
	)
	f, err := (&networkAgent{}).Analyze(context.Background(), st)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, f.RiskScore, 0.3)
	assert.Contains(t, f.RiskIndicators, "traffic from high-risk country IR")
}

func TestDeviceAgentFlagsFingerprintReuse(t *testing.T) {
	t.Parallel()

	st := snapshotWithRows(
		state.SnowflakeRow{DeviceID: "d1", DeviceFingerprint: "fp"},
		state.SnowflakeRow{DeviceID: "d2", DeviceFingerprint: "fp"},
	)
	f, err := (&deviceAgent{}).Analyze(context.Background(), st)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, f.RiskScore, 0.3)
}

func TestLocationAgentDetectsImpossibleTravel(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := snapshotWithRows(
		state.SnowflakeRow{IPCountryCode: "US", TxDatetime: now},
		state.SnowflakeRow{IPCountryCode: "BR", TxDatetime: now.Add(-30 * time.Minute)},
	)
	f, err := (&locationAgent{}).Analyze(context.Background(), st)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, f.RiskScore, 0.35)
}

func TestRiskAgentAggregatesDomainConsensus(t *testing.T) {
	t.Parallel()

	st := snapshotWithRows(state.SnowflakeRow{ModelScore: 0.4})
	st.DomainFindings = map[string]state.DomainFinding{
		"network": {RiskScore: 0.8, Confidence: 1},
		"device":  {RiskScore: 0.6, Confidence: 1},
	}
	st.DomainsCompleted = []string{"network", "device"}

	f, err := (&riskAgent{}).Analyze(context.Background(), st)
	require.NoError(t, err)
	// 0.7*mean(0.8,0.6) + 0.3*0.4 = 0.61
	assert.InDelta(t, 0.61, f.RiskScore, 0.0001)
}

func TestRiskAgentFallsBackToModelScore(t *testing.T) {
	t.Parallel()

	st := snapshotWithRows(state.SnowflakeRow{ModelScore: 0.42}, state.SnowflakeRow{ModelScore: 0.42})
	f, err := (&riskAgent{}).Analyze(context.Background(), st)
	require.NoError(t, err)
	assert.InDelta(t, 0.42, f.RiskScore, 0.0001)
}

type recordingNotifier struct {
	titles []string
}

func (r *recordingNotifier) Notify(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return nil
}

func TestRemediationAgentNotifiesAndRecommends(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	st := snapshotWithRows()
	st.DomainFindings = map[string]state.DomainFinding{
		"network": {RiskScore: 0.7, Confidence: 0.8},
		"logs":    {RiskScore: 0.1, Confidence: 0.9},
	}
	st.DomainsCompleted = []string{"network", "logs"}

	agent := &remediationAgent{deps: Deps{Notifier: notifier}}
	f, err := agent.Analyze(context.Background(), st)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, f.RiskScore, 0.0001)
	require.Len(t, notifier.titles, 1)

	details := f.Details.(map[string]any)
	actions := details["recommended_actions"].([]string)
	assert.Contains(t, actions, "block flagged IP addresses")
	assert.NotContains(t, actions, "escalate to manual review")
}

func TestRemediationAgentLowRiskMonitors(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	st := snapshotWithRows()
	st.DomainFindings = map[string]state.DomainFinding{
		"network": {RiskScore: 0.1, Confidence: 0.8},
	}

	agent := &remediationAgent{deps: Deps{Notifier: notifier}}
	f, err := agent.Analyze(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 0.0, f.RiskScore)
	assert.Empty(t, notifier.titles)
	assert.Equal(t, []string{"monitor"}, RecommendedActions(&state.InvestigationState{
		DomainFindings: map[string]state.DomainFinding{"remediation": f},
	}))
}

func TestRemediationNeeded(t *testing.T) {
	t.Parallel()

	st := &state.InvestigationState{DomainFindings: map[string]state.DomainFinding{
		"web": {RiskScore: 0.29},
	}}
	assert.False(t, RemediationNeeded(st))
	st.DomainFindings["merchant"] = state.DomainFinding{RiskScore: 0.3}
	assert.True(t, RemediationNeeded(st))
}
