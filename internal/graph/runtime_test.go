package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olorin-ai/investigation-engine/internal/domainagents"
	"github.com/olorin-ai/investigation-engine/internal/ident"
	"github.com/olorin-ai/investigation-engine/internal/llm"
	"github.com/olorin-ai/investigation-engine/internal/llm/provider/mock"
	"github.com/olorin-ai/investigation-engine/internal/orchestrator"
	"github.com/olorin-ai/investigation-engine/internal/phase"
	"github.com/olorin-ai/investigation-engine/internal/state"
	"github.com/olorin-ai/investigation-engine/internal/tools"
	"github.com/olorin-ai/investigation-engine/internal/warehouse"
)

func lowRiskRows(n int, meanScore float64) []map[string]any {
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]any{
			"TX_ID_KEY":         "tx",
			"EMAIL":             "user@example.com",
			"MODEL_SCORE":       meanScore,
			"IS_FRAUD_TX":       false,
			"PAID_AMOUNT_VALUE": 20.0,
			"IP":                "203.0.113.5",
			"IP_COUNTRY_CODE":   "US",
			"DEVICE_ID":         "dev-1",
			"USER_AGENT":        "Mozilla/5.0",
			"TX_DATETIME":       "2026-01-01T00:00:00Z",
		})
	}
	return rows
}

func lowRiskTool(name string) *tools.Spec {
	return &tools.Spec{
		Name:        name,
		Description: name,
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Category:    tools.CategoryGeneric,
		Handler: func(context.Context, json.RawMessage) (tools.Result, error) {
			return tools.Result{Parsed: map[string]any{"risk": "low"}}, nil
		},
	}
}

// fixture wires a full runtime against the deterministic mock client and a
// stubbed warehouse.
func fixture(t *testing.T, client llm.Client, warehouseRows []map[string]any) (*Runtime, *state.Store) {
	t.Helper()

	registry := tools.New(5 * time.Second)
	cfg := warehouse.Config{TransactionsTable: "TXS", ResultLimit: 100}
	executor := warehouse.NewMockExecutor(warehouseRows)
	require.NoError(t, registry.Register(warehouse.Spec(cfg, executor, nil, 5*time.Second)))
	require.NoError(t, registry.Register(lowRiskTool("threat_intel_lookup")))
	require.NoError(t, registry.Register(lowRiskTool("log_search")))

	ceilings := phase.TestCeilings()
	driver := orchestrator.New(orchestrator.Options{
		Client:   client,
		Registry: registry,
		Ceilings: ceilings,
		Model:    "test-model",
		Timeout:  5 * time.Second,
	})

	rt, err := New(Options{
		Driver:            driver,
		Executor:          tools.NewExecutor(registry),
		Agents:            domainagents.ByName(domainagents.Deps{}),
		Ceilings:          ceilings,
		WallClockBudget:   60 * time.Second,
		ValidateEveryStep: true,
	})
	require.NoError(t, err)

	store := state.NewStore(state.New(
		ident.NewInvestigationID(), state.EntityRef{Type: "ip", ID: "203.0.113.5"}, 7, ""))
	return rt, store
}

func requiredDomainsCompleted(t *testing.T, st *state.InvestigationState) {
	t.Helper()
	for _, d := range []string{"network", "device", "location", "logs", "authentication", "web", "merchant", "risk"} {
		assert.Contains(t, st.DomainsCompleted, d)
	}
}

func TestHappyPathIPEntity(t *testing.T) {
	t.Parallel()

	client := mock.WarehouseQueryInvestigation("ip", "203.0.113.5", 7,
		warehouse.ToolName, "threat_intel_lookup", "log_search")
	rt, store := fixture(t, client, lowRiskRows(10, 0.42))

	final, err := rt.Run(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, state.PhaseComplete, final.CurrentPhase)
	assert.True(t, final.SnowflakeCompleted)
	assert.GreaterOrEqual(t, len(final.ToolsUsed), 2)
	requiredDomainsCompleted(t, final)
	assert.GreaterOrEqual(t, final.RiskScore, 0.3)
	assert.LessOrEqual(t, final.RiskScore, 0.55)
	assert.GreaterOrEqual(t, final.ConfidenceScore, 0.5)
	for _, e := range final.Errors {
		assert.False(t, e.Fatal, e.Kind)
	}
	assert.False(t, final.EndTime.IsZero())
	assert.LessOrEqual(t, final.OrchestratorLoops, phase.TestCeilings().GlobalOrchestratorCalls+1)
}

func TestWarehouseSilent(t *testing.T) {
	t.Parallel()

	client := mock.WarehouseQueryInvestigation("ip", "203.0.113.5", 7, warehouse.ToolName)
	rt, store := fixture(t, client, nil)

	final, err := rt.Run(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, state.PhaseComplete, final.CurrentPhase)
	requiredDomainsCompleted(t, final)
	assert.LessOrEqual(t, final.RiskScore, 0.2)
	assert.Contains(t, domainagents.RecommendedActions(final), "monitor")
	// Reduced confidence against the happy path: no warehouse evidence for
	// any of the heuristic domains.
	for _, d := range []string{"network", "device", "location", "logs", "authentication", "web", "merchant"} {
		assert.LessOrEqual(t, final.DomainFindings[d].Confidence, 0.5, d)
	}
}

func TestLLMContextLengthFatalDuringToolExecution(t *testing.T) {
	t.Parallel()

	fatal := llm.NewProviderError("anthropic", "complete", llm.ErrorKindContextLength, "", "context window exceeded", "", nil)
	client := mock.New(
		mock.Step{Text: "Opening investigation."},
		mock.Step{ToolCalls: []llm.ToolUsePart{mock.ToolCall("call-0", warehouse.ToolName, map[string]any{
			"entity_type": "ip", "entity_id": "203.0.113.5", "date_range_days": 7,
		})}},
		mock.Step{ToolCalls: []llm.ToolUsePart{mock.ToolCall("call-1", "threat_intel_lookup", map[string]any{})}},
		mock.Step{Err: fatal},
	)
	rt, store := fixture(t, client, lowRiskRows(3, 0.2))

	final, err := rt.Run(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, state.PhaseComplete, final.CurrentPhase)
	assert.Equal(t, 0.5, final.RiskScore)
	assert.Equal(t, 0.0, final.ConfidenceScore)
	var sawContextLength bool
	for _, e := range final.Errors {
		if e.Kind == "llm.context_length" {
			sawContextLength = true
			assert.True(t, e.Fatal)
		}
	}
	assert.True(t, sawContextLength)
	assert.NotContains(t, final.DomainsCompleted, "remediation")
	assert.Contains(t, final.SkippedPhases, state.PhaseDomainAnalysis)
}

// runawayDriver always requests another tool call and never advances the
// phase, simulating an orchestrator stuck in a self-referential loop. In
// summary it completes deterministically, as the production driver would
// with tool choice disabled.
type runawayDriver struct{}

func (runawayDriver) Invoke(_ context.Context, st *state.InvestigationState) (state.StateUpdate, error) {
	if st.CurrentPhase == state.PhaseSummary {
		return runawayFinalize(st), nil
	}
	call := state.ToolCallRequest{
		CallID: fmt.Sprintf("call-%d", st.OrchestratorLoops),
		Name:   "threat_intel_lookup",
		Input:  json.RawMessage(`{}`),
	}
	return state.StateUpdate{
		IncrementOrchestratorLoops: true,
		AppendMessages:             []state.Message{state.AI("one more tool", call)},
	}, nil
}

func (runawayDriver) Finalize(st *state.InvestigationState) state.StateUpdate {
	return runawayFinalize(st)
}

func runawayFinalize(_ *state.InvestigationState) state.StateUpdate {
	complete := state.PhaseComplete
	risk := 0.0
	return state.StateUpdate{CurrentPhase: &complete, RiskScore: &risk}
}

func TestRunawaySafetyTerminatesAtCeiling(t *testing.T) {
	t.Parallel()

	registry := tools.New(5 * time.Second)
	require.NoError(t, registry.Register(lowRiskTool("threat_intel_lookup")))

	ceilings := phase.TestCeilings()
	rt, err := New(Options{
		Driver:          runawayDriver{},
		Executor:        tools.NewExecutor(registry),
		Agents:          domainagents.ByName(domainagents.Deps{}),
		Ceilings:        ceilings,
		WallClockBudget: 60 * time.Second,
	})
	require.NoError(t, err)

	store := state.NewStore(state.New("inv-runaway", state.EntityRef{Type: "ip", ID: "1.2.3.4"}, 7, ""))
	final, runErr := rt.Run(context.Background(), store)
	require.NoError(t, runErr)

	assert.Equal(t, state.PhaseComplete, final.CurrentPhase)
	assert.LessOrEqual(t, final.OrchestratorLoops, ceilings.GlobalOrchestratorCalls+1)

	var recursionErrors int
	for _, e := range final.Errors {
		if e.Kind == "runtime.recursion_limit" {
			recursionErrors++
		}
	}
	assert.Equal(t, 1, recursionErrors)

	var sawSummaryVerdict bool
	for _, d := range final.RoutingDecisions {
		if d.Rule == 1 {
			sawSummaryVerdict = true
		}
	}
	assert.True(t, sawSummaryVerdict)
}

func TestEveryToolInvalidArgumentsStillReachesSummary(t *testing.T) {
	t.Parallel()

	strictSchema := json.RawMessage(`{"type":"object","required":["must_have"],"properties":{"must_have":{"type":"string"}}}`)
	registry := tools.New(5 * time.Second)
	require.NoError(t, registry.Register(&tools.Spec{
		Name: "strict_tool", Description: "strict", InputSchema: strictSchema,
		Category: tools.CategoryGeneric,
		Handler: func(context.Context, json.RawMessage) (tools.Result, error) {
			return tools.Result{Parsed: "never reached"}, nil
		},
	}))

	client := mock.New(
		mock.Step{Text: "Opening investigation."},
		mock.Step{ToolCalls: []llm.ToolUsePart{mock.ToolCall("call-0", "strict_tool", map[string]any{})}},
		mock.Step{Text: "no more tools"},
	)

	ceilings := phase.TestCeilings()
	driver := orchestrator.New(orchestrator.Options{
		Client: client, Registry: registry, Ceilings: ceilings, Model: "test-model", Timeout: 5 * time.Second,
	})
	rt, err := New(Options{
		Driver:          driver,
		Executor:        tools.NewExecutor(registry),
		Agents:          domainagents.ByName(domainagents.Deps{}),
		Ceilings:        ceilings,
		WallClockBudget: 60 * time.Second,
	})
	require.NoError(t, err)

	store := state.NewStore(state.New("inv-badargs", state.EntityRef{Type: "email", ID: "x@y.com"}, 7, ""))
	final, runErr := rt.Run(context.Background(), store)
	require.NoError(t, runErr)

	assert.Equal(t, state.PhaseComplete, final.CurrentPhase)
	var invalidArgMessages int
	for _, m := range final.Messages {
		if m.Kind == state.MessageTool && m.Payload.Kind == state.ToolPayloadError &&
			m.Payload.ErrorKind == "tool.invalid_arguments" {
			invalidArgMessages++
		}
	}
	assert.Equal(t, 1, invalidArgMessages)
}

func TestLoopsForcedToCeilingRoutesSummaryNext(t *testing.T) {
	t.Parallel()

	ceilings := phase.TestCeilings()
	st := state.New("inv-ceiling", state.EntityRef{Type: "ip", ID: "1.1.1.1"}, 7, "")
	st.CurrentPhase = state.PhaseToolExecution
	st.OrchestratorLoops = ceilings.GlobalOrchestratorCalls + 1

	rt, err := New(Options{
		Driver:          runawayDriver{},
		Executor:        tools.NewExecutor(tools.New(time.Second)),
		Ceilings:        ceilings,
		WallClockBudget: 10 * time.Second,
	})
	require.NoError(t, err)

	// Snowflake data must exist for integrity when tool_execution was reached.
	st.SnowflakeCompleted = true
	st.SnowflakeData = &state.SnowflakeResult{}
	store := state.NewStore(st)

	final, runErr := rt.Run(context.Background(), store)
	require.NoError(t, runErr)
	require.NotEmpty(t, final.RoutingDecisions)
	assert.Equal(t, 1, final.RoutingDecisions[0].Rule)
	assert.Equal(t, state.PhaseComplete, final.CurrentPhase)
}
