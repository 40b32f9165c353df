package investigation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olorin-ai/investigation-engine/internal/llm/provider/mock"
	"github.com/olorin-ai/investigation-engine/internal/state"
	"github.com/olorin-ai/investigation-engine/internal/warehouse"
)

func TestServiceInvestigateEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := &Config{TestMode: true}
	client := mock.WarehouseQueryInvestigation("ip", "203.0.113.5", 7, warehouse.ToolName)
	rows := []map[string]any{
		{"TX_ID_KEY": "tx-1", "MODEL_SCORE": 0.35, "IP": "203.0.113.5", "IP_COUNTRY_CODE": "US", "TX_DATETIME": "2026-01-02T00:00:00Z"},
		{"TX_ID_KEY": "tx-2", "MODEL_SCORE": 0.45, "IP": "203.0.113.5", "IP_COUNTRY_CODE": "US", "TX_DATETIME": "2026-01-01T00:00:00Z"},
	}

	svc, err := NewService(cfg, Deps{
		Client:    client,
		Warehouse: warehouse.NewMockExecutor(rows),
	})
	require.NoError(t, err)

	result, err := svc.Investigate(context.Background(), Request{
		EntityType: "ip", EntityID: "203.0.113.5", DateRangeDays: 7,
	})
	require.NoError(t, err)

	final := result.State
	assert.Equal(t, state.PhaseComplete, final.CurrentPhase)
	assert.True(t, final.SnowflakeCompleted)
	assert.InDelta(t, 0.4, final.RiskScore, 0.001)
	assert.Equal(t, "medium", string(result.RiskLevel))
	assert.NotEmpty(t, result.Recommendations)
}

func TestServiceValidatesRequest(t *testing.T) {
	t.Parallel()

	svc, err := NewService(&Config{TestMode: true}, Deps{
		Client:    mock.New(),
		Warehouse: warehouse.NewMockExecutor(nil),
	})
	require.NoError(t, err)

	_, err = svc.Investigate(context.Background(), Request{EntityType: "ip", EntityID: "", DateRangeDays: 7})
	assert.Error(t, err)
	_, err = svc.Investigate(context.Background(), Request{EntityType: "ip", EntityID: "1.1.1.1", DateRangeDays: 0})
	assert.Error(t, err)
}
