package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olorin-ai/investigation-engine/internal/state"
	"github.com/olorin-ai/investigation-engine/internal/toolerrors"
)

func TestSpecHandlerReturnsParsedRows(t *testing.T) {
	t.Parallel()

	executor := NewMockExecutor([]map[string]any{
		{"TX_ID_KEY": "tx-1", "MODEL_SCORE": 0.42},
	})
	spec := Spec(Config{TransactionsTable: "TXS"}, executor, nil, time.Second)

	args, err := json.Marshal(queryArgs{EntityType: "ip", EntityID: "203.0.113.5", DateRangeDays: 7})
	require.NoError(t, err)

	result, err := spec.Handler(context.Background(), args)
	require.NoError(t, err)

	parsed, ok := result.Parsed.(*state.SnowflakeResult)
	require.True(t, ok)
	require.Len(t, parsed.Rows, 1)
	assert.Equal(t, "tx-1", parsed.Rows[0].TxIDKey)
}

func TestSpecHandlerRejectsMalformedArguments(t *testing.T) {
	t.Parallel()

	executor := NewMockExecutor(nil)
	spec := Spec(Config{TransactionsTable: "TXS"}, executor, nil, time.Second)

	_, err := spec.Handler(context.Background(), json.RawMessage(`not json`))
	require.Error(t, err)

	var toolErr *toolerrors.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, toolerrors.KindInvalidArguments, toolErr.Kind)
}

func TestSpecHandlerWrapsExecutorFailureAsToolExecutionError(t *testing.T) {
	t.Parallel()

	executor := &MockExecutor{Err: errors.New("connection refused")}
	spec := Spec(Config{TransactionsTable: "TXS"}, executor, nil, time.Second)

	args, err := json.Marshal(queryArgs{EntityType: "ip", EntityID: "1.2.3.4", DateRangeDays: 1})
	require.NoError(t, err)

	_, err = spec.Handler(context.Background(), args)
	require.Error(t, err)

	var toolErr *toolerrors.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, toolerrors.KindExecution, toolErr.Kind)
}
