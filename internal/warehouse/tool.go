package warehouse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/olorin-ai/investigation-engine/internal/toolerrors"
	"github.com/olorin-ai/investigation-engine/internal/tools"
)

// ToolName is the fixed name every snowflake_analysis phase's first tool
// call is expected to invoke.
const ToolName = "warehouse_query"

// queryArgs is the JSON shape the tool call's arguments must match.
type queryArgs struct {
	EntityType    string `json:"entity_type"`
	EntityID      string `json:"entity_id"`
	DateRangeDays int    `json:"date_range_days"`
}

// inputSchema is the JSON schema registered for ToolName, enforced by the
// Tool Registry before Handler ever runs.
var inputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"entity_type": {"type": "string"},
		"entity_id": {"type": "string"},
		"date_range_days": {"type": "integer", "minimum": 1}
	},
	"required": ["entity_type", "entity_id", "date_range_days"]
}`)

// Spec builds the tools.Spec for ToolName, wrapping executor behind the
// mandatory-column query contract and reporting duration/row-count to
// monitor regardless of outcome.
func Spec(cfg Config, executor QueryExecutor, monitor *Monitor, timeout time.Duration) *tools.Spec {
	return &tools.Spec{
		Name:        ToolName,
		Description: "Query the transaction warehouse for the mandatory column set for an entity over a date range.",
		InputSchema: inputSchema,
		Category:    tools.CategoryWarehouse,
		Timeout:     timeout,
		Handler:     handler(cfg, executor, monitor),
	}
}

func handler(cfg Config, executor QueryExecutor, monitor *Monitor) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
		var args queryArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return tools.Result{}, toolerrors.InvalidArguments("warehouse_query: " + err.Error())
		}

		sql, params := BuildMandatoryQuery(cfg, args.EntityType, args.EntityID, args.DateRangeDays)

		var watchCtx context.Context
		var cancel context.CancelFunc
		if monitor != nil {
			watchCtx, cancel = monitor.Watch(ctx)
		} else {
			watchCtx, cancel = ctx, func() {}
		}
		defer cancel()

		start := time.Now()
		result, err := executor.Execute(watchCtx, sql, params)
		duration := time.Since(start)

		rowCount := 0
		if result != nil {
			rowCount = result.RowCount
		}
		if monitor != nil {
			monitor.Record(ctx, sql, duration, rowCount, err)
		}
		if err != nil {
			return tools.Result{}, toolerrors.NewWithCause(toolerrors.KindExecution, "warehouse query failed", err)
		}

		parsed := ParseRows(result)
		return tools.Result{Parsed: parsed}, nil
	}
}
