// Package warehouse implements the Warehouse query contract: a
// provider-agnostic QueryExecutor, the mandatory-column query builder every
// snowflake_analysis tool call must issue, and row parsing into
// state.SnowflakeRow. SQL dialect translation and the warehouse's own
// connection management are out of scope; this package only consumes a
// QueryExecutor.
package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MandatoryColumns is the fixed column set every snowflake_analysis query
// must select. Order matches the SELECT
// list produced by BuildMandatoryQuery.
var MandatoryColumns = []string{
	"TX_ID_KEY", "EMAIL", "MODEL_SCORE", "IS_FRAUD_TX", "NSURE_LAST_DECISION",
	"DISPUTES", "FRAUD_ALERTS", "PAID_AMOUNT_VALUE", "IP", "IP_COUNTRY_CODE",
	"DEVICE_ID", "DEVICE_FINGERPRINT", "USER_AGENT", "DEVICE_TYPE", "TX_DATETIME",
}

// QueryResult is the raw shape a QueryExecutor returns: one map per row,
// keyed by column name, plus the row count.
type QueryResult struct {
	Rows     []map[string]any
	RowCount int
}

// QueryExecutor runs a parameterized SQL query against the configured
// warehouse, bounded by ctx's deadline. Implementations must not retain ctx
// past return.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string, params map[string]any) (*QueryResult, error)
}

// Config holds the table/entity-field mapping BuildMandatoryQuery needs; it
// is supplied by the caller's configuration rather than hardcoded so the
// transactions table can vary per deployment.
type Config struct {
	TransactionsTable string
	ResultLimit       int
}

// entityColumns maps an EntityRef.Type to the warehouse column it filters
// on. Unknown entity types fall back to filtering on EMAIL, the most
// general identity column in MandatoryColumns.
var entityColumns = map[string]string{
	"ip":     "IP",
	"email":  "EMAIL",
	"device": "DEVICE_ID",
}

// BuildMandatoryQuery constructs the SQL every snowflake_analysis phase's
// first tool call must issue: the mandatory column set from cfg's
// transactions table, filtered by the entity field for dateRangeDays days,
// ordered by TX_DATETIME descending, capped by cfg.ResultLimit.
func BuildMandatoryQuery(cfg Config, entityType, entityID string, dateRangeDays int) (sql string, params map[string]any) {
	column, ok := entityColumns[strings.ToLower(entityType)]
	if !ok {
		column = "EMAIL"
	}
	limit := cfg.ResultLimit
	if limit <= 0 {
		limit = 1000
	}
	sql = fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = :entity_id AND TX_DATETIME >= DATEADD(day, -:date_range_days, CURRENT_TIMESTAMP()) ORDER BY TX_DATETIME DESC LIMIT %d",
		strings.Join(MandatoryColumns, ", "), cfg.TransactionsTable, column, limit,
	)
	params = map[string]any{
		"entity_id":       entityID,
		"date_range_days": dateRangeDays,
	}
	return sql, params
}

// MeanModelScore computes the mean MODEL_SCORE across rows, bounded to
// [0,1], for the risk-aggregation fallback used when the LLM call fails.
func MeanModelScore(rows []map[string]any) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rows {
		sum += floatField(r, "MODEL_SCORE")
	}
	mean := sum / float64(len(rows))
	if mean < 0 {
		return 0
	}
	if mean > 1 {
		return 1
	}
	return mean
}

func floatField(row map[string]any, key string) float64 {
	v, ok := row[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// SlowQueryThreshold is the default duration above which Monitor logs and
// counts a query as slow.
const SlowQueryThreshold = 2 * time.Second
