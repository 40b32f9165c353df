package warehouse

import (
	"time"

	"github.com/olorin-ai/investigation-engine/internal/state"
)

// ParseRows converts a QueryResult's generic row maps into typed
// state.SnowflakeRow values, carrying any column outside MandatoryColumns
// into Extra so downstream domain agents can still reach it.
func ParseRows(result *QueryResult) *state.SnowflakeResult {
	if result == nil {
		return &state.SnowflakeResult{Rows: nil, RowCount: 0}
	}
	rows := make([]state.SnowflakeRow, 0, len(result.Rows))
	for _, r := range result.Rows {
		rows = append(rows, parseRow(r))
	}
	return &state.SnowflakeResult{Rows: rows, RowCount: result.RowCount}
}

func parseRow(r map[string]any) state.SnowflakeRow {
	known := map[string]struct{}{}
	for _, c := range MandatoryColumns {
		known[c] = struct{}{}
	}
	row := state.SnowflakeRow{
		TxIDKey:           stringField(r, "TX_ID_KEY"),
		Email:             stringField(r, "EMAIL"),
		ModelScore:        floatField(r, "MODEL_SCORE"),
		IsFraudTx:         boolField(r, "IS_FRAUD_TX"),
		NsureLastDecision: stringField(r, "NSURE_LAST_DECISION"),
		Disputes:          intField(r, "DISPUTES"),
		FraudAlerts:       intField(r, "FRAUD_ALERTS"),
		PaidAmountValue:   floatField(r, "PAID_AMOUNT_VALUE"),
		IP:                stringField(r, "IP"),
		IPCountryCode:     stringField(r, "IP_COUNTRY_CODE"),
		DeviceID:          stringField(r, "DEVICE_ID"),
		DeviceFingerprint: stringField(r, "DEVICE_FINGERPRINT"),
		UserAgent:         stringField(r, "USER_AGENT"),
		DeviceType:        stringField(r, "DEVICE_TYPE"),
		TxDatetime:        timeField(r, "TX_DATETIME"),
	}
	extra := make(map[string]any)
	for k, v := range r {
		if _, ok := known[k]; !ok {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		row.Extra = extra
	}
	return row
}

func stringField(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func boolField(row map[string]any, key string) bool {
	v, ok := row[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func intField(row map[string]any, key string) int {
	v, ok := row[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func timeField(row map[string]any, key string) time.Time {
	v, ok := row[key]
	if !ok {
		return time.Time{}
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err == nil {
			return parsed
		}
	}
	return time.Time{}
}
