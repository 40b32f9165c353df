package warehouse

import (
	"context"
	"sync"
	"time"

	"github.com/olorin-ai/investigation-engine/internal/telemetry"
)

// Monitor tracks in-flight and completed warehouse query durations,
// surfacing slow or runaway queries. It keeps running aggregate stats per
// normalized query text, flags executions that exceed a threshold, and
// bounds a single query's execution with a hard budget, escalating to a
// tool.execution failure rather than only logging a warning.
type Monitor struct {
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	threshold time.Duration
	budget    time.Duration

	mu    sync.Mutex
	stats map[string]*queryStats
}

type queryStats struct {
	executions int
	totalMs    float64
	slowCount  int
}

// NewMonitor constructs a Monitor. threshold is the slow-query log
// threshold; budget is the hard ceiling after which Watch cancels the
// query's context (zero disables the hard budget).
func NewMonitor(logger telemetry.Logger, metrics telemetry.Metrics, threshold, budget time.Duration) *Monitor {
	if threshold <= 0 {
		threshold = SlowQueryThreshold
	}
	return &Monitor{
		logger:    logger,
		metrics:   metrics,
		threshold: threshold,
		budget:    budget,
		stats:     make(map[string]*queryStats),
	}
}

// Watch wraps ctx with the Monitor's hard execution budget, if any.
func (m *Monitor) Watch(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.budget)
}

// Record logs metrics for one completed query execution, flagging it as
// slow when duration exceeds the configured threshold.
func (m *Monitor) Record(ctx context.Context, sql string, duration time.Duration, rowCount int, err error) {
	key := normalizeQuery(sql)
	durationMs := float64(duration.Milliseconds())

	m.mu.Lock()
	s, ok := m.stats[key]
	if !ok {
		s = &queryStats{}
		m.stats[key] = s
	}
	s.executions++
	s.totalMs += durationMs
	slow := duration > m.threshold
	if slow {
		s.slowCount++
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordTimer("warehouse.query.duration", duration, "success", boolTag(err == nil))
		m.metrics.RecordGauge("warehouse.query.row_count", float64(rowCount))
	}
	if slow && m.logger != nil {
		m.logger.Warn(ctx, "slow warehouse query", "duration_ms", durationMs, "threshold_ms", m.threshold.Milliseconds(), "query", key)
	}
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func normalizeQuery(sql string) string {
	if len(sql) > 100 {
		return sql[:100]
	}
	return sql
}
