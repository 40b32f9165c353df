package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/olorin-ai/investigation-engine/internal/telemetry"
)

func TestMonitorRecordDoesNotPanicOnSlowOrFastQuery(t *testing.T) {
	t.Parallel()

	m := NewMonitor(telemetry.NewNoopLogger(), telemetry.NewNoopMetrics(), 5*time.Millisecond, 0)
	m.Record(context.Background(), "SELECT 1", 1*time.Millisecond, 1, nil)
	m.Record(context.Background(), "SELECT 1", 10*time.Millisecond, 1, nil)

	m.mu.Lock()
	s := m.stats[normalizeQuery("SELECT 1")]
	m.mu.Unlock()
	assert.Equal(t, 2, s.executions)
	assert.Equal(t, 1, s.slowCount)
}

func TestMonitorWatchAppliesBudget(t *testing.T) {
	t.Parallel()

	m := NewMonitor(telemetry.NewNoopLogger(), telemetry.NewNoopMetrics(), 0, 10*time.Millisecond)
	ctx, cancel := m.Watch(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("context should not be done immediately")
	default:
	}

	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 5*time.Millisecond)
}

func TestMonitorWatchWithoutBudgetHasNoDeadline(t *testing.T) {
	t.Parallel()

	m := NewMonitor(telemetry.NewNoopLogger(), telemetry.NewNoopMetrics(), 0, 0)
	ctx, cancel := m.Watch(context.Background())
	defer cancel()

	_, ok := ctx.Deadline()
	assert.False(t, ok)
}
