package deployment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHealthBody(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want HealthStatus
	}{
		{"empty body", "", Healthy},
		{"whitespace body", "  \n", Healthy},
		{"ok", `{"status":"ok"}`, Healthy},
		{"up", `{"status":"UP"}`, Healthy},
		{"degraded", `{"status":"degraded"}`, Degraded},
		{"warning", `{"status":"warning"}`, Degraded},
		{"down", `{"status":"down"}`, Unhealthy},
		{"error", `{"status":"error"}`, Unhealthy},
		{"unmapped word", `{"status":"flapping"}`, Unknown},
		{"no status field", `{"uptime":3}`, Unknown},
		{"unparseable", "not-json", Unknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyHealthBody([]byte(tc.body)), tc.name)
	}
}

func TestHTTPProberStatuses(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer healthy.Close()
	unavailable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unavailable.Close()

	prober := &HTTPProber{URLs: map[string]string{
		"backend":  healthy.URL,
		"frontend": unavailable.URL,
	}}

	status, err := prober.Probe(context.Background(), "backend")
	require.NoError(t, err)
	assert.Equal(t, Healthy, status)

	status, err = prober.Probe(context.Background(), "frontend")
	require.NoError(t, err)
	assert.Equal(t, Unhealthy, status)

	_, err = prober.Probe(context.Background(), "unknown-service")
	assert.Error(t, err)
}

func TestHealthGateExhaustsRetriesOn503(t *testing.T) {
	t.Parallel()

	var probes int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		probes++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gate := &HealthGate{
		Prober:   &HTTPProber{URLs: map[string]string{"backend": server.URL}},
		Retries:  3,
		Interval: time.Millisecond,
	}
	failed, err := gate.Wait(context.Background(), []string{"backend"})
	require.NoError(t, err)
	assert.Equal(t, "backend", failed)
	assert.Equal(t, 3, probes)
}
