package deployment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olorin-ai/investigation-engine/internal/ident"
)

// stubDeployer records deploy/rollback calls and fails the services listed
// in failures.
type stubDeployer struct {
	mu        sync.Mutex
	deployed  []string
	rolledBck []string
	failures  map[string]error
}

func (s *stubDeployer) Deploy(_ context.Context, _ ident.DeploymentID, service, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failures[service]; ok {
		return err
	}
	s.deployed = append(s.deployed, service)
	return nil
}

func (s *stubDeployer) Rollback(_ context.Context, _ ident.DeploymentID, service, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolledBck = append(s.rolledBck, service)
	return nil
}

// stubProber serves scripted health statuses; unlisted services are healthy.
type stubProber struct {
	statuses map[string]HealthStatus
}

func (s *stubProber) Probe(_ context.Context, service string) (HealthStatus, error) {
	if status, ok := s.statuses[service]; ok {
		return status, nil
	}
	return Healthy, nil
}

func coordinatorFixture(t *testing.T, deployer *stubDeployer, prober Prober) (*Coordinator, *Journal) {
	t.Helper()
	journal, err := NewJournal(t.TempDir(), 0)
	require.NoError(t, err)
	coord, err := NewCoordinator(Options{
		Deployer:     deployer,
		Journal:      journal,
		Gate:         &HealthGate{Prober: prober, Retries: 2, Interval: time.Millisecond},
		PhaseTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return coord, journal
}

func TestDeployTwoPhaseSuccess(t *testing.T) {
	t.Parallel()

	deployer := &stubDeployer{}
	coord, journal := coordinatorFixture(t, deployer, &stubProber{})

	state, err := coord.Deploy(context.Background(), Request{
		Services:     []string{"backend", "frontend"},
		Dependencies: map[string][]string{"frontend": {"backend"}},
		Environment:  "staging",
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"backend"}, {"frontend"}}, state.Phases)
	assert.Equal(t, StatusSuccess, state.Status)
	// Backend deploys strictly before frontend.
	assert.Equal(t, []string{"backend", "frontend"}, deployer.deployed)
	for _, name := range []string{"backend", "frontend"} {
		svc := state.Services[name]
		assert.Equal(t, ServiceSuccess, svc.Status, name)
		require.NotNil(t, svc.CompletedAt, name)
	}
	require.NotNil(t, state.EndTime)

	reloaded, err := journal.Load(state.DeploymentID)
	require.NoError(t, err)
	assert.Equal(t, state.DeploymentID, reloaded.DeploymentID)
	assert.Equal(t, state.Status, reloaded.Status)
	assert.Equal(t, state.Phases, reloaded.Phases)
	assert.Equal(t, ServiceSuccess, reloaded.Services["backend"].Status)
	assert.Equal(t, ServiceSuccess, reloaded.Services["frontend"].Status)
}

func TestDeployHealthGateFailureStopsPipeline(t *testing.T) {
	t.Parallel()

	deployer := &stubDeployer{}
	prober := &stubProber{statuses: map[string]HealthStatus{"backend": Unhealthy}}
	coord, journal := coordinatorFixture(t, deployer, prober)

	state, err := coord.Deploy(context.Background(), Request{
		Services:     []string{"backend", "frontend"},
		Dependencies: map[string][]string{"frontend": {"backend"}},
		Environment:  "staging",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, ServiceFailed, state.Services["backend"].Status)
	// Frontend never started.
	assert.Equal(t, ServicePending, state.Services["frontend"].Status)
	assert.NotContains(t, deployer.deployed, "frontend")
	require.NotNil(t, state.EndTime)
	assert.True(t, hasLogContaining(state.Logs, "rollback requested"))

	reloaded, err := journal.Load(state.DeploymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, reloaded.Status)
	assert.Equal(t, ServiceFailed, reloaded.Services["backend"].Status)
}

func TestDeployServiceFailureRollsBackDeployedSiblings(t *testing.T) {
	t.Parallel()

	deployer := &stubDeployer{failures: map[string]error{"worker": fmt.Errorf("image pull failed")}}
	coord, _ := coordinatorFixture(t, deployer, &stubProber{})

	state, err := coord.Deploy(context.Background(), Request{
		Services:    []string{"api", "worker"},
		Environment: "staging",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusRolledBack, state.Status)
	assert.Equal(t, ServiceFailed, state.Services["worker"].Status)
	assert.Equal(t, ServiceRolledBack, state.Services["api"].Status)
	assert.Contains(t, deployer.rolledBck, "api")
	assert.NotContains(t, deployer.rolledBck, "worker")
	assert.Equal(t, "image pull failed", state.Services["worker"].Error)
}

func TestDeployCycleRefusesToStart(t *testing.T) {
	t.Parallel()

	deployer := &stubDeployer{}
	coord, journal := coordinatorFixture(t, deployer, &stubProber{})

	_, err := coord.Deploy(context.Background(), Request{
		Services:     []string{"a", "b"},
		Dependencies: map[string][]string{"a": {"b"}, "b": {"a"}},
		Environment:  "staging",
	})
	var cycle *ErrDependencyCycle
	require.ErrorAs(t, err, &cycle)
	assert.Empty(t, deployer.deployed)

	ids, err := journal.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestJournalRoundTrip(t *testing.T) {
	t.Parallel()

	journal, err := NewJournal(t.TempDir(), 0)
	require.NoError(t, err)

	state := NewState("dep-1", "production", []string{"api"})
	state.Phases = [][]string{{"api"}}
	state.Metadata = map[string]string{"trigger": "release-42"}
	state.Log("created")
	require.NoError(t, state.AdvanceService("api", ServiceInProgress))
	require.NoError(t, state.AdvanceService("api", ServiceSuccess))
	now := time.Now().UTC().Truncate(time.Second)
	state.Status = StatusSuccess
	state.EndTime = &now
	require.NoError(t, journal.Write(state))

	reloaded, err := journal.Load("dep-1")
	require.NoError(t, err)
	assert.Equal(t, state.DeploymentID, reloaded.DeploymentID)
	assert.Equal(t, state.Environment, reloaded.Environment)
	assert.Equal(t, state.Status, reloaded.Status)
	assert.Equal(t, state.Phases, reloaded.Phases)
	assert.Equal(t, state.Metadata, reloaded.Metadata)
	assert.Equal(t, state.Logs, reloaded.Logs)
	assert.Equal(t, ServiceSuccess, reloaded.Services["api"].Status)
	require.NotNil(t, reloaded.EndTime)
	assert.True(t, state.EndTime.Equal(*reloaded.EndTime))
}

func TestJournalRecordAmortisesWrites(t *testing.T) {
	t.Parallel()

	journal, err := NewJournal(t.TempDir(), 3)
	require.NoError(t, err)
	state := NewState("dep-2", "staging", []string{"api"})

	require.NoError(t, journal.Record(state)) // 1 of 3: skipped
	_, loadErr := journal.Load("dep-2")
	assert.Error(t, loadErr)

	require.NoError(t, journal.Record(state)) // 2 of 3: skipped
	require.NoError(t, journal.Record(state)) // 3 of 3: flushed
	_, loadErr = journal.Load("dep-2")
	assert.NoError(t, loadErr)
}

func TestServiceStatusAdvancesForwardOnly(t *testing.T) {
	t.Parallel()

	state := NewState("dep-3", "staging", []string{"api"})
	require.NoError(t, state.AdvanceService("api", ServiceInProgress))
	assert.Error(t, state.AdvanceService("api", ServicePending))
	require.NoError(t, state.AdvanceService("api", ServiceFailed))
	assert.Error(t, state.AdvanceService("api", ServiceSuccess))
	require.NoError(t, state.AdvanceService("api", ServiceRolledBack))
	assert.Error(t, state.AdvanceService("api", ServiceRolledBack))
}

func hasLogContaining(logs []string, want string) bool {
	for _, l := range logs {
		if strings.Contains(l, want) {
			return true
		}
	}
	return false
}
