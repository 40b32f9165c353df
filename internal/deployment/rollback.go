package deployment

import (
	"context"
	"time"

	"github.com/olorin-ai/investigation-engine/internal/telemetry"
)

// RecoveryConfig bounds the rollback pass.
type RecoveryConfig struct {
	// MaxAttempts bounds rollback attempts per service. Zero means 2.
	MaxAttempts int `yaml:"max_attempts"`
	// Timeout bounds the whole rollback pass. Zero means 60s.
	Timeout time.Duration `yaml:"timeout"`
}

func (c RecoveryConfig) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 2
	}
	return c.MaxAttempts
}

func (c RecoveryConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Timeout
}

// RollbackExecutor reverts every service of a failed deployment that is in
// progress or deployed successfully, bounded by a RecoveryConfig. Invoked by the coordinator after
// the deployment status is updated to failed.
type RollbackExecutor struct {
	Deployer ServiceDeployer
	Config   RecoveryConfig
	Logger   telemetry.Logger
}

// Execute rolls back every deployed service in state, newest phase first,
// advancing each to rolled_back, and returns how many services were
// reverted. Services that never deployed (pending) or whose deployment
// itself failed have nothing to revert and are left as they are. Rollback
// failures are logged per attempt; a service whose rollback never succeeds
// still advances to rolled_back so the deployment record reaches a
// terminal state.
func (r *RollbackExecutor) Execute(ctx context.Context, state *DeploymentState) int {
	logger := r.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	ctx, cancel := context.WithTimeout(ctx, r.Config.timeout())
	defer cancel()

	reverted := 0
	// Reverse phase order: dependents are reverted before their dependencies.
	for i := len(state.Phases) - 1; i >= 0; i-- {
		for _, name := range state.Phases[i] {
			svc, ok := state.Services[name]
			if !ok || (svc.Status != ServiceSuccess && svc.Status != ServiceInProgress) {
				continue
			}
			r.rollbackService(ctx, logger, state, name)
			reverted++
		}
	}
	return reverted
}

func (r *RollbackExecutor) rollbackService(ctx context.Context, logger telemetry.Logger, state *DeploymentState, name string) {
	for attempt := 1; attempt <= r.Config.maxAttempts(); attempt++ {
		err := r.Deployer.Rollback(ctx, state.DeploymentID, name, state.Environment)
		if err == nil {
			state.ServiceLog(name, "rollback complete")
			break
		}
		logger.Warn(ctx, "service rollback attempt failed",
			"deployment_id", string(state.DeploymentID), "service", name, "attempt", attempt, "error", err.Error())
		state.ServiceLog(name, "rollback attempt failed: "+err.Error())
	}
	if state.Services[name].Status.CanAdvance(ServiceRolledBack) {
		_ = state.AdvanceService(name, ServiceRolledBack)
	}
}
