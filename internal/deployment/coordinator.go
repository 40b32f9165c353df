package deployment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/olorin-ai/investigation-engine/internal/ident"
	"github.com/olorin-ai/investigation-engine/internal/notify"
	"github.com/olorin-ai/investigation-engine/internal/telemetry"
)

// ServiceDeployer performs and reverts one service's deployment. It is the
// opaque boundary to the actual deployment mechanism (container platform,
// orchestration scripts); implementations must respect ctx.
type ServiceDeployer interface {
	Deploy(ctx context.Context, id ident.DeploymentID, service, environment string) error
	Rollback(ctx context.Context, id ident.DeploymentID, service, environment string) error
}

// Options configures a Coordinator.
type Options struct {
	Deployer ServiceDeployer
	Journal  *Journal
	Gate     *HealthGate
	Notifier notify.Notifier
	Recovery RecoveryConfig

	// PhaseTimeout bounds one phase's deployment tasks. Zero means 120s.
	PhaseTimeout time.Duration

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
}

// Request describes one deployment to run.
type Request struct {
	Services     []string
	Dependencies map[string][]string
	Environment  string
	Metadata     map[string]string
}

// Coordinator runs dependency-ordered, health-gated deployments.
type Coordinator struct {
	opts Options
}

// NewCoordinator constructs a Coordinator from opts.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Deployer == nil {
		return nil, fmt.Errorf("deployment: deployer is required")
	}
	if opts.Journal == nil {
		return nil, fmt.Errorf("deployment: journal is required")
	}
	if opts.Gate == nil {
		return nil, fmt.Errorf("deployment: health gate is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Noop{}
	}
	if opts.PhaseTimeout <= 0 {
		opts.PhaseTimeout = 120 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoopMetrics()
	}
	return &Coordinator{opts: opts}, nil
}

// Deploy plans and executes req, journaling every transition. A dependency
// cycle refuses to start and is the only pre-state error; every later
// failure lands in the returned DeploymentState with status failed, which
// becomes rolled_back when the rollback pass reverted at least one service.
func (c *Coordinator) Deploy(ctx context.Context, req Request) (*DeploymentState, error) {
	phases, err := Plan(req.Services, req.Dependencies)
	if err != nil {
		return nil, err
	}

	state := NewState(ident.NewDeploymentID(), req.Environment, req.Services)
	state.Phases = phases
	state.Metadata = req.Metadata
	state.Status = StatusInProgress
	state.Log(fmt.Sprintf("planned %d phases", len(phases)))
	if err := c.opts.Journal.Write(state); err != nil {
		return nil, err
	}

	for i, phase := range phases {
		state.Log(fmt.Sprintf("phase %d: deploying %v", i, phase))
		if failed := c.runPhase(ctx, state, phase); failed != "" {
			return c.fail(ctx, state, fmt.Sprintf("service %s failed in phase %d", failed, i))
		}
		if failed, gateErr := c.opts.Gate.Wait(ctx, phase); gateErr != nil || failed != "" {
			if failed == "" {
				failed = phase[0]
			}
			state.ServiceLog(failed, "health gate failed")
			if state.Services[failed].Status.CanAdvance(ServiceFailed) {
				_ = state.AdvanceService(failed, ServiceFailed)
			}
			return c.fail(ctx, state, fmt.Sprintf("service %s unhealthy after phase %d", failed, i))
		}
		for _, name := range phase {
			_ = state.AdvanceService(name, ServiceSuccess)
		}
		state.Log(fmt.Sprintf("phase %d healthy", i))
		_ = c.opts.Journal.Record(state)
	}

	// Final aggregated health across every service.
	if failed, gateErr := c.opts.Gate.Wait(ctx, req.Services); gateErr != nil || failed != "" {
		if failed == "" {
			failed = req.Services[0]
		}
		return c.fail(ctx, state, fmt.Sprintf("system unhealthy after final phase: %s", failed))
	}

	now := time.Now().UTC()
	state.Status = StatusSuccess
	state.EndTime = &now
	state.Log("deployment succeeded")
	if err := c.opts.Journal.Write(state); err != nil {
		return state, err
	}
	c.opts.Metrics.IncCounter("deployment.success", 1, "environment", req.Environment)
	return state, nil
}

// runPhase launches every service in phase concurrently and waits for all
// to finish; it returns the name of the first failed service, or "".
// Services that deployed stay in_progress until the phase's health gate
// passes.
func (c *Coordinator) runPhase(ctx context.Context, state *DeploymentState, phase []string) string {
	phaseCtx, cancel := context.WithTimeout(ctx, c.opts.PhaseTimeout)
	defer cancel()

	for _, name := range phase {
		_ = state.AdvanceService(name, ServiceInProgress)
	}
	_ = c.opts.Journal.Record(state)

	type outcome struct {
		name string
		err  error
	}
	results := make(chan outcome, len(phase))
	var wg sync.WaitGroup
	for _, name := range phase {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			results <- outcome{name, c.opts.Deployer.Deploy(phaseCtx, state.DeploymentID, name, state.Environment)}
		}(name)
	}
	wg.Wait()
	close(results)

	failed := ""
	for out := range results {
		if out.err != nil {
			state.Services[out.name].Error = out.err.Error()
			state.ServiceLog(out.name, "deploy failed: "+out.err.Error())
			_ = state.AdvanceService(out.name, ServiceFailed)
			if failed == "" {
				failed = out.name
			}
			continue
		}
		state.ServiceLog(out.name, "deploy complete")
	}
	return failed
}

// fail runs the failure sequence in a fixed order: state update to failed
// first, then notification, then rollback, then the terminal rolled_back
// transition when the rollback pass reverted at least one service (with
// nothing reverted the deployment stays failed). Every terminal transition
// writes the journal.
func (c *Coordinator) fail(ctx context.Context, state *DeploymentState, reason string) (*DeploymentState, error) {
	now := time.Now().UTC()
	state.Status = StatusFailed
	state.EndTime = &now
	state.Log("deployment failed: " + reason)
	if err := c.opts.Journal.Write(state); err != nil {
		c.opts.Logger.Error(ctx, "journal write failed during failure handling", "error", err.Error())
	}
	c.opts.Metrics.IncCounter("deployment.failed", 1, "environment", state.Environment)

	if err := c.opts.Notifier.Notify(ctx, "Deployment failed",
		fmt.Sprintf("deployment %s (%s): %s", state.DeploymentID, state.Environment, reason)); err != nil {
		c.opts.Logger.Warn(ctx, "deployment failure notification failed", "error", err.Error())
	}

	state.Log("rollback requested")
	rollback := &RollbackExecutor{Deployer: c.opts.Deployer, Config: c.opts.Recovery, Logger: c.opts.Logger}
	if reverted := rollback.Execute(ctx, state); reverted > 0 {
		end := time.Now().UTC()
		state.Status = StatusRolledBack
		state.EndTime = &end
		state.Log(fmt.Sprintf("rollback complete: %d services reverted", reverted))
		if err := c.opts.Journal.Write(state); err != nil {
			return state, err
		}
	}
	return state, nil
}
