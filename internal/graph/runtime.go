// Package graph implements the Graph Runtime: the flat loop that
// drives an investigation by consulting the Router, executing the selected
// node, and merging its StateUpdate — bounded by a recursion budget and a
// wall-clock budget so the investigation terminates deterministically even
// when the model stalls or loops.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/olorin-ai/investigation-engine/internal/domainagents"
	"github.com/olorin-ai/investigation-engine/internal/phase"
	"github.com/olorin-ai/investigation-engine/internal/router"
	"github.com/olorin-ai/investigation-engine/internal/state"
	"github.com/olorin-ai/investigation-engine/internal/telemetry"
	"github.com/olorin-ai/investigation-engine/internal/tools"
)

// Driver is the orchestrator surface the runtime needs: one per-phase turn,
// plus a deterministic no-LLM finalisation used when a budget is exhausted.
// internal/orchestrator.Orchestrator is the production implementation;
// tests substitute stubs to script pathological behaviour.
type Driver interface {
	Invoke(ctx context.Context, st *state.InvestigationState) (state.StateUpdate, error)
	Finalize(st *state.InvestigationState) state.StateUpdate
}

// Options configures a Runtime.
type Options struct {
	Driver   Driver
	Executor *tools.Executor
	Agents   map[string]domainagents.Agent
	Ceilings phase.Ceilings

	// WallClockBudget bounds the whole investigation. Zero uses the live default.
	WallClockBudget time.Duration
	// NodeTimeout bounds a single node execution. Zero uses a default
	// derived from WallClockBudget.
	NodeTimeout time.Duration
	// ValidateEveryStep runs state.ValidateIntegrity before every node
	// execution instead of only on phase transitions. Enabled by test mode.
	ValidateEveryStep bool

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// Runtime drives one or more investigations. It holds no per-investigation
// state; each Run owns its Store for the duration of the call.
type Runtime struct {
	opts Options
}

// New constructs a Runtime from opts, filling in defaults.
func New(opts Options) (*Runtime, error) {
	if opts.Driver == nil {
		return nil, fmt.Errorf("graph: driver is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("graph: tool executor is required")
	}
	if opts.WallClockBudget <= 0 {
		opts.WallClockBudget = 180 * time.Second
	}
	if opts.NodeTimeout <= 0 {
		opts.NodeTimeout = opts.WallClockBudget / 2
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoopMetrics()
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.NewNoopTracer()
	}
	return &Runtime{opts: opts}, nil
}

// Run drives store's investigation to completion and returns the terminal
// snapshot. The only non-nil errors are programmer errors (integrity
// violations); every operational failure is recorded in the state instead.
func (r *Runtime) Run(ctx context.Context, store *state.Store) (*state.InvestigationState, error) {
	start := time.Now()
	deadline := start.Add(r.opts.WallClockBudget)
	warnAt := start.Add(time.Duration(float64(r.opts.WallClockBudget) * 0.8))
	warned := false

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	steps := 0
	for {
		st := store.Snapshot()

		if r.opts.ValidateEveryStep || steps == 0 {
			if err := state.ValidateIntegrity(st); err != nil {
				store.AppendError(state.ErrorRecord{
					Kind: "runtime.integrity", Message: err.Error(), Phase: st.CurrentPhase, Fatal: true, At: time.Now(),
				})
				return store.Snapshot(), err
			}
		}

		now := time.Now()
		if !warned && now.After(warnAt) {
			warned = true
			r.opts.Logger.Warn(ctx, "investigation approaching wall-clock budget",
				"investigation_id", string(st.InvestigationID), "elapsed", now.Sub(start).String())
		}
		if now.After(deadline) {
			return r.forceFinalize(store, st, "runtime.timeout",
				fmt.Sprintf("wall-clock budget %s exhausted", r.opts.WallClockBudget)), nil
		}
		if st.OrchestratorLoops > r.opts.Ceilings.RecursionBudget() {
			return r.forceFinalize(store, st, "runtime.recursion_limit",
				fmt.Sprintf("recursion budget %d exhausted", r.opts.Ceilings.RecursionBudget())), nil
		}
		// Hard backstop against a node set that spins without ever invoking
		// the orchestrator; unreachable when the Router behaves.
		if steps > 6*r.opts.Ceilings.RecursionBudget() {
			return r.forceFinalize(store, st, "runtime.recursion_limit",
				fmt.Sprintf("step backstop %d exhausted", 6*r.opts.Ceilings.RecursionBudget())), nil
		}
		if ctx.Err() != nil && now.Before(deadline) {
			// External cancellation, not our own deadline.
			return r.forceFinalize(store, st, "runtime.cancelled", ctx.Err().Error()), nil
		}

		verdict := router.Route(st, r.opts.Ceilings)
		store.AppendRouting(router.RecordDecision(verdict, st, time.Now()))

		if verdict.Rule == 1 && !hasErrorKind(st, "runtime.recursion_limit") {
			store.AppendError(state.ErrorRecord{
				Kind:    "runtime.recursion_limit",
				Message: verdict.Reason,
				Phase:   st.CurrentPhase,
				At:      time.Now(),
			})
		}

		switch verdict.Node {
		case router.NodeTerminal:
			return r.finish(store), nil
		case router.NodeOrchestrator:
			r.runNode(ctx, store, st, "orchestrator", r.opts.Driver.Invoke)
		case router.NodeTools:
			r.runNode(ctx, store, st, "tools", r.toolsNode)
		case router.NodeDomainAgent:
			r.runNode(ctx, store, st, "domain:"+verdict.Domain, r.domainNode(verdict.Domain))
		case router.NodeSummary:
			r.runNode(ctx, store, st, "summary", r.summaryNode)
		}
		steps++
	}
}

// runNode executes one node with the per-node timeout and merges its update.
// A node error is the unhandled-exception path: record it as fatal
// and force the phase to summary.
func (r *Runtime) runNode(ctx context.Context, store *state.Store, st *state.InvestigationState, name string, node func(context.Context, *state.InvestigationState) (state.StateUpdate, error)) {
	nodeCtx, cancel := context.WithTimeout(ctx, r.opts.NodeTimeout)
	defer cancel()

	nodeCtx, span := r.opts.Tracer.Start(nodeCtx, "graph.node")
	defer span.End()
	span.AddEvent("node_start", "node", name, "investigation_id", string(st.InvestigationID))

	begin := time.Now()
	update, err := node(nodeCtx, st)
	r.opts.Metrics.RecordTimer("graph.node.duration", time.Since(begin), "node", name)

	if err != nil {
		span.RecordError(err)
		summary := state.PhaseSummary
		fatal := state.StateUpdate{
			AppendErrors: []state.ErrorRecord{{
				Kind: "runtime.node", Message: name + ": " + err.Error(), Phase: st.CurrentPhase, Fatal: true, At: time.Now(),
			}},
		}
		if st.CurrentPhase != state.PhaseSummary && st.CurrentPhase != state.PhaseComplete {
			fatal.CurrentPhase = &summary
		}
		store.Apply(fatal)
		return
	}
	store.Apply(update)
}

// summaryNode runs the summary turn. When the Router forced summary from an
// earlier phase (rule 1), the skipped phases are flagged and the phase
// advanced before the driver's summary turn executes.
func (r *Runtime) summaryNode(ctx context.Context, st *state.InvestigationState) (state.StateUpdate, error) {
	if st.CurrentPhase != state.PhaseSummary {
		summary := state.PhaseSummary
		skipped := phasesBetween(st.CurrentPhase, state.PhaseSummary)
		update := state.StateUpdate{CurrentPhase: &summary, AppendSkippedPhases: skipped}
		// The driver's summary turn runs on the next iteration via rule 5.
		return update, nil
	}
	if hasFatalErrorPrefix(st, "llm.") {
		// The partial summary (risk=0.5, confidence=0) was already applied by
		// the fatal-failure path; transition straight to complete.
		complete := state.PhaseComplete
		return state.StateUpdate{CurrentPhase: &complete}, nil
	}
	if hasFatalError(st) {
		// A non-LLM node failure forced summary without computing scores; the
		// deterministic finalisation fills them in.
		return r.opts.Driver.Finalize(st), nil
	}
	return r.opts.Driver.Invoke(ctx, st)
}

func (r *Runtime) domainNode(domain string) func(context.Context, *state.InvestigationState) (state.StateUpdate, error) {
	return func(ctx context.Context, st *state.InvestigationState) (state.StateUpdate, error) {
		agent, ok := r.opts.Agents[domain]
		if !ok {
			return state.StateUpdate{}, fmt.Errorf("no agent registered for domain %q", domain)
		}
		finding, err := agent.Analyze(ctx, st)
		if err != nil {
			return state.StateUpdate{}, err
		}
		name := domain
		return state.StateUpdate{DomainComplete: &name, DomainFinding: &finding}, nil
	}
}

// forceFinalize handles global budget exhaustion: record the
// safety termination, force summary, run the deterministic finalisation
// once, and return the terminal snapshot.
func (r *Runtime) forceFinalize(store *state.Store, st *state.InvestigationState, kind, message string) *state.InvestigationState {
	if !hasErrorKind(st, kind) {
		store.AppendError(state.ErrorRecord{Kind: kind, Message: message, Phase: st.CurrentPhase, At: time.Now()})
	}
	if st.CurrentPhase != state.PhaseComplete {
		snapshot := store.Snapshot()
		store.Apply(r.opts.Driver.Finalize(snapshot))
	}
	return r.finish(store)
}

func (r *Runtime) finish(store *state.Store) *state.InvestigationState {
	now := time.Now()
	return store.Apply(state.StateUpdate{EndTime: &now})
}

func phasesBetween(from, to state.Phase) []state.Phase {
	var out []state.Phase
	passed := false
	for _, p := range phase.Sequence {
		if p == from {
			passed = true
			continue
		}
		if !passed {
			continue
		}
		if p == to {
			break
		}
		out = append(out, p)
	}
	return out
}

func hasErrorKind(st *state.InvestigationState, kind string) bool {
	for _, e := range st.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func hasFatalError(st *state.InvestigationState) bool {
	for _, e := range st.Errors {
		if e.Fatal {
			return true
		}
	}
	return false
}

func hasFatalErrorPrefix(st *state.InvestigationState, prefix string) bool {
	for _, e := range st.Errors {
		if e.Fatal && len(e.Kind) >= len(prefix) && e.Kind[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
