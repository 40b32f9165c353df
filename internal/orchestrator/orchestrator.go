// Package orchestrator implements the Orchestrator Agent: the
// per-phase driver that builds an LLM prompt for the current phase,
// requests a tool call or text completion, classifies failures, and decides
// the local phase outcome.
package orchestrator

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/olorin-ai/investigation-engine/internal/llm"
	"github.com/olorin-ai/investigation-engine/internal/phase"
	"github.com/olorin-ai/investigation-engine/internal/state"
	"github.com/olorin-ai/investigation-engine/internal/telemetry"
	"github.com/olorin-ai/investigation-engine/internal/tools"
)

// Options configures an Orchestrator. Model/Temperature/MaxTokens/Timeout
// are the fixed parameters of every model call; Ceilings drives the
// forced-progression checks the post-actions apply.
type Options struct {
	Client      llm.Client
	Registry    *tools.Registry
	Ceilings    phase.Ceilings
	Model       string
	ModelClass  llm.ModelClass
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// MaxTransientRetries bounds retries of llm.transient failures; 0 uses the default of 2.
	MaxTransientRetries int
	Logger              telemetry.Logger
	Metrics             telemetry.Metrics
}

// Orchestrator is the per-phase driver node of the Graph Runtime.
type Orchestrator struct {
	opts Options
}

// New constructs an Orchestrator from opts, filling in defaults.
func New(opts Options) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.MaxTransientRetries <= 0 {
		opts.MaxTransientRetries = 2
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoopMetrics()
	}
	return &Orchestrator{opts: opts}
}

// Invoke runs one orchestrator turn against a read-only snapshot of st,
// returning the StateUpdate the Graph Runtime should merge.
func (o *Orchestrator) Invoke(ctx context.Context, st *state.InvestigationState) (state.StateUpdate, error) {
	if st.CurrentPhase == state.PhaseDomainAnalysis {
		return o.invokeDomainAnalysisTurn(st), nil
	}

	req := &llm.Request{
		InvestigationID: string(st.InvestigationID),
		Phase:           string(st.CurrentPhase),
		Model:           o.opts.Model,
		ModelClass:      o.opts.ModelClass,
		Messages:        BuildMessages(st),
		Tools:           o.toolDefinitions(st.CurrentPhase),
		ToolChoice:      o.toolChoiceFor(st.CurrentPhase),
		Temperature:     o.opts.Temperature,
		MaxTokens:       o.opts.MaxTokens,
	}

	resp, err := o.completeWithRetry(ctx, req)
	if err != nil {
		return o.fatalUpdate(st, err), nil
	}

	aiMessage := fromLLMResponse(resp)
	update := state.StateUpdate{
		IncrementOrchestratorLoops: true,
		AppendMessages:             []state.Message{aiMessage},
	}
	o.applyPostAction(st, aiMessage, &update)
	return update, nil
}

// toolChoiceFor restricts tool use to "none" in the summary phase only;
// every other phase, initialization included, leaves the model free to
// choose.
func (o *Orchestrator) toolChoiceFor(p state.Phase) llm.ToolChoiceMode {
	if p == state.PhaseSummary {
		return llm.ToolChoiceNone
	}
	return llm.ToolChoiceAuto
}

func (o *Orchestrator) toolDefinitions(p state.Phase) []*llm.ToolDefinition {
	if p == state.PhaseSummary || o.opts.Registry == nil {
		return nil
	}
	return o.opts.Registry.Definitions()
}

// completeWithRetry calls the LLM, retrying llm.transient failures up to
// MaxTransientRetries times with jittered exponential backoff.
func (o *Orchestrator) completeWithRetry(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= o.opts.MaxTransientRetries; attempt++ {
		resp, err := o.opts.Client.Complete(callCtx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		pe, ok := llm.AsProviderError(err)
		if !ok || !pe.Retryable() || attempt == o.opts.MaxTransientRetries {
			return nil, err
		}

		o.opts.Logger.Warn(ctx, "llm call failed, retrying", "attempt", attempt, "error", err.Error())
		if sleepErr := sleepBackoff(ctx, attempt); sleepErr != nil {
			return nil, sleepErr
		}
	}
	return nil, lastErr
}

func sleepBackoff(ctx context.Context, attempt int) error {
	base := time.Duration(math.Pow(2, float64(attempt))) * 250 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	select {
	case <-time.After(base + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fatalUpdate classifies a terminal LLM failure into the llm.* error taxonomy
// and produces the partial-summary StateUpdate: context_length,
// model_not_found, and rate_limit are fatal on the first occurrence;
// a transient failure is fatal only once retries are exhausted. Both cases
// converge on risk=0.5, confidence=0. The asymmetry (non-zero risk with
// zero confidence) is a deliberate business choice, not a placeholder.
func (o *Orchestrator) fatalUpdate(st *state.InvestigationState, err error) state.StateUpdate {
	kind := "llm.transient"
	if pe, ok := llm.AsProviderError(err); ok {
		kind = string(pe.Kind)
	}
	riskScore := 0.5
	confidence := 0.0
	// A failure during the summary turn itself must not route back into
	// summary: the graph transitions to summary once, then complete.
	next := state.PhaseSummary
	if st.CurrentPhase == state.PhaseSummary {
		next = state.PhaseComplete
	}
	return state.StateUpdate{
		IncrementOrchestratorLoops: true,
		CurrentPhase:               &next,
		RiskScore:                  &riskScore,
		ConfidenceScore:            &confidence,
		AppendSkippedPhases:        skippedPhasesBeforeSummary(st.CurrentPhase),
		AppendErrors: []state.ErrorRecord{{
			Kind:    kind,
			Message: err.Error(),
			Phase:   st.CurrentPhase,
			Fatal:   true,
			At:      time.Now(),
		}},
	}
}

// skippedPhasesBeforeSummary lists the phases between from (exclusive) and
// summary (exclusive) that a forced fatal transition bypasses, so every
// bypassed phase is flagged as skipped.
func skippedPhasesBeforeSummary(from state.Phase) []state.Phase {
	var skipped []state.Phase
	passed := false
	for _, p := range phase.Sequence {
		if p == from {
			passed = true
			continue
		}
		if !passed {
			continue
		}
		if p == state.PhaseSummary {
			break
		}
		skipped = append(skipped, p)
	}
	return skipped
}

// applyPostAction applies the phase-specific post-actions of one turn.
func (o *Orchestrator) applyPostAction(st *state.InvestigationState, ai state.Message, update *state.StateUpdate) {
	switch st.CurrentPhase {
	case state.PhaseInitialization:
		next := state.PhaseSnowflake
		update.CurrentPhase = &next
		// The notice precedes the AI message so a tool-call-bearing AI turn
		// stays the last message for the Router's rule 2.
		update.AppendMessages = append(
			[]state.Message{state.System("Investigation opened; proceeding to warehouse query.")},
			update.AppendMessages...)

	case state.PhaseSnowflake:
		if phase.SnowflakeProgressionReady(st, o.opts.Ceilings, st.LoopsInPhase()+1) {
			next := state.PhaseToolExecution
			update.CurrentPhase = &next
		}
		// Otherwise the AI message is expected to contain the warehouse tool
		// call; the Router routes to NodeTools next turn on its own (Rule 2).

	case state.PhaseToolExecution:
		loopsInPhase := st.LoopsInPhase() + 1
		if phase.ToolExecutionProgressionReady(st, o.opts.Ceilings, loopsInPhase) {
			next := state.PhaseDomainAnalysis
			update.CurrentPhase = &next
		}

	case state.PhaseSummary:
		o.applySummary(st, update)
	}
}

// Finalize produces the summary StateUpdate without an LLM call: the
// deterministic fallback risk aggregation and confidence formula, with the
// investigation advanced to complete. The Graph Runtime uses it when a
// global budget is exhausted and there is no time left for a model turn.
func (o *Orchestrator) Finalize(st *state.InvestigationState) state.StateUpdate {
	update := state.StateUpdate{}
	if st.CurrentPhase != state.PhaseSummary {
		update.AppendSkippedPhases = skippedPhasesBeforeSummary(st.CurrentPhase)
	}
	o.applySummary(st, &update)
	return update
}

// invokeDomainAnalysisTurn handles the domain_analysis phase when the
// Router forces an orchestrator turn (all domains complete, or the phase
// loop ceiling reached): no LLM call, only a guidance message and, when
// appropriate, the transition into summary.
func (o *Orchestrator) invokeDomainAnalysisTurn(st *state.InvestigationState) state.StateUpdate {
	update := state.StateUpdate{IncrementOrchestratorLoops: true}
	if remaining, ok := phase.NextIncompleteDomain(st); ok {
		update.AppendMessages = []state.Message{
			state.System("Domain analysis ceiling reached with domains still incomplete: " + remaining),
		}
	} else {
		update.AppendMessages = []state.Message{
			state.System("All required domains complete."),
		}
	}
	next := state.PhaseSummary
	update.CurrentPhase = &next
	return update
}
