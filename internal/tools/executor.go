package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/olorin-ai/investigation-engine/internal/ident"
	"github.com/olorin-ai/investigation-engine/internal/telemetry"
	"github.com/olorin-ai/investigation-engine/internal/toolerrors"
)

// Call is one tool-call request extracted from an AI message.
type Call struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ExecutedResult is the outcome of one tool call, ready to be appended to
// investigation state as a Tool message.
type ExecutedResult struct {
	CallID  string
	Name    string
	Parsed  any
	Raw     []byte
	Format  string // "parsed" or "raw"
	IsError bool
	Err     *toolerrors.ToolError
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger overrides the executor's logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithTracer overrides the executor's tracer.
func WithTracer(tracer telemetry.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// WithMetrics overrides the executor's metrics recorder.
func WithMetrics(metrics telemetry.Metrics) Option {
	return func(e *Executor) { e.metrics = metrics }
}

// Executor runs tool calls against a Registry. Calls within one AI turn run
// concurrently; results are returned in the original request order so the
// caller can append Tool messages deterministically. Processing of a given
// (investigation, call-id) pair is idempotent: the seen set rejects repeats.
type Executor struct {
	registry *Registry
	logger   telemetry.Logger
	tracer   telemetry.Tracer
	metrics  telemetry.Metrics

	mu   sync.Mutex
	seen map[ident.InvestigationID]map[string]ExecutedResult
}

// NewExecutor constructs an Executor bound to registry.
func NewExecutor(registry *Registry, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		logger:   telemetry.NewNoopLogger(),
		tracer:   telemetry.NewNoopTracer(),
		metrics:  telemetry.NewNoopMetrics(),
		seen:     make(map[ident.InvestigationID]map[string]ExecutedResult),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every call concurrently and returns results in the same
// order as calls. A call already processed for investigationID (same
// CallID) returns its cached result without re-invoking the handler.
func (e *Executor) Execute(ctx context.Context, investigationID ident.InvestigationID, calls []Call) []ExecutedResult {
	results := make([]ExecutedResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		if cached, ok := e.cached(investigationID, call.ID); ok {
			results[i] = cached
			continue
		}
		wg.Add(1)
		go func(i int, call Call) {
			defer wg.Done()
			results[i] = e.executeOne(ctx, investigationID, call)
		}(i, call)
	}
	wg.Wait()
	for _, r := range results {
		e.remember(investigationID, r)
	}
	return results
}

func (e *Executor) cached(investigationID ident.InvestigationID, callID string) (ExecutedResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	byCall, ok := e.seen[investigationID]
	if !ok {
		return ExecutedResult{}, false
	}
	r, ok := byCall[callID]
	return r, ok
}

func (e *Executor) remember(investigationID ident.InvestigationID, r ExecutedResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	byCall, ok := e.seen[investigationID]
	if !ok {
		byCall = make(map[string]ExecutedResult)
		e.seen[investigationID] = byCall
	}
	byCall[r.CallID] = r
}

func (e *Executor) executeOne(ctx context.Context, investigationID ident.InvestigationID, call Call) ExecutedResult {
	ctx, span := e.tracer.Start(ctx, "tools.execute")
	defer span.End()
	span.AddEvent("tool_call_start", "tool", call.Name, "call_id", call.ID)

	spec, ok := e.registry.Spec(call.Name)
	if !ok {
		err := toolerrors.Execution(fmt.Sprintf("unknown tool %q", call.Name))
		e.logger.Warn(ctx, "tool not found", "tool", call.Name, "call_id", call.ID)
		return ExecutedResult{CallID: call.ID, Name: call.Name, IsError: true, Err: err}
	}

	if err := e.registry.validate(call.Name, call.Input); err != nil {
		e.metrics.IncCounter("tool.invalid_arguments", 1, "tool", call.Name)
		return ExecutedResult{
			CallID:  call.ID,
			Name:    call.Name,
			IsError: true,
			Err:     toolerrors.InvalidArguments(err.Error()),
		}
	}

	timeout := e.registry.timeoutFor(spec)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := spec.Handler(callCtx, call.Input)
		ch <- outcome{res, err}
	}()

	select {
	case <-callCtx.Done():
		e.metrics.IncCounter("tool.timeout", 1, "tool", call.Name)
		span.RecordError(callCtx.Err())
		return ExecutedResult{
			CallID:  call.ID,
			Name:    call.Name,
			IsError: true,
			Err:     toolerrors.Timeout(fmt.Sprintf("tool %q exceeded timeout %s", call.Name, timeout)),
		}
	case out := <-ch:
		if out.err != nil {
			e.metrics.IncCounter("tool.execution", 1, "tool", call.Name)
			span.RecordError(out.err)
			return ExecutedResult{
				CallID:  call.ID,
				Name:    call.Name,
				IsError: true,
				Err:     toolError(out.err),
			}
		}
		if out.res.Raw != nil && out.res.Parsed == nil {
			return ExecutedResult{CallID: call.ID, Name: call.Name, Raw: out.res.Raw, Format: "raw"}
		}
		return ExecutedResult{CallID: call.ID, Name: call.Name, Parsed: out.res.Parsed, Format: "parsed"}
	}
}
