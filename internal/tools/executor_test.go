package tools

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olorin-ai/investigation-engine/internal/toolerrors"
)

func registryWith(t *testing.T, specs ...*Spec) *Registry {
	t.Helper()
	r := New(2 * time.Second)
	for _, s := range specs {
		require.NoError(t, r.Register(s))
	}
	return r
}

func echoSpec(name string) *Spec {
	return &Spec{
		Name:        name,
		Description: "echoes its arguments",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Category:    CategoryGeneric,
		Handler: func(_ context.Context, args json.RawMessage) (Result, error) {
			var parsed any
			_ = json.Unmarshal(args, &parsed)
			return Result{Parsed: parsed}, nil
		},
	}
}

func TestRegisterRejectsDuplicatesAndBadSchemas(t *testing.T) {
	t.Parallel()

	r := New(time.Second)
	require.NoError(t, r.Register(echoSpec("echo")))
	assert.Error(t, r.Register(echoSpec("echo")))
	assert.Error(t, r.Register(&Spec{Name: "", Handler: echoSpec("x").Handler}))
	assert.Error(t, r.Register(&Spec{Name: "no-handler"}))
	assert.Error(t, r.Register(&Spec{
		Name:        "bad-schema",
		InputSchema: json.RawMessage(`{not json`),
		Handler:     echoSpec("x").Handler,
	}))
}

func TestExecutePreservesRequestOrder(t *testing.T) {
	t.Parallel()

	slow := &Spec{
		Name:        "slow",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler: func(ctx context.Context, _ json.RawMessage) (Result, error) {
			select {
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
			}
			return Result{Parsed: "slow done"}, nil
		},
	}
	r := registryWith(t, echoSpec("fast"), slow)
	e := NewExecutor(r)

	results := e.Execute(context.Background(), "inv-1", []Call{
		{ID: "c1", Name: "slow", Input: json.RawMessage(`{}`)},
		{ID: "c2", Name: "fast", Input: json.RawMessage(`{"n":1}`)},
	})
	require.Len(t, results, 2)
	// The fast tool finishes first but is emitted second, in request order.
	assert.Equal(t, "c1", results[0].CallID)
	assert.Equal(t, "c2", results[1].CallID)
	assert.Equal(t, "slow done", results[0].Parsed)
}

func TestExecuteAtMostOncePerCallID(t *testing.T) {
	t.Parallel()

	var invocations atomic.Int32
	counting := &Spec{
		Name:        "counting",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler: func(context.Context, json.RawMessage) (Result, error) {
			invocations.Add(1)
			return Result{Parsed: "ok"}, nil
		},
	}
	r := registryWith(t, counting)
	e := NewExecutor(r)

	calls := []Call{{ID: "c1", Name: "counting", Input: json.RawMessage(`{}`)}}
	first := e.Execute(context.Background(), "inv-1", calls)
	second := e.Execute(context.Background(), "inv-1", calls)

	assert.Equal(t, int32(1), invocations.Load())
	assert.Equal(t, first, second)

	// A different investigation is a fresh scope.
	e.Execute(context.Background(), "inv-2", calls)
	assert.Equal(t, int32(2), invocations.Load())
}

func TestExecuteInvalidArguments(t *testing.T) {
	t.Parallel()

	strict := &Spec{
		Name:        "strict",
		InputSchema: json.RawMessage(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`),
		Handler: func(context.Context, json.RawMessage) (Result, error) {
			return Result{Parsed: "unreachable"}, nil
		},
	}
	r := registryWith(t, strict)
	e := NewExecutor(r)

	results := e.Execute(context.Background(), "inv-1", []Call{
		{ID: "c1", Name: "strict", Input: json.RawMessage(`{}`)},
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Equal(t, toolerrors.KindInvalidArguments, results[0].Err.Kind)
}

func TestExecuteTimeout(t *testing.T) {
	t.Parallel()

	hanging := &Spec{
		Name:        "hanging",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Timeout:     20 * time.Millisecond,
		Handler: func(ctx context.Context, _ json.RawMessage) (Result, error) {
			<-ctx.Done()
			return Result{}, ctx.Err()
		},
	}
	r := registryWith(t, hanging)
	e := NewExecutor(r)

	results := e.Execute(context.Background(), "inv-1", []Call{
		{ID: "c1", Name: "hanging", Input: json.RawMessage(`{}`)},
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Equal(t, toolerrors.KindTimeout, results[0].Err.Kind)
}

func TestExecuteUnknownTool(t *testing.T) {
	t.Parallel()

	e := NewExecutor(registryWith(t))
	results := e.Execute(context.Background(), "inv-1", []Call{
		{ID: "c1", Name: "nope", Input: json.RawMessage(`{}`)},
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Equal(t, toolerrors.KindExecution, results[0].Err.Kind)
}

func TestExecuteRawResult(t *testing.T) {
	t.Parallel()

	raw := &Spec{
		Name:        "raw",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler: func(context.Context, json.RawMessage) (Result, error) {
			return Result{Raw: []byte("binary"), ContentType: "application/octet-stream"}, nil
		},
	}
	e := NewExecutor(registryWith(t, raw))
	results := e.Execute(context.Background(), "inv-1", []Call{
		{ID: "c1", Name: "raw", Input: json.RawMessage(`{}`)},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "raw", results[0].Format)
	assert.Equal(t, []byte("binary"), results[0].Raw)
}

func TestDefinitionsExposeSchemas(t *testing.T) {
	t.Parallel()

	r := registryWith(t, echoSpec("echo"))
	defs := r.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "echo", defs[0].Name)
	assert.NotNil(t, defs[0].InputSchema)
}
