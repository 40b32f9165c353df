// Package tools implements the Tool Registry & Executor: it indexes
// available tools, validates call arguments against each tool's declared
// JSON schema, runs tools concurrently with per-tool timeouts, and appends
// one Tool message per call, in request order, to the investigation state.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/olorin-ai/investigation-engine/internal/llm"
	"github.com/olorin-ai/investigation-engine/internal/toolerrors"
)

// Category groups tools for prompt-building and policy decisions (for
// example, restricting which categories a given phase may invoke).
type Category string

const (
	CategoryWarehouse   Category = "warehouse"
	CategoryThreatIntel Category = "threat_intel"
	CategoryNetwork     Category = "network"
	CategoryML          Category = "ml"
	CategorySearch      Category = "search"
	CategoryGeneric     Category = "generic"
)

// Handler executes a tool call. Implementations must respect ctx's deadline
// and cancellation and must not retain ctx past return.
type Handler func(ctx context.Context, args json.RawMessage) (Result, error)

// Result is a tool's successful output: either a structured JSON value or
// raw bytes with a content type.
type Result struct {
	Parsed      any
	Raw         []byte
	ContentType string
}

// Spec describes one registered tool.
type Spec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Category    Category
	// Timeout bounds a single invocation of this tool. Zero uses the
	// registry's default.
	Timeout time.Duration
	Handler Handler
}

// Registry indexes the tools available to the orchestrator for one
// investigation (or shared process-wide; the registry itself holds no
// per-investigation state).
type Registry struct {
	mu        sync.RWMutex
	specs     map[string]*Spec
	compiled  map[string]*jsonschema.Schema
	defaultTO time.Duration
}

// New constructs an empty Registry. defaultTimeout bounds any tool whose
// Spec.Timeout is zero.
func New(defaultTimeout time.Duration) *Registry {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Registry{
		specs:     make(map[string]*Spec),
		compiled:  make(map[string]*jsonschema.Schema),
		defaultTO: defaultTimeout,
	}
}

// Register adds a tool to the registry, compiling its input schema. It
// returns an error if the name is already registered or the schema fails
// to compile.
func (r *Registry) Register(spec *Spec) error {
	if spec == nil || spec.Name == "" {
		return fmt.Errorf("tools: tool name is required")
	}
	if spec.Handler == nil {
		return fmt.Errorf("tools: tool %q requires a handler", spec.Name)
	}
	compiler := jsonschema.NewCompiler()
	if len(spec.InputSchema) > 0 {
		var doc any
		if err := json.Unmarshal(spec.InputSchema, &doc); err != nil {
			return fmt.Errorf("tools: tool %q input schema: %w", spec.Name, err)
		}
		url := "mem://" + spec.Name + "/input-schema.json"
		if err := compiler.AddResource(url, doc); err != nil {
			return fmt.Errorf("tools: tool %q input schema: %w", spec.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return fmt.Errorf("tools: tool %q input schema: %w", spec.Name, err)
		}
		r.mu.Lock()
		r.compiled[spec.Name] = schema
		r.mu.Unlock()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("tools: tool %q already registered", spec.Name)
	}
	r.specs[spec.Name] = spec
	return nil
}

// Spec returns the registered spec for name, if any.
func (r *Registry) Spec(name string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// Definitions returns the ToolDefinition set for every registered tool in
// map iteration order, which is neither insertion order nor stable across
// calls.
func (r *Registry) Definitions() []*llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*llm.ToolDefinition, 0, len(r.specs))
	for _, s := range r.specs {
		var schema any
		if len(s.InputSchema) > 0 {
			_ = json.Unmarshal(s.InputSchema, &schema)
		}
		defs = append(defs, &llm.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: schema,
		})
	}
	return defs
}

// validate checks args against the tool's compiled schema, if any.
func (r *Registry) validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.compiled[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return schema.Validate(doc)
}

func (r *Registry) timeoutFor(spec *Spec) time.Duration {
	if spec.Timeout > 0 {
		return spec.Timeout
	}
	return r.defaultTO
}

// toolError wraps err, preserving an existing *toolerrors.ToolError kind or
// defaulting to KindExecution.
func toolError(err error) *toolerrors.ToolError {
	return toolerrors.FromError(err)
}
