package investigation

import (
	"context"
	"fmt"

	"github.com/olorin-ai/investigation-engine/internal/domainagents"
	"github.com/olorin-ai/investigation-engine/internal/graph"
	"github.com/olorin-ai/investigation-engine/internal/ident"
	"github.com/olorin-ai/investigation-engine/internal/llm"
	"github.com/olorin-ai/investigation-engine/internal/notify"
	"github.com/olorin-ai/investigation-engine/internal/orchestrator"
	"github.com/olorin-ai/investigation-engine/internal/state"
	"github.com/olorin-ai/investigation-engine/internal/state/statecache"
	"github.com/olorin-ai/investigation-engine/internal/telemetry"
	"github.com/olorin-ai/investigation-engine/internal/tools"
	"github.com/olorin-ai/investigation-engine/internal/warehouse"
)

// Request describes one investigation to run.
type Request struct {
	EntityType       string
	EntityID         string
	DateRangeDays    int
	CustomUserPrompt string
}

// Result is the user-visible outcome: the
// terminal state plus its derived risk level and recommendations.
type Result struct {
	State           *state.InvestigationState
	RiskLevel       orchestrator.RiskLevel
	Recommendations []string
}

// Deps carries the external collaborators a Service needs. Client and
// Warehouse are required; everything else is optional.
type Deps struct {
	Client    llm.Client
	Warehouse warehouse.QueryExecutor
	// ExtraTools are registered alongside the mandatory warehouse tool.
	ExtraTools []*tools.Spec
	Notifier   notify.Notifier
	// Cache, when set, receives a snapshot after every completed
	// investigation for cross-process observers.
	Cache   *statecache.Cache
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// Service runs investigations end to end.
type Service struct {
	cfg     *Config
	deps    Deps
	runtime *graph.Runtime
}

// NewService wires the registry, orchestrator, domain agents, and graph
// runtime from cfg and deps.
func NewService(cfg *Config, deps Deps) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ApplyDefaults()
	if deps.Client == nil {
		return nil, fmt.Errorf("investigation: llm client is required")
	}
	if deps.Warehouse == nil {
		return nil, fmt.Errorf("investigation: warehouse executor is required")
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.NewNoopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewNoopMetrics()
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.NewNoopTracer()
	}

	client := deps.Client
	if cfg.LLM.RatePerSecond > 0 {
		client = llm.WithRateLimit(client, cfg.LLM.RatePerSecond, cfg.LLM.Burst)
	}
	client = llm.WithBreaker(client, "investigation-llm")

	registry := tools.New(cfg.Tools.DefaultTimeout)
	monitor := warehouse.NewMonitor(deps.Logger, deps.Metrics, 0, cfg.Warehouse.QueryTimeout)
	warehouseCfg := warehouse.Config{
		TransactionsTable: cfg.Warehouse.TransactionsTable,
		ResultLimit:       cfg.Warehouse.ResultLimit,
	}
	if err := registry.Register(warehouse.Spec(warehouseCfg, deps.Warehouse, monitor, cfg.Warehouse.QueryTimeout)); err != nil {
		return nil, err
	}
	for _, spec := range deps.ExtraTools {
		if err := registry.Register(spec); err != nil {
			return nil, err
		}
	}

	ceilings := cfg.Ceilings()
	driver := orchestrator.New(orchestrator.Options{
		Client:      client,
		Registry:    registry,
		Ceilings:    ceilings,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		Logger:      deps.Logger,
		Metrics:     deps.Metrics,
	})

	agents := domainagents.ByName(domainagents.Deps{
		Logger:   deps.Logger,
		Notifier: deps.Notifier,
	})

	runtime, err := graph.New(graph.Options{
		Driver:            driver,
		Executor:          tools.NewExecutor(registry, tools.WithLogger(deps.Logger), tools.WithTracer(deps.Tracer), tools.WithMetrics(deps.Metrics)),
		Agents:            agents,
		Ceilings:          ceilings,
		WallClockBudget:   cfg.Runtime.WallClockBudget,
		ValidateEveryStep: cfg.TestMode,
		Logger:            deps.Logger,
		Metrics:           deps.Metrics,
		Tracer:            deps.Tracer,
	})
	if err != nil {
		return nil, err
	}

	return &Service{cfg: cfg, deps: deps, runtime: runtime}, nil
}

// Investigate runs one investigation to its terminal state. Distinct
// investigations may run concurrently; each call owns its own state store.
func (s *Service) Investigate(ctx context.Context, req Request) (*Result, error) {
	if req.EntityType == "" || req.EntityID == "" {
		return nil, fmt.Errorf("investigation: entity type and id are required")
	}
	if req.DateRangeDays < 1 {
		return nil, fmt.Errorf("investigation: date_range_days must be >= 1")
	}

	store := state.NewStore(state.New(
		ident.NewInvestigationID(),
		state.EntityRef{Type: req.EntityType, ID: req.EntityID},
		req.DateRangeDays,
		req.CustomUserPrompt,
	))

	final, err := s.runtime.Run(ctx, store)
	if err != nil {
		return nil, err
	}

	if s.deps.Cache != nil {
		if cacheErr := s.deps.Cache.Put(ctx, final); cacheErr != nil {
			s.deps.Logger.Warn(ctx, "snapshot cache write failed",
				"investigation_id", string(final.InvestigationID), "error", cacheErr.Error())
		}
	}

	return &Result{
		State:           final,
		RiskLevel:       orchestrator.Level(final.RiskScore),
		Recommendations: domainagents.RecommendedActions(final),
	}, nil
}
