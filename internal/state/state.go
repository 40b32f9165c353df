package state

import (
	"sync"
	"time"

	"github.com/olorin-ai/investigation-engine/internal/ident"
)

// Phase is one stage of the investigation phase machine.
type Phase string

const (
	PhaseInitialization Phase = "initialization"
	PhaseSnowflake      Phase = "snowflake_analysis"
	PhaseToolExecution  Phase = "tool_execution"
	PhaseDomainAnalysis Phase = "domain_analysis"
	PhaseSummary        Phase = "summary"
	PhaseComplete       Phase = "complete"
)

// EntityRef identifies the subject under investigation.
type EntityRef struct {
	Type string
	ID   string
}

// DomainFinding is the structured output of one domain agent.
type DomainFinding struct {
	RiskScore      float64
	Confidence     float64
	RiskIndicators []string
	Details        any
}

// ErrorRecord is one entry in the append-only error list.
type ErrorRecord struct {
	Kind    string
	Message string
	Phase   Phase
	Fatal   bool
	At      time.Time
}

// RoutingDecision is one entry in the append-only routing audit trail
// produced by the Router.
type RoutingDecision struct {
	Rule   int
	Reason string
	Inputs map[string]any
	At     time.Time
}

// SnowflakeRow is one parsed warehouse result row, keyed by the mandatory
// column set. Only the columns consumed
// by risk aggregation and domain agents are typed; the rest travel in Extra.
type SnowflakeRow struct {
	TxIDKey           string
	Email             string
	ModelScore        float64
	IsFraudTx         bool
	NsureLastDecision string
	Disputes          int
	FraudAlerts       int
	PaidAmountValue   float64
	IP                string
	IPCountryCode     string
	DeviceID          string
	DeviceFingerprint string
	UserAgent         string
	DeviceType        string
	TxDatetime        time.Time
	Extra             map[string]any
}

// SnowflakeResult is the last parsed warehouse result.
type SnowflakeResult struct {
	Rows     []SnowflakeRow
	RowCount int
}

// InvestigationState is the single mutable investigation record. It is
// owned by the Graph Runtime and mutated only by merging a StateUpdate via
// Store.Apply; concurrent reads of a Snapshot are always safe.
type InvestigationState struct {
	InvestigationID ident.InvestigationID
	Entity          EntityRef
	DateRangeDays   int
	CurrentPhase    Phase

	Messages []Message

	ToolsUsed   map[string]struct{}
	ToolResults map[string]any

	SnowflakeData      *SnowflakeResult
	SnowflakeCompleted bool

	DomainsCompleted []string
	DomainFindings   map[string]DomainFinding

	RiskScore       float64
	ConfidenceScore float64

	OrchestratorLoops     int
	ToolExecutionAttempts int

	// PhaseEnteredAtLoop is the value OrchestratorLoops held when
	// CurrentPhase last changed. LoopsInPhase derives the per-phase loop
	// count from it so the Router stays a pure function of the state value
	// instead of depending on a counter threaded through the call stack.
	PhaseEnteredAtLoop int

	StartTime       time.Time
	EndTime         time.Time
	TotalDurationMs int64

	CustomUserPrompt string

	Errors           []ErrorRecord
	RoutingDecisions []RoutingDecision

	// SkippedPhases records phases bypassed by a fatal-error fast path to
	// summary, so the phase-sequencing audit stays complete.
	SkippedPhases []Phase
}

// clone deep-copies everything the store mutates so Snapshot callers can
// never observe a torn or later-mutated view.
func (s *InvestigationState) clone() *InvestigationState {
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	cp.ToolsUsed = cloneSet(s.ToolsUsed)
	cp.ToolResults = cloneAnyMap(s.ToolResults)
	cp.DomainsCompleted = append([]string(nil), s.DomainsCompleted...)
	cp.DomainFindings = cloneFindings(s.DomainFindings)
	cp.Errors = append([]ErrorRecord(nil), s.Errors...)
	cp.RoutingDecisions = append([]RoutingDecision(nil), s.RoutingDecisions...)
	cp.SkippedPhases = append([]Phase(nil), s.SkippedPhases...)
	if s.SnowflakeData != nil {
		sd := *s.SnowflakeData
		sd.Rows = append([]SnowflakeRow(nil), s.SnowflakeData.Rows...)
		cp.SnowflakeData = &sd
	}
	return &cp
}

func cloneSet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneFindings(m map[string]DomainFinding) map[string]DomainFinding {
	out := make(map[string]DomainFinding, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StateUpdate is the typed record every node returns instead of mutating
// InvestigationState directly. Store.Apply merges it with last-writer-wins
// semantics for scalars, union for sets, append for sequences, and
// map-merge for ToolResults/DomainFindings.
type StateUpdate struct {
	CurrentPhase *Phase

	AppendMessages []Message

	ToolsUsed   []string
	ToolResults map[string]any

	SnowflakeData      *SnowflakeResult
	SnowflakeCompleted *bool

	DomainComplete *string
	DomainFinding  *DomainFinding

	RiskScore       *float64
	ConfidenceScore *float64

	IncrementOrchestratorLoops     bool
	IncrementToolExecutionAttempts bool

	EndTime *time.Time

	AppendErrors           []ErrorRecord
	AppendRoutingDecisions []RoutingDecision
	AppendSkippedPhases    []Phase
}

// New constructs the initial InvestigationState for a freshly created
// investigation, before the Graph Runtime's first node executes.
func New(id ident.InvestigationID, entity EntityRef, dateRangeDays int, customUserPrompt string) *InvestigationState {
	return &InvestigationState{
		InvestigationID:  id,
		Entity:           entity,
		DateRangeDays:    dateRangeDays,
		CurrentPhase:     PhaseInitialization,
		ToolsUsed:        make(map[string]struct{}),
		ToolResults:      make(map[string]any),
		DomainFindings:   make(map[string]DomainFinding),
		StartTime:        time.Now(),
		CustomUserPrompt: customUserPrompt,
	}
}

// Store is the single-writer-per-investigation owner of an
// InvestigationState. Readers may call Snapshot concurrently with a writer
// calling Apply; Snapshot always returns a consistent, independent copy.
type Store struct {
	mu    sync.RWMutex
	state *InvestigationState
}

// NewStore wraps an initial state in a Store.
func NewStore(initial *InvestigationState) *Store {
	return &Store{state: initial}
}

// Snapshot returns a deep copy of the current state, safe for the caller to
// read without further synchronization.
func (s *Store) Snapshot() *InvestigationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Apply merges update into the state and returns the resulting snapshot.
// Apply must only be called by the single owning goroutine per
// investigation.
func (s *Store) Apply(update StateUpdate) *InvestigationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state

	if update.CurrentPhase != nil && *update.CurrentPhase != st.CurrentPhase {
		st.CurrentPhase = *update.CurrentPhase
		st.PhaseEnteredAtLoop = st.OrchestratorLoops
	}
	st.Messages = append(st.Messages, update.AppendMessages...)
	for _, name := range update.ToolsUsed {
		st.ToolsUsed[name] = struct{}{}
	}
	for name, val := range update.ToolResults {
		st.ToolResults[name] = val
	}
	if update.SnowflakeData != nil {
		st.SnowflakeData = update.SnowflakeData
	}
	if update.SnowflakeCompleted != nil {
		st.SnowflakeCompleted = *update.SnowflakeCompleted
	}
	if update.DomainComplete != nil {
		if !containsString(st.DomainsCompleted, *update.DomainComplete) {
			st.DomainsCompleted = append(st.DomainsCompleted, *update.DomainComplete)
		}
	}
	if update.DomainFinding != nil && update.DomainComplete != nil {
		st.DomainFindings[*update.DomainComplete] = *update.DomainFinding
	}
	if update.RiskScore != nil {
		st.RiskScore = *update.RiskScore
	}
	if update.ConfidenceScore != nil {
		st.ConfidenceScore = *update.ConfidenceScore
	}
	if update.IncrementOrchestratorLoops {
		st.OrchestratorLoops++
	}
	if update.IncrementToolExecutionAttempts {
		st.ToolExecutionAttempts++
	}
	if update.EndTime != nil {
		st.EndTime = *update.EndTime
		if !st.StartTime.IsZero() {
			st.TotalDurationMs = st.EndTime.Sub(st.StartTime).Milliseconds()
		}
	}
	st.Errors = append(st.Errors, update.AppendErrors...)
	st.RoutingDecisions = append(st.RoutingDecisions, update.AppendRoutingDecisions...)
	st.SkippedPhases = append(st.SkippedPhases, update.AppendSkippedPhases...)

	return st.clone()
}

// LoopsInPhase returns the number of orchestrator invocations recorded
// since CurrentPhase was last entered, derived from OrchestratorLoops and
// PhaseEnteredAtLoop so it stays a pure function of the state value.
func (s *InvestigationState) LoopsInPhase() int {
	return s.OrchestratorLoops - s.PhaseEnteredAtLoop
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// AppendMessage is a convenience wrapper around Apply for the common single-
// message case.
func (s *Store) AppendMessage(msg Message) *InvestigationState {
	return s.Apply(StateUpdate{AppendMessages: []Message{msg}})
}

// RecordToolResult records one tool's parsed result.
// It is a no-op on ToolsUsed/ToolResults if name is already recorded,
// satisfying the idempotence invariant.
func (s *Store) RecordToolResult(name string, value any) *InvestigationState {
	s.mu.Lock()
	_, already := s.state.ToolResults[name]
	s.mu.Unlock()
	if already {
		return s.Snapshot()
	}
	return s.Apply(StateUpdate{ToolsUsed: []string{name}, ToolResults: map[string]any{name: value}})
}

// MarkDomainComplete records a finished domain agent's finding.
func (s *Store) MarkDomainComplete(name string, finding DomainFinding) *InvestigationState {
	n := name
	f := finding
	return s.Apply(StateUpdate{DomainComplete: &n, DomainFinding: &f})
}

// IncrementCounter bumps one of the named monotonic counters.
func (s *Store) IncrementCounter(name string) *InvestigationState {
	switch name {
	case "orchestrator_loops":
		return s.Apply(StateUpdate{IncrementOrchestratorLoops: true})
	case "tool_execution_attempts":
		return s.Apply(StateUpdate{IncrementToolExecutionAttempts: true})
	default:
		return s.Snapshot()
	}
}

// AppendError appends one record to the error list.
func (s *Store) AppendError(e ErrorRecord) *InvestigationState {
	return s.Apply(StateUpdate{AppendErrors: []ErrorRecord{e}})
}

// AppendRouting appends one verdict to the routing audit trail.
func (s *Store) AppendRouting(d RoutingDecision) *InvestigationState {
	return s.Apply(StateUpdate{AppendRoutingDecisions: []RoutingDecision{d}})
}
