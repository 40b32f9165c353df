// Package deployment implements the Deployment Phase Coordinator: a
// dependency-ordered, health-gated executor that deploys services in
// parallel phases with timeout, rollback, and a persistent JSON journal.
package deployment

import (
	"fmt"
	"time"

	"github.com/olorin-ai/investigation-engine/internal/ident"
)

// ServiceStatus is the per-service deployment lifecycle. A status only ever
// advances pending -> in_progress -> {success, failed}; rolled_back is the
// terminal state a failed or superseded deployment reaches after cleanup.
type ServiceStatus string

const (
	ServicePending    ServiceStatus = "pending"
	ServiceInProgress ServiceStatus = "in_progress"
	ServiceSuccess    ServiceStatus = "success"
	ServiceFailed     ServiceStatus = "failed"
	ServiceRolledBack ServiceStatus = "rolled_back"
)

// serviceStatusRank orders the lifecycle for the advance-only check.
var serviceStatusRank = map[ServiceStatus]int{
	ServicePending:    0,
	ServiceInProgress: 1,
	ServiceSuccess:    2,
	ServiceFailed:     2,
	ServiceRolledBack: 3,
}

// CanAdvance reports whether moving from to next is a legal forward status
// transition.
func (s ServiceStatus) CanAdvance(next ServiceStatus) bool {
	cur, ok := serviceStatusRank[s]
	if !ok {
		return false
	}
	nxt, ok := serviceStatusRank[next]
	if !ok {
		return false
	}
	return nxt > cur
}

// Status is the overall deployment outcome.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// ServiceState is one service's sub-record inside a DeploymentState.
type ServiceState struct {
	Name        string            `json:"name"`
	Status      ServiceStatus     `json:"status"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Logs        []string          `json:"logs,omitempty"`
	Artifacts   map[string]string `json:"artifacts,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// DeploymentState is the single JSON document persisted per deployment.
// It must round-trip through the journal unchanged.
type DeploymentState struct {
	DeploymentID ident.DeploymentID       `json:"deployment_id"`
	Environment  string                   `json:"environment"`
	Status       Status                   `json:"status"`
	Services     map[string]*ServiceState `json:"services"`
	Phases       [][]string               `json:"phases,omitempty"`
	StartedAt    time.Time                `json:"started_at"`
	EndTime      *time.Time               `json:"end_time,omitempty"`
	Logs         []string                 `json:"logs,omitempty"`
	Metadata     map[string]string        `json:"metadata,omitempty"`
}

// NewState constructs the initial DeploymentState for services in
// environment, every service pending.
func NewState(id ident.DeploymentID, environment string, services []string) *DeploymentState {
	svcMap := make(map[string]*ServiceState, len(services))
	for _, s := range services {
		svcMap[s] = &ServiceState{Name: s, Status: ServicePending}
	}
	return &DeploymentState{
		DeploymentID: id,
		Environment:  environment,
		Status:       StatusPending,
		Services:     svcMap,
		StartedAt:    time.Now().UTC(),
	}
}

// AdvanceService moves a service to next, enforcing forward-only status
// transitions.
func (d *DeploymentState) AdvanceService(name string, next ServiceStatus) error {
	svc, ok := d.Services[name]
	if !ok {
		return fmt.Errorf("deployment: unknown service %q", name)
	}
	if !svc.Status.CanAdvance(next) {
		return fmt.Errorf("deployment: service %q cannot move %s -> %s", name, svc.Status, next)
	}
	now := time.Now().UTC()
	switch next {
	case ServiceInProgress:
		svc.StartedAt = &now
	case ServiceSuccess, ServiceFailed, ServiceRolledBack:
		svc.CompletedAt = &now
	}
	svc.Status = next
	return nil
}

// AllServicesSucceeded reports whether every service reached success.
func (d *DeploymentState) AllServicesSucceeded() bool {
	for _, svc := range d.Services {
		if svc.Status != ServiceSuccess {
			return false
		}
	}
	return len(d.Services) > 0
}

// Log appends a timestamped entry to the deployment-level log.
func (d *DeploymentState) Log(message string) {
	d.Logs = append(d.Logs, time.Now().UTC().Format(time.RFC3339)+" "+message)
}

// ServiceLog appends a timestamped entry to one service's log.
func (d *DeploymentState) ServiceLog(name, message string) {
	if svc, ok := d.Services[name]; ok {
		svc.Logs = append(svc.Logs, time.Now().UTC().Format(time.RFC3339)+" "+message)
	}
}
