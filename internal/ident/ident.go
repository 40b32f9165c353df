// Package ident provides strong type identifiers and ID generation for the
// investigation and deployment runtimes.
package ident

import "github.com/google/uuid"

// InvestigationID uniquely identifies one investigation.
type InvestigationID string

// DeploymentID uniquely identifies one deployment.
type DeploymentID string

// ToolCallID uniquely identifies one tool-call request within an investigation.
type ToolCallID string

// NewInvestigationID mints a fresh investigation identifier.
func NewInvestigationID() InvestigationID {
	return InvestigationID(uuid.New().String())
}

// NewDeploymentID mints a fresh deployment identifier.
func NewDeploymentID() DeploymentID {
	return DeploymentID(uuid.New().String())
}

// NewToolCallID mints a fresh tool-call identifier.
func NewToolCallID() ToolCallID {
	return ToolCallID(uuid.New().String())
}
