package deployment

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/olorin-ai/investigation-engine/internal/ident"
	"github.com/olorin-ai/investigation-engine/internal/telemetry"
)

// ServiceCommands holds the shell commands that deploy and revert one
// service.
type ServiceCommands struct {
	DeployCmd   string `yaml:"deploy_cmd"`
	RollbackCmd string `yaml:"rollback_cmd"`
	// HealthURL is consumed by the HTTPProber, kept here so one config
	// stanza describes the whole service.
	HealthURL string `yaml:"health_url"`
	// DependsOn lists the services that must deploy first.
	DependsOn []string `yaml:"depends_on"`
}

// CommandDeployer deploys services by running their configured shell
// commands, respecting ctx for timeout and cancellation.
type CommandDeployer struct {
	Commands map[string]ServiceCommands
	Logger   telemetry.Logger
}

func (d *CommandDeployer) logger() telemetry.Logger {
	if d.Logger == nil {
		return telemetry.NewNoopLogger()
	}
	return d.Logger
}

// Deploy implements ServiceDeployer.
func (d *CommandDeployer) Deploy(ctx context.Context, id ident.DeploymentID, service, environment string) error {
	return d.run(ctx, id, service, environment, "deploy", d.Commands[service].DeployCmd)
}

// Rollback implements ServiceDeployer.
func (d *CommandDeployer) Rollback(ctx context.Context, id ident.DeploymentID, service, environment string) error {
	return d.run(ctx, id, service, environment, "rollback", d.Commands[service].RollbackCmd)
}

func (d *CommandDeployer) run(ctx context.Context, id ident.DeploymentID, service, environment, op, command string) error {
	if command == "" {
		return fmt.Errorf("deployment: no %s command configured for service %q", op, service)
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = append(cmd.Environ(),
		"DEPLOYMENT_ID="+string(id),
		"DEPLOY_SERVICE="+service,
		"DEPLOY_ENVIRONMENT="+environment,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		d.logger().Error(ctx, "service command failed",
			"service", service, "op", op, "output", string(out), "error", err.Error())
		return fmt.Errorf("deployment: %s %s: %w", op, service, err)
	}
	d.logger().Debug(ctx, "service command complete", "service", service, "op", op)
	return nil
}
