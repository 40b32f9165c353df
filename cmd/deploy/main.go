// Command deploy runs dependency-ordered, health-gated service deployments
// and manages their persisted state journal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/olorin-ai/investigation-engine/internal/deployment"
	"github.com/olorin-ai/investigation-engine/internal/ident"
	"github.com/olorin-ai/investigation-engine/internal/notify"
)

const (
	exitOK       = 0
	exitUsage    = 1
	exitInternal = 2
)

// fileConfig is the YAML shape the deploy CLI consumes: one stanza per
// service plus journal and health-gate policy.
type fileConfig struct {
	StateDir     string        `yaml:"state_dir"`
	PhaseTimeout time.Duration `yaml:"phase_timeout"`
	Health       struct {
		Retries  int           `yaml:"retries"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"health"`
	Recovery deployment.RecoveryConfig `yaml:"recovery"`
	Slack    struct {
		Token   string `yaml:"token"`
		Channel string `yaml:"channel"`
	} `yaml:"slack"`
	Services map[string]deployment.ServiceCommands `yaml:"services"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.StateDir == "" {
		cfg.StateDir = "deployments"
	}
	return &cfg, nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		environment string
		services    []string
		olderThan   time.Duration
	)

	root := &cobra.Command{
		Use:           "deploy",
		Short:         "Dependency-ordered, health-gated service deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "deploy.yaml", "path to YAML config")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and execute a deployment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadFileConfig(configPath)
			if err != nil {
				return err
			}
			targets := services
			if len(targets) == 0 {
				for name := range cfg.Services {
					targets = append(targets, name)
				}
			}
			if len(targets) == 0 {
				return usageError("no services configured or selected")
			}

			deps := make(map[string][]string, len(targets))
			urls := make(map[string]string, len(targets))
			for _, name := range targets {
				svc, ok := cfg.Services[name]
				if !ok {
					return usageError(fmt.Sprintf("unknown service %q", name))
				}
				deps[name] = svc.DependsOn
				urls[name] = svc.HealthURL
			}

			journal, err := deployment.NewJournal(cfg.StateDir, 10)
			if err != nil {
				return err
			}
			var notifier notify.Notifier = notify.Noop{}
			if cfg.Slack.Token != "" {
				notifier = notify.NewSlack(cfg.Slack.Token, cfg.Slack.Channel)
			}
			coord, err := deployment.NewCoordinator(deployment.Options{
				Deployer:     &deployment.CommandDeployer{Commands: cfg.Services},
				Journal:      journal,
				Gate:         &deployment.HealthGate{Prober: &deployment.HTTPProber{URLs: urls}, Retries: cfg.Health.Retries, Interval: cfg.Health.Interval},
				Notifier:     notifier,
				Recovery:     cfg.Recovery,
				PhaseTimeout: cfg.PhaseTimeout,
			})
			if err != nil {
				return err
			}

			state, err := coord.Deploy(cmd.Context(), deployment.Request{
				Services:     targets,
				Dependencies: deps,
				Environment:  environment,
			})
			if err != nil {
				return err
			}
			printState(cmd, state)
			if state.Status != deployment.StatusSuccess {
				return fmt.Errorf("deployment %s finished %s", state.DeploymentID, state.Status)
			}
			return nil
		},
	}
	runCmd.Flags().StringVar(&environment, "env", "staging", "target environment")
	runCmd.Flags().StringSliceVar(&services, "services", nil, "services to deploy (default: all configured)")
	root.AddCommand(runCmd)

	showCmd := &cobra.Command{
		Use:   "show <deployment-id>",
		Short: "Print one deployment's journaled state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := journalFromConfig(configPath)
			if err != nil {
				return err
			}
			state, err := journal.Load(ident.DeploymentID(args[0]))
			if err != nil {
				return usageError(fmt.Sprintf("unknown deployment %q", args[0]))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		},
	}
	root.AddCommand(showCmd)

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List journaled deployments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			journal, err := journalFromConfig(configPath)
			if err != nil {
				return err
			}
			ids, err := journal.List()
			if err != nil {
				return err
			}
			for _, id := range ids {
				state, err := journal.Load(id)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  <unreadable>\n", id)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s %s\n", id, state.Status, state.Environment)
			}
			return nil
		},
	}
	root.AddCommand(lsCmd)

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove journal files older than a cutoff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			journal, err := journalFromConfig(configPath)
			if err != nil {
				return err
			}
			ids, err := journal.List()
			if err != nil {
				return err
			}
			cutoff := time.Now().Add(-olderThan)
			removed := 0
			for _, id := range ids {
				state, err := journal.Load(id)
				if err != nil {
					continue
				}
				if state.EndTime != nil && state.EndTime.Before(cutoff) {
					if err := journal.Remove(id); err == nil {
						removed++
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d deployments\n", removed)
			return nil
		},
	}
	cleanupCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "remove deployments that ended before now minus this duration")
	root.AddCommand(cleanupCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var cycle *deployment.ErrDependencyCycle
		switch {
		case errors.As(err, &cycle):
			return exitInternal
		case isUsageError(err):
			return exitUsage
		default:
			return exitInternal
		}
	}
	return exitOK
}

func journalFromConfig(configPath string) (*deployment.Journal, error) {
	cfg, err := loadFileConfig(configPath)
	if err != nil {
		return nil, err
	}
	return deployment.NewJournal(cfg.StateDir, 0)
}

func printState(cmd *cobra.Command, state *deployment.DeploymentState) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "deployment %s (%s): %s\n", state.DeploymentID, state.Environment, state.Status)
	for i, phase := range state.Phases {
		fmt.Fprintf(out, "  phase %d: %s\n", i, strings.Join(phase, ", "))
	}
	for name, svc := range state.Services {
		fmt.Fprintf(out, "  %-15s %s\n", name, svc.Status)
	}
}

type usageErr string

func (e usageErr) Error() string { return string(e) }

func usageError(msg string) error { return usageErr(msg) }

func isUsageError(err error) bool {
	var ue usageErr
	if errors.As(err, &ue) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{"unknown flag", "unknown command", "required flag", "accepts 1 arg"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
