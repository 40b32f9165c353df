// Command investigate runs one fraud investigation end to end and prints
// the outcome. With --provider=mock it runs fully offline against the
// deterministic client and a stubbed warehouse, which is the demo and
// smoke-test path.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/olorin-ai/investigation-engine/internal/investigation"
	"github.com/olorin-ai/investigation-engine/internal/warehouse"
)

const (
	exitOK       = 0
	exitUsage    = 1
	exitInternal = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		entityType string
		entityID   string
		days       int
		prompt     string
		provider   string
		asJSON     bool
	)

	root := &cobra.Command{
		Use:           "investigate",
		Short:         "Fraud investigation orchestration engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one investigation to completion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := &investigation.Config{}
			if configPath != "" {
				loaded, err := investigation.LoadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			cfg.ApplyDefaults()
			if provider != "" {
				cfg.LLM.Provider = provider
			}

			client, err := investigation.NewClientFromConfig(cfg)
			if err != nil {
				return err
			}

			var executor warehouse.QueryExecutor
			if cfg.LLM.Provider == "mock" {
				executor = warehouse.NewMockExecutor(demoRows())
			} else {
				return fmt.Errorf("no warehouse executor configured for provider %q; wire one via the service API", cfg.LLM.Provider)
			}

			svc, err := investigation.NewService(cfg, investigation.Deps{
				Client:    client,
				Warehouse: executor,
			})
			if err != nil {
				return err
			}

			result, err := svc.Investigate(cmd.Context(), investigation.Request{
				EntityType:       entityType,
				EntityID:         entityID,
				DateRangeDays:    days,
				CustomUserPrompt: prompt,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result.State)
			}
			printSummary(cmd, result)
			return nil
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config")
	runCmd.Flags().StringVar(&entityType, "entity-type", "ip", "entity type (ip, email, device)")
	runCmd.Flags().StringVar(&entityID, "entity-id", "", "entity identifier")
	runCmd.Flags().IntVar(&days, "days", 7, "date range in days")
	runCmd.Flags().StringVar(&prompt, "prompt", "", "optional custom user prompt")
	runCmd.Flags().StringVar(&provider, "provider", "", "override llm provider (anthropic, openai, mock)")
	runCmd.Flags().BoolVar(&asJSON, "json", false, "print the full terminal state as JSON")
	_ = runCmd.MarkFlagRequired("entity-id")
	root.AddCommand(runCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if isUsageError(err) {
			return exitUsage
		}
		return exitInternal
	}
	return exitOK
}

func printSummary(cmd *cobra.Command, result *investigation.Result) {
	st := result.State
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "investigation %s: %s\n", st.InvestigationID, st.CurrentPhase)
	fmt.Fprintf(out, "risk: %.2f (%s), confidence: %.2f\n", st.RiskScore, result.RiskLevel, st.ConfidenceScore)
	fmt.Fprintf(out, "tools used: %d, domains completed: %d, duration: %dms\n",
		len(st.ToolsUsed), len(st.DomainsCompleted), st.TotalDurationMs)
	for domain, finding := range st.DomainFindings {
		fmt.Fprintf(out, "  %-15s risk=%.2f confidence=%.2f\n", domain, finding.RiskScore, finding.Confidence)
	}
	fmt.Fprintf(out, "recommendations: %v\n", result.Recommendations)
	for _, e := range st.Errors {
		fmt.Fprintf(out, "  error [%s] %s (phase %s, fatal=%v)\n", e.Kind, e.Message, e.Phase, e.Fatal)
	}
}

func isUsageError(err error) bool {
	// Cobra reports unknown flags/commands and missing required flags as
	// plain errors; anything raised before the service runs is user error.
	msg := err.Error()
	for _, marker := range []string{"unknown flag", "unknown command", "required flag", "invalid argument", "entity type and id", "date_range_days"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func demoRows() []map[string]any {
	return []map[string]any{
		{"TX_ID_KEY": "tx-1", "EMAIL": "user@example.com", "MODEL_SCORE": 0.42, "IS_FRAUD_TX": false,
			"IP": "203.0.113.5", "IP_COUNTRY_CODE": "US", "DEVICE_ID": "dev-1", "TX_DATETIME": "2026-07-30T12:00:00Z"},
		{"TX_ID_KEY": "tx-2", "EMAIL": "user@example.com", "MODEL_SCORE": 0.38, "IS_FRAUD_TX": false,
			"IP": "203.0.113.5", "IP_COUNTRY_CODE": "US", "DEVICE_ID": "dev-1", "TX_DATETIME": "2026-07-29T12:00:00Z"},
	}
}
