// Package investigation assembles the engine: it wires the state store,
// tool registry, orchestrator, domain agents, and graph runtime behind one
// Service with a single Investigate operation, configured from YAML.
package investigation

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/olorin-ai/investigation-engine/internal/phase"
)

// Config is the runtime configuration for the investigation engine. The
// zero value plus ApplyDefaults is a working test-mode-off configuration.
type Config struct {
	// TestMode tightens every ceiling and timeout.
	TestMode bool `yaml:"test_mode"`

	LLM struct {
		// Provider selects the model backend: anthropic, openai, bedrock,
		// or mock.
		Provider    string        `yaml:"provider"`
		Model       string        `yaml:"model"`
		Temperature float32       `yaml:"temperature"`
		MaxTokens   int           `yaml:"max_tokens"`
		Timeout     time.Duration `yaml:"timeout"`
		// RatePerSecond and Burst bound concurrent calls through the shared
		// client; zero disables rate limiting.
		RatePerSecond float64 `yaml:"rate_per_second"`
		Burst         int     `yaml:"burst"`
	} `yaml:"llm"`

	Warehouse struct {
		TransactionsTable string        `yaml:"transactions_table"`
		ResultLimit       int           `yaml:"result_limit"`
		QueryTimeout      time.Duration `yaml:"query_timeout"`
	} `yaml:"warehouse"`

	Tools struct {
		DefaultTimeout time.Duration `yaml:"default_timeout"`
	} `yaml:"tools"`

	Runtime struct {
		WallClockBudget time.Duration `yaml:"wall_clock_budget"`
	} `yaml:"runtime"`

	Slack struct {
		Token   string `yaml:"token"`
		Channel string `yaml:"channel"`
	} `yaml:"slack"`
}

// LoadConfig reads a YAML config file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("investigation: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("investigation: parse config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every zero field with its live-mode default, scaled
// down when TestMode is set.
func (c *Config) ApplyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 90 * time.Second
		if c.TestMode {
			c.LLM.Timeout = 15 * time.Second
		}
	}
	if c.Warehouse.TransactionsTable == "" {
		c.Warehouse.TransactionsTable = "DBT.DBT_PROD.TRANSACTIONS"
	}
	if c.Warehouse.ResultLimit == 0 {
		c.Warehouse.ResultLimit = 1000
	}
	if c.Warehouse.QueryTimeout == 0 {
		c.Warehouse.QueryTimeout = 30 * time.Second
	}
	if c.Tools.DefaultTimeout == 0 {
		c.Tools.DefaultTimeout = 30 * time.Second
	}
	if c.Runtime.WallClockBudget == 0 {
		c.Runtime.WallClockBudget = 180 * time.Second
		if c.TestMode {
			c.Runtime.WallClockBudget = 60 * time.Second
		}
	}
}

// Ceilings returns the phase ceilings for the configured mode.
func (c *Config) Ceilings() phase.Ceilings {
	if c.TestMode {
		return phase.TestCeilings()
	}
	return phase.DefaultCeilings()
}
