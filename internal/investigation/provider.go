package investigation

import (
	"fmt"
	"os"

	"github.com/olorin-ai/investigation-engine/internal/llm"
	"github.com/olorin-ai/investigation-engine/internal/llm/provider/anthropic"
	"github.com/olorin-ai/investigation-engine/internal/llm/provider/mock"
	"github.com/olorin-ai/investigation-engine/internal/llm/provider/openai"
	"github.com/olorin-ai/investigation-engine/internal/warehouse"
)

// NewClientFromConfig constructs the llm.Client named by cfg.LLM.Provider.
// API keys come from the conventional environment variables. Bedrock is not
// constructed here because its runtime client carries AWS credential
// loading the caller owns; inject it via Deps.Client instead.
func NewClientFromConfig(cfg *Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		return anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"), cfg.LLM.Model)
	case "openai":
		return openai.NewFromAPIKey(os.Getenv("OPENAI_API_KEY"), cfg.LLM.Model)
	case "mock":
		return mock.WarehouseQueryInvestigation("ip", "203.0.113.5", 7, warehouse.ToolName), nil
	default:
		return nil, fmt.Errorf("investigation: unknown llm provider %q", cfg.LLM.Provider)
	}
}
