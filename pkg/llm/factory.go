package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/config"
)

// NewClient creates the Client implementation selected by the provider
// setting: "openai" for any OpenAI-compatible endpoint, "anthropic" for the
// Anthropic API.
func NewClient(cfg *config.AIConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg, logger)
	case "anthropic":
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
