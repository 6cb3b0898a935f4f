package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/interfaces"
)

const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// NewLLMService builds the provider selected by [classifier] provider
func NewLLMService(ctx context.Context, cfg *common.Config, kv interfaces.KeyValueStorage, logger arbor.ILogger) (interfaces.LLMService, error) {
	logger.Info().Str("provider", cfg.Classifier.Provider).Msg("Initializing LLM service")

	switch cfg.Classifier.Provider {
	case ProviderClaude, "":
		return NewClaudeService(ctx, cfg.Claude, kv, logger)
	case ProviderGemini:
		return NewGeminiService(ctx, cfg.Gemini, kv, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Classifier.Provider)
	}
}
