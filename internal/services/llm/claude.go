package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/interfaces"
)

// ClaudeService implements interfaces.LLMService with the Anthropic Messages API
type ClaudeService struct {
	config  common.ClaudeConfig
	client  *anthropic.Client
	timeout time.Duration
	retry   RetryConfig
	logger  arbor.ILogger
}

// NewClaudeService resolves the API key (env, KV store, config) and builds the client
func NewClaudeService(ctx context.Context, config common.ClaudeConfig, kv interfaces.KeyValueStorage, logger arbor.ILogger) (*ClaudeService, error) {
	apiKey, err := common.ResolveAPIKey(ctx, kv, "anthropic_api_key", config.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API key is required for the claude classifier (set ANTHROPIC_API_KEY, OPTOUT_CLAUDE_API_KEY or claude.api_key): %w", err)
	}

	if config.Model == "" {
		config.Model = "claude-haiku-4-5"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	s := &ClaudeService{
		config:  config,
		client:  &client,
		timeout: common.ParseDurationOr(config.Timeout, 60*time.Second),
		retry:   DefaultRetryConfig(),
		logger:  logger,
	}

	logger.Debug().
		Str("model", config.Model).
		Str("timeout", s.timeout.String()).
		Int("max_tokens", config.MaxTokens).
		Msg("Claude LLM service initialized")

	return s, nil
}

// Provider returns "claude"
func (s *ClaudeService) Provider() string {
	return ProviderClaude
}

// Chat sends the conversation and returns the concatenated text blocks
func (s *ClaudeService) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	turns, system, err := splitSystem(messages)
	if err != nil {
		return "", fmt.Errorf("invalid claude conversation: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.config.MaxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(turns)),
	}
	for _, turn := range turns {
		if turn.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	start := time.Now()
	text, err := withRetry(ctx, s.retry, s.logger, ProviderClaude, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		resp, err := s.client.Messages.New(callCtx, params)
		if err != nil {
			return "", err
		}

		var out strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				out.WriteString(block.Text)
			}
		}
		if out.Len() == 0 {
			return "", fmt.Errorf("no text in Claude response")
		}
		return out.String(), nil
	})
	if err != nil {
		return "", fmt.Errorf("claude chat failed: %w", err)
	}

	s.logger.Debug().
		Int("messages", len(messages)).
		Int("response_length", len(text)).
		Str("duration", time.Since(start).String()).
		Msg("Claude chat completed")

	return text, nil
}

// Close releases the client
func (s *ClaudeService) Close() error {
	s.client = nil
	return nil
}
