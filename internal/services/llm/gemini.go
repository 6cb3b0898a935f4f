package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/interfaces"
)

// GeminiService implements interfaces.LLMService with the Gemini API
type GeminiService struct {
	config  common.GeminiConfig
	client  *genai.Client
	timeout time.Duration
	retry   RetryConfig
	logger  arbor.ILogger
}

// NewGeminiService resolves the API key (env, KV store, config) and builds the client
func NewGeminiService(ctx context.Context, config common.GeminiConfig, kv interfaces.KeyValueStorage, logger arbor.ILogger) (*GeminiService, error) {
	apiKey, err := common.ResolveAPIKey(ctx, kv, "gemini_api_key", config.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Google API key is required for the gemini classifier (set GEMINI_API_KEY, OPTOUT_GEMINI_API_KEY or gemini.api_key): %w", err)
	}

	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	s := &GeminiService{
		config:  config,
		client:  client,
		timeout: common.ParseDurationOr(config.Timeout, 60*time.Second),
		retry:   DefaultRetryConfig(),
		logger:  logger,
	}

	logger.Debug().Str("model", config.Model).Str("timeout", s.timeout.String()).Msg("Gemini LLM service initialized")
	return s, nil
}

// Provider returns "gemini"
func (s *GeminiService) Provider() string {
	return ProviderGemini
}

// Chat sends the conversation and returns the first candidate with text
func (s *GeminiService) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	turns, system, err := splitSystem(messages)
	if err != nil {
		return "", fmt.Errorf("invalid gemini conversation: %w", err)
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := genai.RoleUser
		if turn.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(turn.Content)},
		})
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.config.Temperature),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	start := time.Now()
	text, err := withRetry(ctx, s.retry, s.logger, ProviderGemini, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		resp, err := s.client.Models.GenerateContent(callCtx, s.config.Model, contents, config)
		if err != nil {
			return "", err
		}

		var out strings.Builder
		if resp != nil {
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part != nil && part.Text != "" {
						out.WriteString(part.Text)
					}
				}
				if out.Len() > 0 {
					break
				}
			}
		}
		if out.Len() == 0 {
			return "", fmt.Errorf("no text in Gemini response")
		}
		return out.String(), nil
	})
	if err != nil {
		return "", fmt.Errorf("gemini chat failed: %w", err)
	}

	s.logger.Debug().
		Int("messages", len(messages)).
		Int("response_length", len(text)).
		Str("duration", time.Since(start).String()).
		Msg("Gemini chat completed")

	return text, nil
}

// Close releases the client
func (s *GeminiService) Close() error {
	s.client = nil
	return nil
}
