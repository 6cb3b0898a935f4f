package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/interfaces"
	"github.com/ternarybob/optout/internal/models"
)

const aiFailedReason = "AI classification failed"

const systemPrompt = "You are an email classification assistant. Analyze emails to identify marketing and promotional content."

const promptTemplate = `Analyze this email and determine if it's a marketing or promotional email that the user might want to unsubscribe from.

Email Details:
From: %s
Subject: %s
Snippet: %s

Respond with JSON only:
{
  "isMarketing": boolean,
  "confidence": number (0-1),
  "reason": "brief explanation",
  "shouldUnsubscribe": boolean
}`

// AIClassifier asks an LLM for the verdict. Any failure yields the zero
// verdict so a broken provider never causes an unsubscribe.
type AIClassifier struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// NewAIClassifier creates a classifier over the given chat backend
func NewAIClassifier(llm interfaces.LLMService, logger arbor.ILogger) *AIClassifier {
	return &AIClassifier{llm: llm, logger: logger}
}

// Name returns "ai:<provider>"
func (c *AIClassifier) Name() string {
	return "ai:" + c.llm.Provider()
}

type aiVerdict struct {
	IsMarketing       bool    `json:"isMarketing"`
	Confidence        float64 `json:"confidence"`
	Reason            string  `json:"reason"`
	ShouldUnsubscribe bool    `json:"shouldUnsubscribe"`
}

// Classify returns the model's verdict, or the fallback verdict on error.
// The returned error is always nil.
func (c *AIClassifier) Classify(ctx context.Context, email *models.Email) (*models.Classification, error) {
	messages := []interfaces.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(promptTemplate, email.From, email.Subject, email.Snippet)},
	}

	response, err := c.llm.Chat(ctx, messages)
	if err != nil {
		c.logger.Warn().Err(err).Str("email_id", email.ID).Msg("AI classification failed")
		return c.fallback(), nil
	}

	verdict, err := parseVerdict(response)
	if err != nil {
		c.logger.Warn().Err(err).Str("email_id", email.ID).Msg("AI classification returned unparseable JSON")
		return c.fallback(), nil
	}

	confidence := verdict.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &models.Classification{
		IsMarketing:       verdict.IsMarketing,
		Confidence:        confidence,
		Reason:            verdict.Reason,
		ShouldUnsubscribe: verdict.ShouldUnsubscribe,
		Classifier:        c.Name(),
	}, nil
}

func (c *AIClassifier) fallback() *models.Classification {
	return &models.Classification{Reason: aiFailedReason, Classifier: c.Name()}
}

// parseVerdict accepts bare JSON, fenced JSON, or JSON surrounded by prose
func parseVerdict(response string) (*aiVerdict, error) {
	text := strings.TrimSpace(response)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var verdict aiVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &verdict, nil
}
