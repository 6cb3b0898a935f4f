// Package safety decides whether an email may be acted on before any
// unsubscribe link is extracted or executed.
package safety

import (
	"fmt"
	"strings"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/models"
)

// IssueWhitelisted is the blocking issue raised for whitelisted senders
const IssueWhitelisted = "sender is whitelisted"

// Gate combines a classification verdict and whitelist membership into a
// proceed/block decision. Only issues block; warnings are informational.
type Gate struct {
	minConfidence float64
	keywords      []string
	markers       []string
}

// NewGate creates a gate from the safety configuration
func NewGate(config common.SafetyConfig) *Gate {
	return &Gate{
		minConfidence: config.MinConfidence,
		keywords:      lowerAll(config.TransactionalKeywords),
		markers:       lowerAll(config.ImportantSenderMarkers),
	}
}

// Evaluate returns the verdict for one email
func (g *Gate) Evaluate(email *models.Email, classification models.Classification, whitelisted bool) models.SafetyVerdict {
	verdict := models.SafetyVerdict{
		Issues:   []string{},
		Warnings: []string{},
	}

	if whitelisted {
		verdict.Issues = append(verdict.Issues, IssueWhitelisted)
	}

	if classification.Confidence < g.minConfidence {
		verdict.Warnings = append(verdict.Warnings,
			fmt.Sprintf("low classification confidence (%.2f < %.2f)", classification.Confidence, g.minConfidence))
	}

	if email != nil {
		text := strings.ToLower(email.Subject + " " + email.Snippet)
		for _, keyword := range g.keywords {
			if strings.Contains(text, keyword) {
				verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("contains transactional keyword: %s", keyword))
			}
		}

		sender := email.SenderAddress()
		for _, marker := range g.markers {
			if strings.Contains(sender, marker) {
				verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("sender matches important domain: %s", marker))
			}
		}
	}

	verdict.Proceed = len(verdict.Issues) == 0 && classification.ShouldUnsubscribe
	return verdict
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
