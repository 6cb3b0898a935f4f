// Package classifier decides whether an email is marketing. Two
// interchangeable oracles are provided: a weighted rule table and an
// LLM-backed classifier.
package classifier

import (
	"context"
	"math"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/models"
)

// Score thresholds for the rule classifier
const (
	MarketingThreshold   = 0.5 // isMarketing iff score >= 0.5
	UnsubscribeThreshold = 0.6 // shouldUnsubscribe iff isMarketing and score >= 0.6
)

const noIndicatorsReason = "No marketing indicators found"

// RuleKind tags what part of the email a rule inspects
type RuleKind string

const (
	RuleKeyword       RuleKind = "keyword-rule"
	RuleSenderPattern RuleKind = "sender-pattern"
	RuleHeader        RuleKind = "header-rule"
)

// Rule contributes Weight to the score when any of its matchers hit.
// Keywords are used by keyword rules, Patterns by sender-pattern rules;
// header rules look at the List-Unsubscribe headers.
type Rule struct {
	Name     string
	Kind     RuleKind
	Weight   float64
	Reason   string
	Keywords []string
	Patterns []*regexp.Regexp
}

// DefaultRules returns the standard marketing rule table
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:   "marketing-keywords",
			Kind:   RuleKeyword,
			Weight: 0.4,
			Reason: "Contains marketing keywords",
			Keywords: []string{
				"unsubscribe", "marketing", "promotion", "sale", "discount", "offer", "deal",
				"newsletter", "update your preferences", "email preferences", "manage subscription",
			},
		},
		{
			Name:   "marketing-sender",
			Kind:   RuleSenderPattern,
			Weight: 0.3,
			Reason: "Sender matches marketing pattern",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)noreply@`),
				regexp.MustCompile(`(?i)no-reply@`),
				regexp.MustCompile(`(?i)marketing@`),
				regexp.MustCompile(`(?i)newsletter@`),
				regexp.MustCompile(`(?i)promo@`),
				regexp.MustCompile(`(?i)deals@`),
			},
		},
		{
			Name:   "unsubscribe-header",
			Kind:   RuleHeader,
			Weight: 0.3,
			Reason: "Has unsubscribe header",
		},
	}
}

// RuleClassifier scores an email against a rule table. It needs no network.
type RuleClassifier struct {
	rules     []Rule
	converter *md.Converter
	logger    arbor.ILogger
}

// NewRuleClassifier creates a rule classifier; nil rules means DefaultRules
func NewRuleClassifier(rules []Rule, logger arbor.ILogger) *RuleClassifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &RuleClassifier{
		rules:     rules,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

// Name returns "rules"
func (c *RuleClassifier) Name() string {
	return "rules"
}

// Classify never fails; an email without indicators scores zero
func (c *RuleClassifier) Classify(_ context.Context, email *models.Email) (*models.Classification, error) {
	text := c.searchText(email)

	var (
		score   float64
		reasons []string
	)
	for _, rule := range c.rules {
		if c.matches(rule, email, text) {
			score += rule.Weight
			reasons = append(reasons, rule.Reason)
		}
	}

	// Weights are decimal; keep sums like 0.3+0.3 exactly on the threshold
	score = math.Min(math.Round(score*100)/100, 1)

	reason := strings.Join(reasons, "; ")
	if reason == "" {
		reason = noIndicatorsReason
	}

	isMarketing := score >= MarketingThreshold
	return &models.Classification{
		IsMarketing:       isMarketing,
		Confidence:        score,
		Reason:            reason,
		ShouldUnsubscribe: isMarketing && score >= UnsubscribeThreshold,
		Classifier:        c.Name(),
	}, nil
}

func (c *RuleClassifier) matches(rule Rule, email *models.Email, text string) bool {
	switch rule.Kind {
	case RuleKeyword:
		for _, keyword := range rule.Keywords {
			if strings.Contains(text, strings.ToLower(keyword)) {
				return true
			}
		}
	case RuleSenderPattern:
		from := strings.ToLower(email.From)
		for _, pattern := range rule.Patterns {
			if pattern.MatchString(from) {
				return true
			}
		}
	case RuleHeader:
		return strings.TrimSpace(email.ListUnsubscribe) != "" || email.HasListUnsubscribePost
	}
	return false
}

// searchText is the lower-cased subject, body and snippet. HTML-only mail
// is converted to text first.
func (c *RuleClassifier) searchText(email *models.Email) string {
	body := email.Body
	if strings.TrimSpace(body) == "" && email.HTMLBody != "" {
		converted, err := c.converter.ConvertString(email.HTMLBody)
		if err != nil {
			c.logger.Debug().Err(err).Str("email_id", email.ID).Msg("HTML to text conversion failed, using raw HTML")
			converted = email.HTMLBody
		}
		body = converted
	}
	return strings.ToLower(email.Subject + " " + body + " " + email.Snippet)
}
