package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryConfig controls backoff on provider rate limits. Classification is
// interactive, so the budget is far smaller than a batch pipeline would use.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the classifier retry budget
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    5 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2,
	}
}

// IsRateLimitError matches 429s, Gemini RESOURCE_EXHAUSTED and Anthropic overload errors
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "rate_limit_error") ||
		strings.Contains(msg, "overloaded_error")
}

var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+|retry-after[:\s]+)(\d+(?:\.\d+)?)\s*s?`)

// ExtractRetryDelay parses a provider-suggested delay, 0 if none
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}
	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// Backoff returns the wait before retry number attempt (0-based), capped at MaxBackoff
func (c RetryConfig) Backoff(attempt int, apiDelay time.Duration) time.Duration {
	base := c.InitialBackoff
	if apiDelay > 0 {
		base = apiDelay
	}
	backoff := float64(base)
	for i := 0; i < attempt; i++ {
		backoff *= c.BackoffMultiplier
	}
	if d := time.Duration(backoff); d < c.MaxBackoff {
		return d
	}
	return c.MaxBackoff
}

func withRetry(ctx context.Context, cfg RetryConfig, logger arbor.ILogger, provider string, call func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		text, err := call(ctx)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsRateLimitError(err) || attempt == cfg.MaxRetries {
			break
		}

		wait := cfg.Backoff(attempt, ExtractRetryDelay(err))
		logger.Warn().
			Str("provider", provider).
			Int("attempt", attempt+1).
			Str("backoff", wait.String()).
			Msg("LLM rate limited, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastErr
}
