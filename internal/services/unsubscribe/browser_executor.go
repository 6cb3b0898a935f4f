// -----------------------------------------------------------------------
// Browser Executor - simulated unsubscribe click in a headless session
// -----------------------------------------------------------------------

package unsubscribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/interfaces"
	"github.com/ternarybob/optout/internal/models"
)

const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultStrategyTimeout   = 5 * time.Second
	DefaultSettleDelay       = 2 * time.Second
)

const lowerXPath = `translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz')`

// DefaultStrategies returns the confirmation controls tried on an unsubscribe page, in order
func DefaultStrategies() []interfaces.SelectorStrategy {
	return []interfaces.SelectorStrategy{
		{
			Name:  "unsubscribe-text",
			Query: `//button[contains(` + lowerXPath + `, 'unsubscribe')] | //a[contains(` + lowerXPath + `, 'unsubscribe')]`,
			XPath: true,
		},
		{
			Name:  "data-action",
			Query: `[data-action="unsubscribe"]`,
		},
		{
			Name:  "form-submit",
			Query: `form[action*="unsubscribe"] button[type="submit"], form[action*="unsubscribe"] input[type="submit"]`,
		},
	}
}

// BrowserExecutorConfig holds launch options and timing for browser attempts
type BrowserExecutorConfig struct {
	Launch            interfaces.LaunchOptions
	NavigationTimeout time.Duration
	StrategyTimeout   time.Duration
	SettleDelay       time.Duration
	Strategies        []interfaces.SelectorStrategy
}

// BrowserExecutor performs browser-link attempts. Every attempt owns its own
// session, and that session is closed exactly once before Execute returns.
type BrowserExecutor struct {
	driver interfaces.BrowserDriver
	config BrowserExecutorConfig
	logger arbor.ILogger
	sleep  func(ctx context.Context, d time.Duration)
}

// NewBrowserExecutor creates a browser executor; zero config values take defaults
func NewBrowserExecutor(driver interfaces.BrowserDriver, config BrowserExecutorConfig, logger arbor.ILogger) *BrowserExecutor {
	if config.NavigationTimeout <= 0 {
		config.NavigationTimeout = DefaultNavigationTimeout
	}
	if config.StrategyTimeout <= 0 {
		config.StrategyTimeout = DefaultStrategyTimeout
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = DefaultSettleDelay
	}
	if len(config.Strategies) == 0 {
		config.Strategies = DefaultStrategies()
	}
	return &BrowserExecutor{
		driver: driver,
		config: config,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Execute navigates to the candidate and tries each confirmation strategy.
// Success iff a control was activated or the final URL mentions "unsubscribe".
func (e *BrowserExecutor) Execute(ctx context.Context, email *models.Email, candidate models.ValidatedCandidate) (attempt models.ExecutionAttempt) {
	attempt = models.ExecutionAttempt{Candidate: candidate, StartedAt: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			attempt.Success = false
			attempt.Error = fmt.Errorf("%w: panic: %v", ErrAutomation, r).Error()
		}
		attempt.Duration = time.Since(attempt.StartedAt)
	}()

	if e.driver == nil {
		attempt.Error = fmt.Errorf("%w: browser automation disabled", ErrAutomation).Error()
		return attempt
	}

	session, err := e.driver.Launch(ctx, e.config.Launch)
	if err != nil {
		attempt.Error = fmt.Errorf("%w: launch: %v", ErrAutomation, err).Error()
		e.logger.Warn().Err(err).Str("url", candidate.URL).Msg("Failed to launch browser session")
		return attempt
	}
	defer func() {
		if err := session.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to close browser session")
		}
	}()

	page, err := session.NewPage(ctx)
	if err != nil {
		attempt.Error = fmt.Errorf("%w: new page: %v", ErrAutomation, err).Error()
		return attempt
	}

	if err := page.Goto(ctx, candidate.URL, e.config.NavigationTimeout); err != nil {
		attempt.Error = fmt.Errorf("%w: navigate: %v", ErrAutomation, err).Error()
		e.logger.Debug().Err(err).Str("url", candidate.URL).Msg("Browser navigation failed")
		return attempt
	}

	strategy, activated, findErr := page.FindAndActivate(ctx, e.config.Strategies, e.config.StrategyTimeout)
	if activated {
		e.logger.Debug().Str("url", candidate.URL).Str("strategy", strategy).Msg("Activated unsubscribe control")
		e.sleep(ctx, e.config.SettleDelay)
	}

	finalURL, err := page.CurrentURL(ctx)
	if err != nil {
		e.logger.Debug().Err(err).Str("url", candidate.URL).Msg("Failed to read final page URL")
	}
	attempt.FinalURL = finalURL

	attempt.Success = activated || strings.Contains(strings.ToLower(finalURL), "unsubscribe")
	if !attempt.Success {
		if findErr != nil {
			attempt.Error = fmt.Errorf("%w: selectors: %v", ErrAutomation, findErr).Error()
		} else {
			attempt.Error = fmt.Errorf("%w: no confirmation control found", ErrAutomation).Error()
		}
	}
	return attempt
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
