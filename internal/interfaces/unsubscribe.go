package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/optout/internal/models"
)

// Classifier is an opaque oracle deciding whether an email is marketing.
// Rule-based and LLM-backed implementations are interchangeable.
type Classifier interface {
	Classify(ctx context.Context, email *models.Email) (*models.Classification, error)
	Name() string
}

// WhitelistRegistry answers whether a sender is whitelisted
type WhitelistRegistry interface {
	IsWhitelisted(ctx context.Context, email *models.Email) (bool, error)
}

// EmailSource fetches fully parsed emails from a mailbox
type EmailSource interface {
	Fetch(ctx context.Context, query string, limit int) ([]*models.Email, error)
}

// MechanismExecutor performs one unsubscribe attempt for a candidate.
// Implementations never panic outward and never return an error: failures
// are recorded in the returned attempt.
type MechanismExecutor interface {
	Execute(ctx context.Context, email *models.Email, candidate models.ValidatedCandidate) models.ExecutionAttempt
}

// LaunchOptions configures a sandboxed headless browser session
type LaunchOptions struct {
	Headless   bool
	NoSandbox  bool
	DisableGPU bool
	UserAgent  string
}

// SelectorStrategy is one way of locating a confirmation control on a page.
// Query is CSS when XPath is false.
type SelectorStrategy struct {
	Name  string
	Query string
	XPath bool
}

// BrowserDriver launches isolated browser sessions
type BrowserDriver interface {
	Launch(ctx context.Context, opts LaunchOptions) (BrowserSession, error)
}

// BrowserSession owns a browser process. Close must be safe to call more than once.
type BrowserSession interface {
	NewPage(ctx context.Context) (BrowserPage, error)
	Close() error
}

// BrowserPage is a single tab within a session
type BrowserPage interface {
	// Goto navigates and waits for network idle, bounded by timeout
	Goto(ctx context.Context, url string, timeout time.Duration) error

	// FindAndActivate tries strategies in order, each bounded by perStrategyTimeout,
	// and clicks the first matching element. Returns the winning strategy name.
	FindAndActivate(ctx context.Context, strategies []SelectorStrategy, perStrategyTimeout time.Duration) (string, bool, error)

	CurrentURL(ctx context.Context) (string, error)
}
