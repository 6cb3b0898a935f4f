package unsubscribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/models"
)

const (
	// DefaultUserAgent identifies direct unsubscribe requests
	DefaultUserAgent = "Mozilla/5.0 (compatible; UnsubscribeBot/1.0)"

	// DefaultRequestTimeout bounds each GET/POST attempt
	DefaultRequestTimeout = 30 * time.Second

	maxDrainBytes = 64 * 1024
)

// HTTPExecutor performs http-get and http-post (one-click) unsubscribes
type HTTPExecutor struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	limiter   *HostLimiter
	logger    arbor.ILogger
}

// HTTPExecutorOption configures the HTTPExecutor
type HTTPExecutorOption func(*HTTPExecutor)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) HTTPExecutorOption {
	return func(e *HTTPExecutor) {
		e.client = client
	}
}

// WithUserAgent overrides the static user agent
func WithUserAgent(userAgent string) HTTPExecutorOption {
	return func(e *HTTPExecutor) {
		if userAgent != "" {
			e.userAgent = userAgent
		}
	}
}

// WithRequestTimeout bounds each request
func WithRequestTimeout(timeout time.Duration) HTTPExecutorOption {
	return func(e *HTTPExecutor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithHostLimiter shares a per-host limiter across executors
func WithHostLimiter(limiter *HostLimiter) HTTPExecutorOption {
	return func(e *HTTPExecutor) {
		e.limiter = limiter
	}
}

// NewHTTPExecutor creates an executor for direct HTTP mechanisms
func NewHTTPExecutor(logger arbor.ILogger, opts ...HTTPExecutorOption) *HTTPExecutor {
	e := &HTTPExecutor{
		client:    &http.Client{},
		userAgent: DefaultUserAgent,
		timeout:   DefaultRequestTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute issues the request for candidate. Success iff the final status is 2xx.
func (e *HTTPExecutor) Execute(ctx context.Context, email *models.Email, candidate models.ValidatedCandidate) (attempt models.ExecutionAttempt) {
	attempt = models.ExecutionAttempt{Candidate: candidate, StartedAt: time.Now()}
	defer func() { attempt.Duration = time.Since(attempt.StartedAt) }()

	status, finalURL, err := e.do(ctx, email, candidate)
	attempt.StatusCode = status
	attempt.FinalURL = finalURL
	if err != nil {
		attempt.Error = err.Error()
		e.logger.Debug().
			Err(err).
			Str("url", candidate.URL).
			Str("method", string(candidate.Method)).
			Int("status", status).
			Msg("Unsubscribe request failed")
		return attempt
	}

	attempt.Success = true
	return attempt
}

func (e *HTTPExecutor) do(ctx context.Context, email *models.Email, candidate models.ValidatedCandidate) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx, candidate.URL); err != nil {
		return 0, "", fmt.Errorf("%w: rate limiter: %v", ErrNetwork, err)
	}

	req, err := e.newRequest(ctx, email, candidate)
	if err != nil {
		return 0, "", err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	finalURL := ""
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, finalURL, fmt.Errorf("%w: unexpected status %d", ErrNetwork, resp.StatusCode)
	}
	return resp.StatusCode, finalURL, nil
}

func (e *HTTPExecutor) newRequest(ctx context.Context, email *models.Email, candidate models.ValidatedCandidate) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)

	switch candidate.Method {
	case models.MethodHTTPGet:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, candidate.URL, nil)
	case models.MethodHTTPPost:
		form := url.Values{}
		form.Set("List-Unsubscribe", "One-Click")
		if email != nil {
			form.Set("email", email.RecipientAddress())
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, candidate.URL, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		return nil, fmt.Errorf("%w: method %s is not an http mechanism", ErrNetwork, candidate.Method)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}

	req.Header.Set("User-Agent", e.userAgent)
	return req, nil
}
