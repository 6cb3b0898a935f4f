// -----------------------------------------------------------------------
// Chrome Driver - chromedp-backed browser sessions for unsubscribe pages
// -----------------------------------------------------------------------

// Package browser implements interfaces.BrowserDriver on top of chromedp.
// Each Launch starts a dedicated headless Chrome process; nothing is pooled so
// one misbehaving page can never leak into the next attempt.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/interfaces"
)

const networkIdleEvent = "networkIdle"

// ErrNoPage is returned when a session is asked for a second page
var ErrNoPage = errors.New("session already has a page")

// ChromeDriver launches isolated chromedp sessions
type ChromeDriver struct {
	logger arbor.ILogger
}

// NewChromeDriver creates a driver
func NewChromeDriver(logger arbor.ILogger) *ChromeDriver {
	return &ChromeDriver{logger: logger}
}

// Launch starts a browser process and its first tab
func (d *ChromeDriver) Launch(ctx context.Context, opts interfaces.LaunchOptions) (interfaces.BrowserSession, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.DisableGPU),
		chromedp.Flag("no-sandbox", opts.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("incognito", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the process; it must not carry a timeout or the
	// browser dies with it.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	d.logger.Debug().Bool("headless", opts.Headless).Msg("Browser session started")

	return &session{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		logger:      d.logger,
	}, nil
}

type session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      arbor.ILogger

	mu       sync.Mutex
	pageUsed bool
	once     sync.Once
	closeErr error
}

// NewPage returns the session's single tab
func (s *session) NewPage(_ context.Context) (interfaces.BrowserPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pageUsed {
		return nil, ErrNoPage
	}
	s.pageUsed = true
	return &chromePage{ctx: s.ctx}, nil
}

// Close shuts the browser down. Later calls return the first result.
func (s *session) Close() error {
	s.once.Do(func() {
		if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
		s.cancel()
		s.allocCancel()
		s.logger.Debug().Msg("Browser session closed")
	})
	return s.closeErr
}

type chromePage struct {
	ctx context.Context
}

// bounded derives a tab context limited by timeout and cancelled with the caller's ctx
func (p *chromePage) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Goto navigates and waits for the networkIdle lifecycle event of the new document
func (p *chromePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	runCtx, cancel := p.bounded(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	idle := make(map[cdp.LoaderID]bool)
	notify := make(chan struct{}, 1)

	chromedp.ListenTarget(runCtx, func(ev any) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok || e.Name != networkIdleEvent {
			return
		}
		mu.Lock()
		idle[e.LoaderID] = true
		mu.Unlock()
		select {
		case notify <- struct{}{}:
		default:
		}
	})

	var loaderID cdp.LoaderID
	err := chromedp.Run(runCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, lid, errorText, _, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return fmt.Errorf("page load error %s", errorText)
			}
			loaderID = lid
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	// Same-document navigations have no loader and no lifecycle
	if loaderID == "" {
		return nil
	}

	for {
		mu.Lock()
		done := idle[loaderID]
		mu.Unlock()
		if done {
			return nil
		}

		select {
		case <-notify:
		case <-runCtx.Done():
			return fmt.Errorf("waiting for network idle on %s: %w", url, runCtx.Err())
		}
	}
}

// FindAndActivate clicks the first visible element matched by a strategy
func (p *chromePage) FindAndActivate(ctx context.Context, strategies []interfaces.SelectorStrategy, perStrategyTimeout time.Duration) (string, bool, error) {
	for _, strategy := range strategies {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		by := chromedp.ByQuery
		if strategy.XPath {
			by = chromedp.BySearch
		}

		runCtx, cancel := p.bounded(ctx, perStrategyTimeout)
		err := chromedp.Run(runCtx, chromedp.Click(strategy.Query, by, chromedp.NodeVisible))
		cancel()

		if err == nil {
			return strategy.Name, true, nil
		}
	}
	return "", false, nil
}

// CurrentURL returns document.location of the tab
func (p *chromePage) CurrentURL(ctx context.Context) (string, error) {
	runCtx, cancel := p.bounded(ctx, 5*time.Second)
	defer cancel()

	var location string
	if err := chromedp.Run(runCtx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return location, nil
}
