package unsubscribe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/interfaces"
	"github.com/ternarybob/optout/internal/models"
)

type fakeDriver struct {
	launchErr error
	session   *fakeSession
	launches  int
}

func (d *fakeDriver) Launch(_ context.Context, _ interfaces.LaunchOptions) (interfaces.BrowserSession, error) {
	d.launches++
	if d.launchErr != nil {
		return nil, d.launchErr
	}
	return d.session, nil
}

type fakeSession struct {
	page       *fakePage
	newPageErr error
	closes     int
}

func (s *fakeSession) NewPage(_ context.Context) (interfaces.BrowserPage, error) {
	if s.newPageErr != nil {
		return nil, s.newPageErr
	}
	return s.page, nil
}

func (s *fakeSession) Close() error {
	s.closes++
	return nil
}

type fakePage struct {
	gotoErr    error
	gotoPanic  bool
	winner     string // strategy name that matches, "" for none
	finalURL   string
	visitedURL string
	tried      []string
	timeouts   []time.Duration
}

func (p *fakePage) Goto(_ context.Context, url string, timeout time.Duration) error {
	if p.gotoPanic {
		panic("renderer crashed")
	}
	p.visitedURL = url
	p.timeouts = append(p.timeouts, timeout)
	return p.gotoErr
}

func (p *fakePage) FindAndActivate(_ context.Context, strategies []interfaces.SelectorStrategy, perStrategy time.Duration) (string, bool, error) {
	p.timeouts = append(p.timeouts, perStrategy)
	for _, s := range strategies {
		p.tried = append(p.tried, s.Name)
		if s.Name == p.winner {
			return s.Name, true, nil
		}
	}
	return "", false, nil
}

func (p *fakePage) CurrentURL(_ context.Context) (string, error) {
	return p.finalURL, nil
}

func newBrowserExecutor(driver interfaces.BrowserDriver) (*BrowserExecutor, *[]time.Duration) {
	exec := NewBrowserExecutor(driver, BrowserExecutorConfig{}, arbor.NewLogger())
	var slept []time.Duration
	exec.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }
	return exec, &slept
}

func TestBrowserExecutor_ActivatesFirstMatchingStrategy(t *testing.T) {
	page := &fakePage{winner: "data-action", finalURL: "https://shop.example/done"}
	session := &fakeSession{page: page}
	exec, slept := newBrowserExecutor(&fakeDriver{session: session})

	attempt := exec.Execute(context.Background(), &models.Email{}, validated(models.MethodBrowserLink, "https://shop.example/prefs"))

	assert.True(t, attempt.Success)
	assert.Equal(t, "https://shop.example/done", attempt.FinalURL)
	assert.Equal(t, []string{"unsubscribe-text", "data-action"}, page.tried)
	assert.Equal(t, []time.Duration{DefaultNavigationTimeout, DefaultStrategyTimeout}, page.timeouts)
	assert.Equal(t, []time.Duration{DefaultSettleDelay}, *slept)
	assert.Equal(t, 1, session.closes)
}

func TestNewBrowserExecutor_SettleDelay(t *testing.T) {
	tests := []struct {
		name     string
		settle   time.Duration
		expected time.Duration
	}{
		{"zero takes default", 0, DefaultSettleDelay},
		{"negative takes default", -time.Second, DefaultSettleDelay},
		{"explicit kept", 500 * time.Millisecond, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &fakePage{winner: "unsubscribe-text", finalURL: "https://shop.example/done"}
			exec := NewBrowserExecutor(&fakeDriver{session: &fakeSession{page: page}}, BrowserExecutorConfig{SettleDelay: tt.settle}, arbor.NewLogger())
			var slept []time.Duration
			exec.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }

			attempt := exec.Execute(context.Background(), &models.Email{}, validated(models.MethodBrowserLink, "https://shop.example/u"))

			assert.True(t, attempt.Success)
			assert.Equal(t, []time.Duration{tt.expected}, slept)
		})
	}
}

func TestBrowserExecutor_FinalURLFallback(t *testing.T) {
	page := &fakePage{finalURL: "https://shop.example/unsubscribe/confirmed"}
	session := &fakeSession{page: page}
	exec, slept := newBrowserExecutor(&fakeDriver{session: session})

	attempt := exec.Execute(context.Background(), &models.Email{}, validated(models.MethodBrowserLink, "https://shop.example/u"))

	assert.True(t, attempt.Success)
	assert.Empty(t, *slept)
	assert.Len(t, page.tried, 3)
	assert.Equal(t, 1, session.closes)
}

func TestBrowserExecutor_NoControlFails(t *testing.T) {
	session := &fakeSession{page: &fakePage{finalURL: "https://shop.example/home"}}
	exec, _ := newBrowserExecutor(&fakeDriver{session: session})

	attempt := exec.Execute(context.Background(), &models.Email{}, validated(models.MethodBrowserLink, "https://shop.example/u"))

	assert.False(t, attempt.Success)
	assert.Contains(t, attempt.Error, "no confirmation control found")
	assert.Equal(t, 1, session.closes)
}

func TestBrowserExecutor_ClosesExactlyOnceOnEveryPath(t *testing.T) {
	tests := []struct {
		name    string
		session *fakeSession
	}{
		{name: "navigation error", session: &fakeSession{page: &fakePage{gotoErr: context.DeadlineExceeded}}},
		{name: "navigation panic", session: &fakeSession{page: &fakePage{gotoPanic: true}}},
		{name: "new page error", session: &fakeSession{newPageErr: errors.New("target closed")}},
		{name: "success", session: &fakeSession{page: &fakePage{winner: "form-submit"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, _ := newBrowserExecutor(&fakeDriver{session: tt.session})

			attempt := exec.Execute(context.Background(), &models.Email{}, validated(models.MethodBrowserLink, "https://shop.example/u"))

			assert.Equal(t, 1, tt.session.closes)
			if tt.name != "success" {
				assert.False(t, attempt.Success)
				assert.Contains(t, attempt.Error, ErrAutomation.Error())
			}
		})
	}
}

func TestBrowserExecutor_LaunchFailureIsAttemptFailure(t *testing.T) {
	driver := &fakeDriver{launchErr: errors.New("chrome not found")}
	exec, _ := newBrowserExecutor(driver)

	attempt := exec.Execute(context.Background(), &models.Email{}, validated(models.MethodBrowserLink, "https://shop.example/u"))

	assert.False(t, attempt.Success)
	assert.Contains(t, attempt.Error, "chrome not found")
	assert.Equal(t, 1, driver.launches)
}

func TestBrowserExecutor_LadderContinuesAfterLaunchFailure(t *testing.T) {
	httpExec := newCountingExecutor()
	httpExec.succeed["https://b.example/u"] = true
	browser, _ := newBrowserExecutor(&fakeDriver{launchErr: errors.New("no chrome")})
	ladder := NewLadder(map[models.Method]interfaces.MechanismExecutor{
		models.MethodBrowserLink: browser,
		models.MethodHTTPGet:     httpExec,
	}, arbor.NewLogger())

	outcome := ladder.Run(context.Background(), &models.Email{}, []models.ValidatedCandidate{
		validated(models.MethodBrowserLink, "https://a.example/u"),
		validated(models.MethodHTTPGet, "https://b.example/u"),
	}, false)

	assert.True(t, outcome.Success)
	assert.Equal(t, models.MethodHTTPGet, outcome.MethodUsed)
	require.Len(t, outcome.Attempts, 2)
	assert.False(t, outcome.Attempts[0].Success)
}

func TestDefaultStrategies_Order(t *testing.T) {
	strategies := DefaultStrategies()

	require.Len(t, strategies, 3)
	assert.True(t, strategies[0].XPath)
	assert.Equal(t, `[data-action="unsubscribe"]`, strategies[1].Query)
	assert.Contains(t, strategies[2].Query, `form[action*="unsubscribe"]`)
}
