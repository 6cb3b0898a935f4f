package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/models"
)

type fakeSource struct {
	emails []*models.Email
	err    error
	calls  atomic.Int32
}

func (s *fakeSource) Fetch(ctx context.Context, query string, limit int) ([]*models.Email, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && len(s.emails) > limit {
		return s.emails[:limit], nil
	}
	return s.emails, nil
}

// fakeClassifier looks verdicts up by email ID
type fakeClassifier struct {
	verdicts map[string]*models.Classification
}

func (c *fakeClassifier) Name() string { return "fake" }

func (c *fakeClassifier) Classify(ctx context.Context, email *models.Email) (*models.Classification, error) {
	v, ok := c.verdicts[email.ID]
	if !ok {
		return nil, errors.New("no verdict")
	}
	return v, nil
}

type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	simulate  []bool
}

func (p *fakeProcessor) Process(ctx context.Context, email *models.Email, classification *models.Classification, simulate bool) *models.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, email.ID)
	p.simulate = append(p.simulate, simulate)

	return &models.Report{
		ID:             "rpt_" + email.ID,
		EmailID:        email.ID,
		Classification: *classification,
		Safety:         models.SafetyVerdict{Proceed: true},
		Outcome:        models.Outcome{Success: email.ID != "fail", Simulated: simulate},
		Simulated:      simulate,
	}
}

func (p *fakeProcessor) Processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.processed...)
}

type memReports struct {
	mu      sync.Mutex
	reports map[string]*models.Report
}

func (m *memReports) SaveReport(ctx context.Context, report *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reports == nil {
		m.reports = map[string]*models.Report{}
	}
	m.reports[report.ID] = report
	return nil
}

func (m *memReports) GetReport(ctx context.Context, id string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

func (m *memReports) ListByRun(ctx context.Context, runID string) ([]*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Report
	for _, r := range m.reports {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) Refresh(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func marketing(confidence float64) *models.Classification {
	return &models.Classification{IsMarketing: true, ShouldUnsubscribe: true, Confidence: confidence}
}

func fixture() (*fakeSource, *fakeClassifier) {
	source := &fakeSource{emails: []*models.Email{
		{ID: "ok"}, {ID: "fail"}, {ID: "personal"}, {ID: "unsure"}, {ID: "broken"},
	}}
	classifier := &fakeClassifier{verdicts: map[string]*models.Classification{
		"ok":       marketing(0.9),
		"fail":     marketing(0.8),
		"personal": {IsMarketing: false, Confidence: 0.9},
		"unsure":   marketing(0.5),
	}}
	return source, classifier
}

func TestRun_FiltersAndSummarises(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		source, classifier := fixture()
		processor := &fakeProcessor{}
		reports := &memReports{}
		refresher := &countingRefresher{}

		r := New(source, classifier, processor, refresher, reports,
			common.RunnerConfig{MinConfidence: 0.7, Concurrency: concurrency}, arbor.NewLogger())

		summary, err := r.Run(context.Background(), Options{MaxEmails: 10, Simulate: true})
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"ok", "fail"}, processor.Processed())
		assert.Equal(t, int32(1), refresher.calls.Load())
		assert.Equal(t, 5, summary.Fetched)
		assert.Equal(t, 2, summary.Marketing)
		assert.Equal(t, 2, summary.Eligible)
		assert.Equal(t, 1, summary.Succeeded)
		assert.Equal(t, 1, summary.Failed)
		assert.True(t, summary.Simulated)
		assert.False(t, summary.Cancelled)

		saved, err := reports.ListByRun(context.Background(), summary.RunID)
		require.NoError(t, err)
		assert.Len(t, saved, 2)
	}
}

func TestRun_PassesLimitAndSimulate(t *testing.T) {
	source, classifier := fixture()
	processor := &fakeProcessor{}

	r := New(source, classifier, processor, nil, nil, common.RunnerConfig{MinConfidence: 0.7}, arbor.NewLogger())
	summary, err := r.Run(context.Background(), Options{MaxEmails: 1, Simulate: false})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Fetched)
	assert.Equal(t, []string{"ok"}, processor.Processed())
	assert.Equal(t, []bool{false}, processor.simulate)
}

func TestRun_FetchError(t *testing.T) {
	source := &fakeSource{err: errors.New("imap down")}
	r := New(source, &fakeClassifier{}, &fakeProcessor{}, nil, nil, common.RunnerConfig{}, arbor.NewLogger())

	_, err := r.Run(context.Background(), Options{})
	assert.ErrorContains(t, err, "imap down")
}

func TestRun_WhitelistRefreshError(t *testing.T) {
	source, classifier := fixture()
	r := New(source, classifier, &fakeProcessor{}, &countingRefresher{err: errors.New("db closed")}, nil,
		common.RunnerConfig{}, arbor.NewLogger())

	_, err := r.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Equal(t, int32(0), source.calls.Load())
}

func TestRun_CancelledStopsBeforeProcessing(t *testing.T) {
	source, classifier := fixture()
	processor := &fakeProcessor{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(source, classifier, processor, nil, nil, common.RunnerConfig{}, arbor.NewLogger())
	summary, err := r.Run(ctx, Options{})
	require.NoError(t, err)

	assert.True(t, summary.Cancelled)
	assert.Empty(t, processor.Processed())
}

func TestSchedule_RunsUntilCancelled(t *testing.T) {
	source, classifier := fixture()
	r := New(source, classifier, &fakeProcessor{}, nil, nil, common.RunnerConfig{MinConfidence: 0.7}, arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Schedule(ctx, "@every 1s", Options{Simulate: true}) }()

	require.Eventually(t, func() bool { return source.calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedule_InvalidExpression(t *testing.T) {
	r := New(&fakeSource{}, &fakeClassifier{}, &fakeProcessor{}, nil, nil, common.RunnerConfig{}, arbor.NewLogger())

	err := r.Schedule(context.Background(), "not a cron", Options{})
	assert.Error(t, err)
}
