// Package runner drives batch runs: fetch, classify, filter, process each
// email through the unsubscribe engine and persist the reports.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/interfaces"
	"github.com/ternarybob/optout/internal/models"
)

// Processor handles a single email; *unsubscribe.Engine implements it
type Processor interface {
	Process(ctx context.Context, email *models.Email, classification *models.Classification, simulate bool) *models.Report
}

// Refresher reloads per-run state such as the whitelist snapshot
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Options control a single run
type Options struct {
	Query     string
	MaxEmails int
	Simulate  bool
}

// Runner orchestrates batch runs
type Runner struct {
	source     interfaces.EmailSource
	classifier interfaces.Classifier
	processor  Processor
	whitelist  Refresher
	reports    interfaces.ReportStorage
	config     common.RunnerConfig
	logger     arbor.ILogger
}

// New creates a runner. whitelist and reports may be nil.
func New(
	source interfaces.EmailSource,
	classifier interfaces.Classifier,
	processor Processor,
	whitelist Refresher,
	reports interfaces.ReportStorage,
	config common.RunnerConfig,
	logger arbor.ILogger,
) *Runner {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Runner{
		source:     source,
		classifier: classifier,
		processor:  processor,
		whitelist:  whitelist,
		reports:    reports,
		config:     config,
		logger:     logger,
	}
}

// Run performs one batch. Cancellation stops new emails from being started;
// emails already in flight finish and the partial summary is returned.
func (r *Runner) Run(ctx context.Context, opts Options) (*models.RunSummary, error) {
	summary := &models.RunSummary{
		RunID:     common.NewRunID(),
		StartedAt: time.Now(),
		Simulated: opts.Simulate,
	}

	r.logger.Info().
		Str("run_id", summary.RunID).
		Str("query", opts.Query).
		Int("max_emails", opts.MaxEmails).
		Bool("simulate", opts.Simulate).
		Str("classifier", r.classifier.Name()).
		Msg("Starting run")

	if r.whitelist != nil {
		if err := r.whitelist.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("failed to load whitelist: %w", err)
		}
	}

	emails, err := r.source.Fetch(ctx, opts.Query, opts.MaxEmails)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch emails: %w", err)
	}
	summary.Fetched = len(emails)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.config.Concurrency)
	)

	for _, email := range emails {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			summary.Cancelled = true
		}
		if summary.Cancelled {
			break
		}

		wg.Add(1)
		common.SafeGo(r.logger, "runner-email-"+email.ID, func() {
			defer wg.Done()
			defer func() { <-sem }()

			marketing, report := r.processEmail(ctx, summary.RunID, email, opts.Simulate)

			mu.Lock()
			defer mu.Unlock()
			if marketing {
				summary.Marketing++
			}
			if report != nil {
				summary.Add(report)
			}
		})
	}

	wg.Wait()
	summary.Duration = time.Since(summary.StartedAt)

	r.logger.Info().
		Str("run_id", summary.RunID).
		Int("fetched", summary.Fetched).
		Int("marketing", summary.Marketing).
		Int("eligible", summary.Eligible).
		Int("blocked", summary.Blocked).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Bool("cancelled", summary.Cancelled).
		Str("duration", summary.Duration.String()).
		Msg("Run complete")

	return summary, nil
}

// processEmail classifies and, for marketing mail above the confidence
// floor, runs the engine. A nil report means the email was skipped.
func (r *Runner) processEmail(ctx context.Context, runID string, email *models.Email, simulate bool) (bool, *models.Report) {
	classification, err := r.classifier.Classify(ctx, email)
	if err != nil {
		r.logger.Warn().Err(err).Str("email_id", email.ID).Msg("Classification failed, skipping email")
		return false, nil
	}
	if !classification.IsMarketing || classification.Confidence < r.config.MinConfidence {
		r.logger.Debug().
			Str("email_id", email.ID).
			Bool("is_marketing", classification.IsMarketing).
			Str("reason", classification.Reason).
			Msg("Not marketing, skipping email")
		return false, nil
	}

	report := r.processor.Process(ctx, email, classification, simulate)
	report.RunID = runID

	if r.reports != nil {
		if err := r.reports.SaveReport(ctx, report); err != nil {
			r.logger.Warn().Err(err).Str("report_id", report.ID).Msg("Failed to persist report")
		}
	}

	r.logger.Info().
		Str("email_id", email.ID).
		Str("from", email.From).
		Str("subject", email.Subject).
		Bool("success", report.Outcome.Success).
		Str("method", string(report.Outcome.MethodUsed)).
		Str("reason", report.Outcome.Reason).
		Bool("simulated", report.Outcome.Simulated).
		Msg("Email processed")

	return true, report
}
