package runner

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/common"
)

// Schedule runs Run on a cron expression until ctx is cancelled. A run that
// is still going when the next tick fires causes that tick to be skipped.
func (r *Runner) Schedule(ctx context.Context, expr string, opts Options) error {
	logger := cronLogger{r.logger}
	c := cron.New(
		cron.WithParser(common.ScheduleParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(expr, func() {
		if _, err := r.Run(ctx, opts); err != nil {
			r.logger.Error().Err(err).Msg("Scheduled run failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	c.Start()
	r.logger.Info().Str("schedule", expr).Msg("Scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()

	r.logger.Info().Msg("Scheduler stopped")
	return nil
}

// cronLogger adapts arbor to cron.Logger
type cronLogger struct {
	logger arbor.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("cron", fmt.Sprint(keysAndValues...)).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("cron", fmt.Sprint(keysAndValues...)).Msg(msg)
}
