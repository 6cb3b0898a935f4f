package unsubscribe

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/interfaces"
	"github.com/ternarybob/optout/internal/models"
)

// Ladder tries validated candidates one at a time, in order, until one succeeds.
// It owns the dry-run distinction: simulated runs never touch an executor.
type Ladder struct {
	executors map[models.Method]interfaces.MechanismExecutor
	logger    arbor.ILogger
}

// NewLadder creates a ladder dispatching each method to its executor
func NewLadder(executors map[models.Method]interfaces.MechanismExecutor, logger arbor.ILogger) *Ladder {
	return &Ladder{executors: executors, logger: logger}
}

// Run produces exactly one Outcome for the candidates
func (l *Ladder) Run(ctx context.Context, email *models.Email, candidates []models.ValidatedCandidate, simulate bool) models.Outcome {
	outcome := models.Outcome{
		Attempts:   []models.ExecutionAttempt{},
		Simulated:  simulate,
		Candidates: candidates,
	}

	if len(candidates) == 0 {
		outcome.Reason = models.ReasonNoMechanism
		return outcome
	}

	if simulate {
		outcome.Success = true
		return outcome
	}

	for _, candidate := range candidates {
		attempt := l.attempt(ctx, email, candidate)
		outcome.Attempts = append(outcome.Attempts, attempt)

		if attempt.Success {
			outcome.Success = true
			outcome.MethodUsed = candidate.Method
			l.logger.Info().
				Str("email_id", emailID(email)).
				Str("method", string(candidate.Method)).
				Str("url", candidate.URL).
				Int("attempts", len(outcome.Attempts)).
				Msg("Unsubscribe succeeded")
			return outcome
		}
	}

	outcome.Reason = models.ReasonAllAttempts
	l.logger.Warn().
		Str("email_id", emailID(email)).
		Int("attempts", len(outcome.Attempts)).
		Msg("All unsubscribe attempts failed")
	return outcome
}

// attempt runs a single executor; a missing executor or a panic becomes a failed attempt
func (l *Ladder) attempt(ctx context.Context, email *models.Email, candidate models.ValidatedCandidate) (attempt models.ExecutionAttempt) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			attempt = models.ExecutionAttempt{
				Candidate: candidate,
				Error:     fmt.Sprintf("executor panic: %v", r),
				StartedAt: started,
				Duration:  time.Since(started),
			}
		}
	}()

	executor, ok := l.executors[candidate.Method]
	if !ok || executor == nil {
		return models.ExecutionAttempt{
			Candidate: candidate,
			Error:     fmt.Sprintf("no executor registered for method %s", candidate.Method),
			StartedAt: started,
			Duration:  time.Since(started),
		}
	}

	attempt = executor.Execute(ctx, email, candidate)
	attempt.Candidate = candidate
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = started
	}
	return attempt
}

func emailID(email *models.Email) string {
	if email == nil {
		return ""
	}
	return email.ID
}
