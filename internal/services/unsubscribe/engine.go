package unsubscribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/interfaces"
	"github.com/ternarybob/optout/internal/models"
	"github.com/ternarybob/optout/internal/services/safety"
)

// Engine runs the full single-email pipeline:
// safety gate, extraction, validation, ladder, aggregation.
type Engine struct {
	gate      *safety.Gate
	whitelist interfaces.WhitelistRegistry
	extractor *LinkExtractor
	validator *LinkValidator
	ladder    *Ladder
	logger    arbor.ILogger
}

// NewEngine wires the engine. whitelist may be nil, meaning nobody is whitelisted.
func NewEngine(
	gate *safety.Gate,
	whitelist interfaces.WhitelistRegistry,
	extractor *LinkExtractor,
	validator *LinkValidator,
	ladder *Ladder,
	logger arbor.ILogger,
) *Engine {
	return &Engine{
		gate:      gate,
		whitelist: whitelist,
		extractor: extractor,
		validator: validator,
		ladder:    ladder,
		logger:    logger,
	}
}

// Process handles one email and never returns an error; every failure is
// described by the report's safety verdict or outcome.
func (e *Engine) Process(ctx context.Context, email *models.Email, classification *models.Classification, simulate bool) *models.Report {
	var verdictInput models.Classification
	if classification != nil {
		verdictInput = *classification
	}

	whitelisted, lookupErr := e.isWhitelisted(ctx, email)
	verdict := e.gate.Evaluate(email, verdictInput, whitelisted)
	if lookupErr != nil {
		// Unknown membership blocks
		verdict.Issues = append(verdict.Issues, fmt.Sprintf("whitelist lookup failed: %v", lookupErr))
		verdict.Proceed = false
	}

	if !verdict.Proceed {
		outcome := models.Outcome{
			Attempts:  []models.ExecutionAttempt{},
			Simulated: simulate,
			Reason:    models.ReasonNotMarketing,
		}
		if len(verdict.Issues) > 0 {
			outcome.Reason = fmt.Errorf("%w: %s", ErrSafetyBlock, strings.Join(verdict.Issues, "; ")).Error()
		}
		e.logger.Info().
			Str("email_id", emailID(email)).
			Strs("issues", verdict.Issues).
			Str("reason", outcome.Reason).
			Msg("Skipping email")
		return Aggregate(email, verdictInput, verdict, outcome)
	}

	if len(verdict.Warnings) > 0 {
		e.logger.Debug().Str("email_id", emailID(email)).Strs("warnings", verdict.Warnings).Msg("Safety warnings")
	}

	candidates := e.extractor.Extract(email)
	validated := e.validator.Filter(candidates)

	e.logger.Debug().
		Str("email_id", emailID(email)).
		Int("candidates", len(candidates)).
		Int("validated", len(validated)).
		Bool("simulate", simulate).
		Msg("Running unsubscribe ladder")

	outcome := e.ladder.Run(ctx, email, validated, simulate)
	return Aggregate(email, verdictInput, verdict, outcome)
}

func (e *Engine) isWhitelisted(ctx context.Context, email *models.Email) (bool, error) {
	if e.whitelist == nil || email == nil {
		return false, nil
	}
	return e.whitelist.IsWhitelisted(ctx, email)
}
