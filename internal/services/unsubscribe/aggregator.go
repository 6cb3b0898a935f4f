package unsubscribe

import (
	"time"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/models"
)

// Aggregate composes the verdicts and outcome for one email into a report.
// RunID is left for the orchestrator to stamp.
func Aggregate(email *models.Email, classification models.Classification, verdict models.SafetyVerdict, outcome models.Outcome) *models.Report {
	report := &models.Report{
		ID:             common.NewReportID(),
		Classification: classification,
		Safety:         verdict,
		Outcome:        outcome,
		Simulated:      outcome.Simulated,
		ProcessedAt:    time.Now(),
	}
	if email != nil {
		report.EmailID = email.ID
		report.ThreadID = email.ThreadID
		report.From = email.From
		report.Subject = email.Subject
	}
	return report
}
