package models

import "time"

// Classification is the verdict produced by a classifier oracle.
type Classification struct {
	IsMarketing       bool    `json:"is_marketing"`
	Confidence        float64 `json:"confidence"`
	Reason            string  `json:"reason"`
	ShouldUnsubscribe bool    `json:"should_unsubscribe"`
	Classifier        string  `json:"classifier,omitempty"`
}

// SafetyVerdict is the proceed/block decision of the safety gate.
// Issues block execution; warnings are informational only.
type SafetyVerdict struct {
	Proceed  bool     `json:"proceed"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
}

// Report is the reportable record for one processed email.
// Persisted by the runner in badgerhold, indexed on RunID.
type Report struct {
	ID             string         `json:"id"`
	RunID          string         `json:"run_id" badgerhold:"index"`
	EmailID        string         `json:"email_id" badgerhold:"index"`
	ThreadID       string         `json:"thread_id,omitempty"`
	From           string         `json:"from"`
	Subject        string         `json:"subject"`
	Classification Classification `json:"classification"`
	Safety         SafetyVerdict  `json:"safety"`
	Outcome        Outcome        `json:"outcome"`
	Simulated      bool           `json:"simulated"`
	ProcessedAt    time.Time      `json:"processed_at"`
}

// RunSummary aggregates the reports of a single batch run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Fetched    int           `json:"fetched"`
	Marketing  int           `json:"marketing"`
	Eligible   int           `json:"eligible"`
	Blocked    int           `json:"blocked"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Simulated  bool          `json:"simulated"`
	Cancelled  bool          `json:"cancelled"`
	Candidates int           `json:"candidates"`
}

// Add folds a report into the summary.
func (s *RunSummary) Add(r *Report) {
	if len(r.Safety.Issues) > 0 || !r.Safety.Proceed {
		s.Blocked++
		return
	}
	s.Eligible++
	s.Candidates += len(r.Outcome.Candidates)
	if r.Outcome.Success {
		s.Succeeded++
	} else {
		s.Failed++
	}
}
