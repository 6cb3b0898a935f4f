package models

import "time"

// SourceKind identifies where in an email a candidate was found.
// Declaration order reflects decreasing trust.
type SourceKind string

const (
	SourceHeader SourceKind = "header"
	SourceHTML   SourceKind = "html"
	SourceText   SourceKind = "text"
)

// Method is the mechanism used to act on a candidate.
type Method string

const (
	MethodHTTPGet     Method = "http-get"
	MethodHTTPPost    Method = "http-post"
	MethodBrowserLink Method = "browser-link"
)

// Outcome failure reasons
const (
	ReasonNoMechanism   = "no valid unsubscribe mechanism found"
	ReasonAllAttempts   = "all unsubscribe attempts failed"
	ReasonSafetyBlocked = "blocked by safety gate"
	ReasonNotMarketing  = "classification does not recommend unsubscribing"
)

// Candidate is a detected, not yet validated unsubscribe mechanism.
type Candidate struct {
	Source SourceKind `json:"source"`
	URL    string     `json:"url"`
	Method Method     `json:"method"`
	Text   string     `json:"text,omitempty"` // anchor text, html candidates only
}

// ValidatedCandidate is a Candidate that passed validation. Key is the
// deduplication key: normalized URL plus method.
type ValidatedCandidate struct {
	Candidate
	Key string `json:"key"`
}

// ExecutionAttempt records a single executor invocation against a candidate.
type ExecutionAttempt struct {
	Candidate  ValidatedCandidate `json:"candidate"`
	Success    bool               `json:"success"`
	StatusCode int                `json:"status_code,omitempty"`
	Error      string             `json:"error,omitempty"`
	FinalURL   string             `json:"final_url,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	Duration   time.Duration      `json:"duration"`
}

// Outcome is the single result of running the execution ladder for one email.
type Outcome struct {
	Success    bool                 `json:"success"`
	MethodUsed Method               `json:"method_used,omitempty"`
	Attempts   []ExecutionAttempt   `json:"attempts"`
	Reason     string               `json:"reason,omitempty"`
	Simulated  bool                 `json:"simulated"`
	Candidates []ValidatedCandidate `json:"candidates,omitempty"`
}
