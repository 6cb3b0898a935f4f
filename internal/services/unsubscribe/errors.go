package unsubscribe

import "errors"

// Failure taxonomy. None of these escape Engine.Process; they are wrapped
// into attempt errors and log entries so callers can errors.Is them in tests.
var (
	// ErrExtraction marks a malformed email source; recovered to no candidates
	ErrExtraction = errors.New("extraction failed")
	// ErrValidation marks a rejected candidate; dropped silently
	ErrValidation = errors.New("candidate rejected")
	// ErrNetwork marks a failed HTTP attempt
	ErrNetwork = errors.New("network failure")
	// ErrAutomation marks a failed browser attempt (launch, navigation, selectors)
	ErrAutomation = errors.New("browser automation failure")
	// ErrSafetyBlock marks an email stopped by the safety gate
	ErrSafetyBlock = errors.New("blocked by safety gate")
)
