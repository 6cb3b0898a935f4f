package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a batch run ID. Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewReportID generates a per-email report ID. Format: rpt_<uuid>
func NewReportID() string {
	return "rpt_" + uuid.New().String()
}
