package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/optout/internal/interfaces"
	"github.com/ternarybob/optout/internal/models"
)

// ErrReportNotFound is returned by GetReport for an unknown ID
var ErrReportNotFound = errors.New("report not found")

// ReportStorage persists per-email reports
type ReportStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReportStorage {
	return &ReportStorage{db: db, logger: logger}
}

// SaveReport inserts or replaces a report by ID
func (s *ReportStorage) SaveReport(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		return fmt.Errorf("report ID is required")
	}
	if err := s.db.Store().Upsert(report.ID, report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (s *ReportStorage) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	err := s.db.Store().Get(id, &report)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &report, nil
}

// ListByRun returns the reports of a run in processing order
func (s *ReportStorage) ListByRun(ctx context.Context, runID string) ([]*models.Report, error) {
	var reports []models.Report
	query := badgerhold.Where("RunID").Eq(runID).Index("RunID").SortBy("ProcessedAt")
	if err := s.db.Store().Find(&reports, query); err != nil {
		return nil, fmt.Errorf("failed to list reports for run %s: %w", runID, err)
	}

	result := make([]*models.Report, len(reports))
	for i := range reports {
		result[i] = &reports[i]
	}
	return result, nil
}
