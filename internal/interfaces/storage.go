package interfaces

import (
	"context"

	"github.com/ternarybob/optout/internal/models"
)

// WhitelistStorage persists whitelist entries
type WhitelistStorage interface {
	// Add stores an entry, returns false if it already existed
	Add(ctx context.Context, entry *models.WhitelistEntry) (bool, error)
	Remove(ctx context.Context, kind models.WhitelistKind, value string) error
	List(ctx context.Context) ([]models.WhitelistEntry, error)
	Count(ctx context.Context) (int, error)
}

// ReportStorage persists per-email reports produced by a run
type ReportStorage interface {
	SaveReport(ctx context.Context, report *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListByRun(ctx context.Context, runID string) ([]*models.Report, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	KeyValueStorage() KeyValueStorage
	WhitelistStorage() WhitelistStorage
	ReportStorage() ReportStorage
	Close() error
}
