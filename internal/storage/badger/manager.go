package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	kv        interfaces.KeyValueStorage
	whitelist interfaces.WhitelistStorage
	report    interfaces.ReportStorage
	logger    arbor.ILogger
}

// NewManager opens the database and builds the storage set
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		kv:        NewKVStorage(db, logger),
		whitelist: NewWhitelistStorage(db, logger),
		report:    NewReportStorage(db, logger),
		logger:    logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// WhitelistStorage returns the Whitelist storage interface
func (m *Manager) WhitelistStorage() interfaces.WhitelistStorage {
	return m.whitelist
}

// ReportStorage returns the Report storage interface
func (m *Manager) ReportStorage() interfaces.ReportStorage {
	return m.report
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
