package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/optout/internal/interfaces"
	"github.com/ternarybob/optout/internal/models"
)

// WhitelistStorage persists whitelist entries keyed by kind and lower-cased value
type WhitelistStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWhitelistStorage creates a new WhitelistStorage instance
func NewWhitelistStorage(db *BadgerDB, logger arbor.ILogger) interfaces.WhitelistStorage {
	return &WhitelistStorage{db: db, logger: logger}
}

// WhitelistKey builds the storage key for an entry
func WhitelistKey(kind models.WhitelistKind, value string) string {
	return string(kind) + ":" + strings.ToLower(strings.TrimSpace(value))
}

// Add stores the entry unless an entry with the same key exists.
// Patterns keep their original case; other values are lower-cased.
func (s *WhitelistStorage) Add(ctx context.Context, entry *models.WhitelistEntry) (bool, error) {
	value := strings.TrimSpace(entry.Value)
	if value == "" {
		return false, fmt.Errorf("whitelist value is required")
	}
	if entry.Kind != models.WhitelistPattern {
		value = strings.ToLower(value)
	}

	key := WhitelistKey(entry.Kind, value)
	stored := *entry
	stored.Key = key
	stored.Value = value
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	err := s.db.Store().Insert(key, &stored)
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to add whitelist entry: %w", err)
	}

	s.logger.Debug().Str("kind", string(stored.Kind)).Str("value", value).Msg("Whitelist entry added")
	return true, nil
}

// Remove deletes an entry; removing a missing entry is not an error
func (s *WhitelistStorage) Remove(ctx context.Context, kind models.WhitelistKind, value string) error {
	err := s.db.Store().Delete(WhitelistKey(kind, value), &models.WhitelistEntry{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to remove whitelist entry: %w", err)
	}
	return nil
}

// List returns all entries ordered by kind then value
func (s *WhitelistStorage) List(ctx context.Context) ([]models.WhitelistEntry, error) {
	var entries []models.WhitelistEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("Key").Ne("").SortBy("Kind", "Value")); err != nil {
		return nil, fmt.Errorf("failed to list whitelist entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored entries
func (s *WhitelistStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.WhitelistEntry{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count whitelist entries: %w", err)
	}
	return int(count), nil
}
