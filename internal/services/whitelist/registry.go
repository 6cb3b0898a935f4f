// Package whitelist answers whether a sender must never be unsubscribed
// from. Entries live in badger and are matched from an in-memory snapshot
// that is loaded once per run.
package whitelist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/interfaces"
	"github.com/ternarybob/optout/internal/models"
)

// Registry implements interfaces.WhitelistRegistry over WhitelistStorage
type Registry struct {
	storage interfaces.WhitelistStorage
	logger  arbor.ILogger

	mu       sync.RWMutex
	snapshot *snapshot
}

type snapshot struct {
	domains  []string
	emails   []string
	patterns []*regexp.Regexp
}

// NewRegistry creates a registry; call Refresh (or Seed) before a run
func NewRegistry(storage interfaces.WhitelistStorage, logger arbor.ILogger) *Registry {
	return &Registry{storage: storage, logger: logger}
}

// Seed imports the whitelist file when present, then falls back to
// DefaultDomains if the store is still empty. A missing file is not an error.
func (r *Registry) Seed(ctx context.Context, path string) error {
	if path != "" {
		list, err := LoadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			r.logger.Debug().Str("file", path).Msg("Whitelist file not found, skipping")
		case err != nil:
			return err
		default:
			added, err := r.addAll(ctx, Entries(list, "file"))
			if err != nil {
				return err
			}
			r.logger.Debug().Str("file", path).Int("added", added).Msg("Whitelist file loaded")
		}
	}

	count, err := r.storage.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count whitelist entries: %w", err)
	}
	if count == 0 {
		defaults := Entries(&models.Whitelist{Domains: DefaultDomains}, "default")
		if _, err := r.addAll(ctx, defaults); err != nil {
			return err
		}
		r.logger.Info().Strs("domains", DefaultDomains).Msg("Whitelist empty, seeded default domains")
	}

	return r.Refresh(ctx)
}

func (r *Registry) addAll(ctx context.Context, entries []models.WhitelistEntry) (int, error) {
	added := 0
	for i := range entries {
		ok, err := r.storage.Add(ctx, &entries[i])
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Refresh reloads the matching snapshot from storage. Invalid patterns are
// skipped with a warning.
func (r *Registry) Refresh(ctx context.Context) error {
	entries, err := r.storage.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load whitelist: %w", err)
	}

	snap := &snapshot{}
	for _, entry := range entries {
		switch entry.Kind {
		case models.WhitelistDomain:
			snap.domains = append(snap.domains, strings.ToLower(entry.Value))
		case models.WhitelistEmail:
			snap.emails = append(snap.emails, strings.ToLower(entry.Value))
		case models.WhitelistPattern:
			re, err := regexp.Compile("(?i)" + entry.Value)
			if err != nil {
				r.logger.Warn().Err(err).Str("pattern", entry.Value).Msg("Skipping invalid whitelist pattern")
				continue
			}
			snap.patterns = append(snap.patterns, re)
		}
	}

	r.mu.Lock()
	r.snapshot = snap
	r.mu.Unlock()

	r.logger.Debug().
		Int("domains", len(snap.domains)).
		Int("emails", len(snap.emails)).
		Int("patterns", len(snap.patterns)).
		Msg("Whitelist snapshot loaded")
	return nil
}

// IsWhitelisted matches the sender against the snapshot. Emails and domains
// match as case-insensitive substrings; patterns are tested against the
// From header and the sender domain.
func (r *Registry) IsWhitelisted(ctx context.Context, email *models.Email) (bool, error) {
	r.mu.RLock()
	snap := r.snapshot
	r.mu.RUnlock()

	if snap == nil {
		if err := r.Refresh(ctx); err != nil {
			return false, err
		}
		r.mu.RLock()
		snap = r.snapshot
		r.mu.RUnlock()
	}

	from := strings.ToLower(email.From)
	domain := email.SenderDomain()

	for _, e := range snap.emails {
		if strings.Contains(from, e) {
			return true, nil
		}
	}
	if domain != "" {
		for _, d := range snap.domains {
			if strings.Contains(domain, d) {
				return true, nil
			}
		}
	}
	for _, re := range snap.patterns {
		if re.MatchString(from) || (domain != "" && re.MatchString(domain)) {
			return true, nil
		}
	}
	return false, nil
}

// Add whitelists an email address (value contains "@") or a domain.
// Returns false if it was already present.
func (r *Registry) Add(ctx context.Context, value, source string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, fmt.Errorf("whitelist value is required")
	}

	kind := models.WhitelistDomain
	if strings.Contains(value, "@") {
		kind = models.WhitelistEmail
	}

	added, err := r.storage.Add(ctx, &models.WhitelistEntry{Kind: kind, Value: value, Source: source})
	if err != nil {
		return false, err
	}

	r.logger.Info().Str("kind", string(kind)).Str("value", value).Bool("added", added).Msg("Whitelist updated")
	return added, r.Refresh(ctx)
}
