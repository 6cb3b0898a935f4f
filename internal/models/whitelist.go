package models

import "time"

// WhitelistKind distinguishes whitelist entry types
type WhitelistKind string

const (
	WhitelistDomain  WhitelistKind = "domain"
	WhitelistEmail   WhitelistKind = "email"
	WhitelistPattern WhitelistKind = "pattern"
)

// Whitelist is the file and in-memory shape of the sender whitelist.
// Domains and emails match as case-insensitive substrings; patterns are
// regular expressions tested against the sender address or domain.
type Whitelist struct {
	Domains  []string `json:"domains" toml:"domains" yaml:"domains" validate:"dive,required"`
	Emails   []string `json:"emails" toml:"emails" yaml:"emails" validate:"dive,required"`
	Patterns []string `json:"patterns" toml:"patterns" yaml:"patterns" validate:"dive,required"`
}

// IsEmpty reports whether the whitelist has no entries at all.
func (w *Whitelist) IsEmpty() bool {
	return w == nil || len(w.Domains)+len(w.Emails)+len(w.Patterns) == 0
}

// WhitelistEntry is a single persisted whitelist row.
type WhitelistEntry struct {
	Key       string        `json:"key"` // kind + ":" + lower-cased value
	Kind      WhitelistKind `json:"kind" badgerhold:"index"`
	Value     string        `json:"value"`
	Source    string        `json:"source"` // "file", "cli", "default"
	CreatedAt time.Time     `json:"created_at"`
}
