package whitelist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/optout/internal/models"
)

// DefaultDomains seed an empty whitelist
var DefaultDomains = []string{"gmail.com", "google.com", "github.com", "linkedin.com"}

// LoadFile reads a whitelist file. The format is chosen by extension:
// .toml, .yaml/.yml or .json. Patterns must compile.
//
// Format (toml):
//
//	domains = ["example.com"]
//	emails = ["boss@example.com"]
//	patterns = ["(?i)@bank\\."]
func LoadFile(path string) (*models.Whitelist, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list models.Whitelist
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(content, &list)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &list)
	case ".json":
		err = json.Unmarshal(content, &list)
	default:
		return nil, fmt.Errorf("unsupported whitelist format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse whitelist %s: %w", path, err)
	}

	if err := validator.New().Struct(&list); err != nil {
		return nil, fmt.Errorf("invalid whitelist %s: %w", path, err)
	}
	for _, pattern := range list.Patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("invalid whitelist pattern %q: %w", pattern, err)
		}
	}

	return &list, nil
}

// Entries flattens a whitelist into storage entries
func Entries(list *models.Whitelist, source string) []models.WhitelistEntry {
	if list == nil {
		return nil
	}
	entries := make([]models.WhitelistEntry, 0, len(list.Domains)+len(list.Emails)+len(list.Patterns))
	for _, d := range list.Domains {
		entries = append(entries, models.WhitelistEntry{Kind: models.WhitelistDomain, Value: d, Source: source})
	}
	for _, e := range list.Emails {
		entries = append(entries, models.WhitelistEntry{Kind: models.WhitelistEmail, Value: e, Source: source})
	}
	for _, p := range list.Patterns {
		entries = append(entries, models.WhitelistEntry{Kind: models.WhitelistPattern, Value: p, Source: source})
	}
	return entries
}
