package unsubscribe

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/models"
)

// LinkValidator rejects candidates that are not absolute http(s) URLs or that
// hide their destination behind a link shortener.
type LinkValidator struct {
	shorteners []string
	logger     arbor.ILogger
}

// NewLinkValidator creates a validator with the given shortener deny-list.
// Entries match the host itself and any of its subdomains.
func NewLinkValidator(shorteners []string, logger arbor.ILogger) *LinkValidator {
	normalized := make([]string, 0, len(shorteners))
	for _, s := range shorteners {
		s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".")
		if s != "" {
			normalized = append(normalized, s)
		}
	}
	return &LinkValidator{shorteners: normalized, logger: logger}
}

// IsValid reports whether a candidate may be executed
func (v *LinkValidator) IsValid(candidate models.Candidate) bool {
	return v.Check(candidate) == nil
}

// Check returns nil for a valid candidate or an ErrValidation describing the rejection
func (v *LinkValidator) Check(candidate models.Candidate) error {
	u, err := url.Parse(strings.TrimSpace(candidate.URL))
	if err != nil {
		return fmt.Errorf("%w: unparseable url: %v", ErrValidation, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrValidation, u.Scheme)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrValidation)
	}

	for _, shortener := range v.shorteners {
		if host == shortener || strings.HasSuffix(host, "."+shortener) {
			return fmt.Errorf("%w: link shortener %s", ErrValidation, shortener)
		}
	}
	return nil
}

// Filter keeps valid candidates in their original order and drops later
// duplicates of the same normalized URL and method.
func (v *LinkValidator) Filter(candidates []models.Candidate) []models.ValidatedCandidate {
	validated := make([]models.ValidatedCandidate, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))

	for _, candidate := range candidates {
		if err := v.Check(candidate); err != nil {
			v.logger.Debug().
				Err(err).
				Str("url", candidate.URL).
				Str("source", string(candidate.Source)).
				Msg("Dropped unsubscribe candidate")
			continue
		}

		key := DedupKey(candidate)
		if seen[key] {
			continue
		}
		seen[key] = true

		validated = append(validated, models.ValidatedCandidate{Candidate: candidate, Key: key})
	}

	return validated
}

// DedupKey is the normalized URL joined with the method
func DedupKey(candidate models.Candidate) string {
	return NormalizeURL(candidate.URL) + "|" + string(candidate.Method)
}

// NormalizeURL lower-cases scheme and host, drops the fragment and default
// port, and strips a trailing slash from non-root paths. Unparseable input is
// returned trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = strings.TrimSuffix(u.RawPath, "/")
	}

	return u.String()
}
