// -----------------------------------------------------------------------
// Link Extractor - unsubscribe candidate discovery across header, HTML and text
// -----------------------------------------------------------------------

package unsubscribe

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/models"
)

// htmlVocabulary marks an anchor as an unsubscribe control when found in its text or href
var htmlVocabulary = []string{"unsubscribe", "opt-out", "opt out", "optout", "preferences"}

var (
	textURLPattern    = regexp.MustCompile(`(?i)https?://[^\s<>"'` + "`" + `]+`)
	textURLVocabulary = regexp.MustCompile(`(?i)unsubscribe|optout|opt-out|preferences`)
)

const trailingPunctuation = `.,;:!?)]}>'"`

// LinkExtractor finds unsubscribe candidates in an email. Sources are
// independent: a broken HTML body never hides the header or text candidates.
type LinkExtractor struct {
	logger arbor.ILogger
}

// NewLinkExtractor creates a new link extractor
func NewLinkExtractor(logger arbor.ILogger) *LinkExtractor {
	return &LinkExtractor{logger: logger}
}

// Extract returns candidates in trust order: header, then html, then text.
func (le *LinkExtractor) Extract(email *models.Email) []models.Candidate {
	if email == nil {
		return nil
	}

	var candidates []models.Candidate
	candidates = append(candidates, le.guard(models.SourceHeader, email.ID, func() ([]models.Candidate, error) {
		return FromHeader(email.ListUnsubscribe, email.HasListUnsubscribePost), nil
	})...)
	candidates = append(candidates, le.guard(models.SourceHTML, email.ID, func() ([]models.Candidate, error) {
		return FromHTML(email.HTMLBody)
	})...)
	candidates = append(candidates, le.guard(models.SourceText, email.ID, func() ([]models.Candidate, error) {
		return FromText(email.Body), nil
	})...)

	le.logger.Debug().
		Str("email_id", email.ID).
		Int("candidates", len(candidates)).
		Msg("Extracted unsubscribe candidates")

	return candidates
}

// guard runs one source extractor and converts any failure into an empty result
func (le *LinkExtractor) guard(source models.SourceKind, emailID string, fn func() ([]models.Candidate, error)) (out []models.Candidate) {
	defer func() {
		if r := recover(); r != nil {
			le.logger.Debug().
				Err(fmt.Errorf("%w: %v", ErrExtraction, r)).
				Str("email_id", emailID).
				Str("source", string(source)).
				Msg("Ignoring malformed email source")
			out = nil
		}
	}()

	candidates, err := fn()
	if err != nil {
		le.logger.Debug().Err(err).Str("email_id", emailID).Str("source", string(source)).Msg("Ignoring malformed email source")
		return nil
	}
	return candidates
}

// FromHeader parses a List-Unsubscribe value (RFC 2369). Only bracketed
// http/https entries are kept; with onePost set each URL also yields an
// http-post candidate right after its GET (RFC 8058).
func FromHeader(value string, onePost bool) []models.Candidate {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	var candidates []models.Candidate
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "<") || !strings.HasSuffix(part, ">") {
			continue
		}
		raw := strings.TrimSpace(part[1 : len(part)-1])
		if !isHTTPURL(raw) {
			continue
		}

		candidates = append(candidates, models.Candidate{Source: models.SourceHeader, URL: raw, Method: models.MethodHTTPGet})
		if onePost {
			candidates = append(candidates, models.Candidate{Source: models.SourceHeader, URL: raw, Method: models.MethodHTTPPost})
		}
	}
	return candidates
}

// FromHTML returns a browser-link candidate for every anchor whose visible
// text or href uses unsubscribe vocabulary.
func FromHTML(body string) ([]models.Candidate, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrExtraction, err)
	}

	var candidates []models.Candidate
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}

		text := strings.Join(strings.Fields(s.Text()), " ")
		if !containsAny(strings.ToLower(text), htmlVocabulary) && !containsAny(strings.ToLower(href), htmlVocabulary) {
			return
		}

		candidates = append(candidates, models.Candidate{
			Source: models.SourceHTML,
			URL:    href,
			Method: models.MethodBrowserLink,
			Text:   text,
		})
	})
	return candidates, nil
}

// FromText scans a plain-text body for absolute unsubscribe URLs.
func FromText(body string) []models.Candidate {
	if body == "" {
		return nil
	}

	var candidates []models.Candidate
	for _, match := range textURLPattern.FindAllString(body, -1) {
		raw := strings.TrimRight(match, trailingPunctuation)
		if !textURLVocabulary.MatchString(raw) {
			continue
		}
		candidates = append(candidates, models.Candidate{
			Source: models.SourceText,
			URL:    raw,
			Method: models.MethodBrowserLink,
		})
	}
	return candidates
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
