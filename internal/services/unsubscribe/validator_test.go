package unsubscribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/models"
)

func newValidator() *LinkValidator {
	return NewLinkValidator(common.DefaultShortenerDomains, arbor.NewLogger())
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://news.example/unsubscribe", true},
		{"http://news.example/u?id=1", true},
		{"mailto:u@news.example", false},
		{"javascript:alert(1)", false},
		{"/unsubscribe", false},
		{"https:///nohost", false},
		{"https://bit.ly/abc", false},
		{"https://BIT.LY/abc", false},
		{"https://www.bit.ly/abc", false},
		{"https://t.co/xyz", false},
		{"https://notbit.ly/abc", true},
		{"https://tinyurl.com.evil.example/u", true},
	}

	v := newValidator()
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, v.IsValid(models.Candidate{URL: tt.url, Method: models.MethodBrowserLink}))
		})
	}
}

func TestCheck_WrapsErrValidation(t *testing.T) {
	err := newValidator().Check(models.Candidate{URL: "https://bit.ly/abc"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFilter_ShortenerExcludedEvenWithUnsubscribeText(t *testing.T) {
	candidates := []models.Candidate{
		{Source: models.SourceHTML, URL: "https://bit.ly/3xYz", Method: models.MethodBrowserLink, Text: "Unsubscribe"},
	}

	assert.Empty(t, newValidator().Filter(candidates))
}

func TestFilter_PreservesOrderAndKeepsFirstDuplicate(t *testing.T) {
	candidates := []models.Candidate{
		{Source: models.SourceHeader, URL: "https://News.Example/u/", Method: models.MethodHTTPGet},
		{Source: models.SourceHeader, URL: "https://news.example/u", Method: models.MethodHTTPPost},
		{Source: models.SourceHTML, URL: "https://news.example:443/u#top", Method: models.MethodBrowserLink, Text: "Unsubscribe"},
		{Source: models.SourceText, URL: "https://news.example/u", Method: models.MethodBrowserLink},
		{Source: models.SourceText, URL: "https://news.example/u", Method: models.MethodHTTPGet},
	}

	validated := newValidator().Filter(candidates)

	require.Len(t, validated, 3)
	assert.Equal(t, models.MethodHTTPGet, validated[0].Method)
	assert.Equal(t, models.MethodHTTPPost, validated[1].Method)
	assert.Equal(t, models.SourceHTML, validated[2].Source)
	assert.Equal(t, "https://news.example/u|browser-link", validated[2].Key)
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://news.example/u", NormalizeURL("HTTPS://NEWS.example:443/u/#frag"))
	assert.Equal(t, "http://news.example:8080/u?x=1", NormalizeURL("http://news.example:8080/u?x=1"))
	assert.Equal(t, "https://news.example/", NormalizeURL("https://news.example/"))
	assert.Equal(t, "http://news.example/A/b", NormalizeURL("http://news.example:80/A/b/"))
}
