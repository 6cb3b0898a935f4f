package mail

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/common"
)

func TestAccessToken_RefreshesWithRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	source := NewIMAPSource(common.IMAPConfig{
		Host:              "imap.example.org",
		Username:          "me@example.org",
		AuthMethod:        AuthOAuth2,
		OAuthClientID:     "client-1",
		OAuthClientSecret: "secret",
		OAuthRefreshToken: "rt-1",
		OAuthTokenURL:     srv.URL,
	}, arbor.NewLogger())

	assert.True(t, source.IsConfigured())

	token, err := source.accessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-1", token)
}

func TestAccessToken_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	source := NewIMAPSource(common.IMAPConfig{
		Host: "imap.example.org", Username: "me", AuthMethod: AuthOAuth2,
		OAuthClientID: "c", OAuthRefreshToken: "expired", OAuthTokenURL: srv.URL,
	}, arbor.NewLogger())

	_, err := source.accessToken(context.Background())
	assert.Error(t, err)
}

func TestIsConfigured_OAuthNeedsRefreshToken(t *testing.T) {
	source := NewIMAPSource(common.IMAPConfig{
		Host: "imap.example.org", Username: "me", Password: "pw", AuthMethod: AuthOAuth2, OAuthClientID: "c",
	}, arbor.NewLogger())

	assert.False(t, source.IsConfigured())
}
