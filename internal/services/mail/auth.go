package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
)

// Auth methods for [imap] auth_method
const (
	AuthPassword = "password"
	AuthOAuth2   = "oauth2"
)

const defaultTokenURL = "https://oauth2.googleapis.com/token"

func (s *IMAPSource) usesOAuth() bool {
	return s.config.AuthMethod == AuthOAuth2
}

// authenticate logs in with a password or, for oauth2, exchanges the refresh
// token for an access token and authenticates with OAUTHBEARER
func (s *IMAPSource) authenticate(ctx context.Context, c *client.Client) error {
	if !s.usesOAuth() {
		if err := c.Login(s.config.Username, s.config.Password); err != nil {
			return fmt.Errorf("IMAP login failed: %w", err)
		}
		return nil
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}

	auth := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: s.config.Username,
		Token:    token,
		Host:     s.config.Host,
		Port:     s.config.Port,
	})
	if err := c.Authenticate(auth); err != nil {
		return fmt.Errorf("IMAP OAUTHBEARER authentication failed: %w", err)
	}
	return nil
}

// accessToken refreshes an OAuth2 access token
func (s *IMAPSource) accessToken(ctx context.Context) (string, error) {
	tokenURL := s.config.OAuthTokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	conf := &oauth2.Config{
		ClientID:     s.config.OAuthClientID,
		ClientSecret: s.config.OAuthClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: s.config.OAuthRefreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("failed to refresh OAuth2 token: %w", err)
	}

	s.logger.Debug().Str("token_url", tokenURL).Str("expiry", token.Expiry.Format(time.RFC3339)).Msg("Refreshed OAuth2 access token")
	return token.AccessToken, nil
}
