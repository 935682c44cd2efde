package google

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// OAuthSettings are the Google OAuth client settings for the consent flow.
type OAuthSettings struct {
	ClientID     string
	ClientSecret string

	// RedirectURL must point at the consent callback route of this server.
	RedirectURL string

	// Scopes defaults to DefaultOAuthScopes.
	Scopes []string

	// Endpoint overrides the Google endpoints. Tests point it at a fake.
	Endpoint *oauth2.Endpoint
}

// Validate checks that the settings can drive a consent flow.
func (s OAuthSettings) Validate() error {
	if s.ClientID == "" {
		return fmt.Errorf("google client id is required")
	}
	if s.ClientSecret == "" {
		return fmt.Errorf("google client secret is required")
	}
	if s.RedirectURL == "" {
		return fmt.Errorf("google redirect url is required")
	}
	return nil
}

// NewOAuthConfig returns the oauth2 configuration for the consent flow.
func NewOAuthConfig(s OAuthSettings) *oauth2.Config {
	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}
	endpoint := googleoauth.Endpoint
	if s.Endpoint != nil {
		endpoint = *s.Endpoint
	}
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  s.RedirectURL,
		Scopes:       scopes,
	}
}

// NewHTTPClient returns an HTTP client authorized by ts.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	client := oauth2.NewClient(ctx, ts)

	if transport, ok := client.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: false,
		}
	}
	return client
}
