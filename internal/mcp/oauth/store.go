package oauth

import "context"

// Store persists clients, authorization codes and access tokens.
//
// Implementations must make ConsumeAuthorizationCode an atomic check-and-mark:
// of any number of concurrent calls for one code, exactly one succeeds.
type Store interface {
	SaveClient(ctx context.Context, client *RegisteredClient) error
	// GetClient returns ErrClientNotFound for unknown ids.
	GetClient(ctx context.Context, clientID string) (*RegisteredClient, error)

	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error
	// ConsumeAuthorizationCode marks the code used and returns it as stored.
	// It returns ErrCodeNotFound for unknown codes and ErrCodeConsumed when
	// the code was already redeemed. Expiry is left to the caller.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	SaveAccessToken(ctx context.Context, token *AccessToken) error
	// GetAccessToken returns ErrTokenNotFound for unknown tokens.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)
	// DeleteAccessToken removes a token. Deleting an unknown token is not an error.
	DeleteAccessToken(ctx context.Context, token string) error
}
