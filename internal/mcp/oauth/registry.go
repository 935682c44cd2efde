package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Registry implements the authorization server's bookkeeping on top of a Store:
// client registration, code issuance and redemption, token issuance and
// validation.
type Registry struct {
	store    Store
	codeTTL  time.Duration
	tokenTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithCodeTTL sets the authorization code lifetime.
func WithCodeTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.codeTTL = ttl
		}
	}
}

// WithTokenTTL sets the access token lifetime.
func WithTokenTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.tokenTTL = ttl
		}
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a Registry over store.
func NewRegistry(store Store, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:    store,
		codeTTL:  DefaultAuthorizationCodeTTL,
		tokenTTL: DefaultAccessTokenTTL,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the backing store.
func (r *Registry) Store() Store {
	return r.store
}

// RegisterClient validates metadata and creates a new client. The returned
// secret is the only copy of the plaintext and is empty for public clients.
// Validation failures wrap ErrInvalidClientMetadata.
func (r *Registry) RegisterClient(ctx context.Context, metadata ClientMetadata) (*RegisteredClient, string, error) {
	client, err := normalizeMetadata(metadata)
	if err != nil {
		return nil, "", err
	}

	client.ClientID = uuid.NewString()
	client.CreatedAt = r.now().UTC()

	var secret string
	if client.TokenEndpointAuthMethod != AuthMethodNone {
		secret, err = generateSecureToken(ClientSecretBytes)
		if err != nil {
			return nil, "", err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", fmt.Errorf("hash client secret: %w", err)
		}
		client.ClientSecretHash = string(hash)
	}

	if err := r.store.SaveClient(ctx, client); err != nil {
		return nil, "", fmt.Errorf("save client: %w", err)
	}

	r.logger.Info("Registered OAuth client",
		"client_id", client.ClientID,
		"client_name", client.ClientName,
		"auth_method", client.TokenEndpointAuthMethod,
		"redirect_uri_count", len(client.RedirectURIs))

	return client, secret, nil
}

func normalizeMetadata(metadata ClientMetadata) (*RegisteredClient, error) {
	if len(metadata.RedirectURIs) == 0 {
		return nil, fmt.Errorf("%w: at least one redirect uri is required", ErrInvalidClientMetadata)
	}
	for _, uri := range metadata.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, err
		}
	}

	authMethod := metadata.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = AuthMethodClientSecretBasic
	}
	if !slices.Contains(SupportedTokenAuthMethods, authMethod) {
		return nil, fmt.Errorf("%w: unsupported token_endpoint_auth_method %q", ErrInvalidClientMetadata, authMethod)
	}

	grantTypes := metadata.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{GrantTypeAuthorizationCode}
	}
	for _, gt := range grantTypes {
		if !slices.Contains(SupportedGrantTypes, gt) {
			return nil, fmt.Errorf("%w: unsupported grant type %q", ErrInvalidClientMetadata, gt)
		}
	}
	if authMethod == AuthMethodNone && slices.Contains(grantTypes, GrantTypeClientCredentials) {
		return nil, fmt.Errorf("%w: public clients cannot use the client_credentials grant", ErrInvalidClientMetadata)
	}

	responseTypes := metadata.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{ResponseTypeCode}
	}
	for _, rt := range responseTypes {
		if rt != ResponseTypeCode {
			return nil, fmt.Errorf("%w: unsupported response type %q", ErrInvalidClientMetadata, rt)
		}
	}

	return &RegisteredClient{
		RedirectURIs:            slices.Clone(metadata.RedirectURIs),
		ClientName:              metadata.ClientName,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		TokenEndpointAuthMethod: authMethod,
		Scope:                   metadata.Scope,
	}, nil
}

// SeedClient registers a client with a fixed id and secret from configuration.
// Seeded clients may use both grants. An empty secret makes a public client.
func (r *Registry) SeedClient(ctx context.Context, seed SeedClient) error {
	if seed.ClientID == "" {
		return fmt.Errorf("%w: seeded client needs a client_id", ErrInvalidClientMetadata)
	}
	for _, uri := range seed.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return err
		}
	}

	client := &RegisteredClient{
		ClientID:                seed.ClientID,
		RedirectURIs:            slices.Clone(seed.RedirectURIs),
		ClientName:              seed.ClientName,
		GrantTypes:              []string{GrantTypeAuthorizationCode},
		ResponseTypes:           []string{ResponseTypeCode},
		TokenEndpointAuthMethod: AuthMethodNone,
		Scope:                   seed.Scope,
		CreatedAt:               r.now().UTC(),
	}
	if seed.ClientSecret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.ClientSecret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash client secret: %w", err)
		}
		client.ClientSecretHash = string(hash)
		client.TokenEndpointAuthMethod = AuthMethodClientSecretBasic
		client.GrantTypes = append(client.GrantTypes, GrantTypeClientCredentials)
	}

	if err := r.store.SaveClient(ctx, client); err != nil {
		return fmt.Errorf("save seeded client: %w", err)
	}
	r.logger.Info("Seeded OAuth client", "client_id", client.ClientID, "public", client.IsPublic())
	return nil
}

// GetClient returns a registered client or ErrClientNotFound.
func (r *Registry) GetClient(ctx context.Context, clientID string) (*RegisteredClient, error) {
	return r.store.GetClient(ctx, clientID)
}

// IssueAuthorizationCode stores and returns a new code for req. It fails with
// ErrUnknownClient when the client is not registered. Callers validate the
// redirect URI and PKCE parameters first.
func (r *Registry) IssueAuthorizationCode(ctx context.Context, req AuthorizationRequest) (*AuthorizationCode, error) {
	if _, err := r.store.GetClient(ctx, req.ClientID); err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, ErrUnknownClient
		}
		return nil, err
	}

	value, err := generateSecureToken(AuthorizationCodeBytes)
	if err != nil {
		return nil, err
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = PKCEMethodS256
	}

	now := r.now()
	code := &AuthorizationCode{
		Code:                value,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		Scope:               req.Scope,
		IssuedAt:            now,
		ExpiresAt:           now.Add(r.codeTTL),
	}
	if err := r.store.SaveAuthorizationCode(ctx, code); err != nil {
		return nil, fmt.Errorf("save authorization code: %w", err)
	}
	return code, nil
}

// ConsumeAuthorizationCode redeems code. The code is spent by this call
// whatever the outcome of the checks that follow. An empty clientID means
// the client the code was issued to. The error is non-nil only for store
// failures.
func (r *Registry) ConsumeAuthorizationCode(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (ConsumeResult, error) {
	stored, err := r.store.ConsumeAuthorizationCode(ctx, code)
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return ConsumeResult{Reason: ReasonNotFound}, nil
	case errors.Is(err, ErrCodeConsumed):
		r.logger.Warn("Authorization code replay", "code_hash", hashForLogging(code))
		return ConsumeResult{Reason: ReasonConsumed}, nil
	case err != nil:
		return ConsumeResult{}, err
	}

	if stored.IsExpired(r.now()) {
		return ConsumeResult{Reason: ReasonExpired}, nil
	}
	if clientID != "" && clientID != stored.ClientID {
		return ConsumeResult{Reason: ReasonClientMismatch}, nil
	}
	if redirectURI != stored.RedirectURI {
		return ConsumeResult{Reason: ReasonRedirectMismatch}, nil
	}
	if stored.CodeChallenge != "" {
		if codeVerifier == "" {
			return ConsumeResult{Reason: ReasonPKCEMissingVerifier}, nil
		}
		if !ValidateCodeChallenge(codeVerifier, stored.CodeChallenge, stored.CodeChallengeMethod) {
			return ConsumeResult{Reason: ReasonPKCEMismatch}, nil
		}
	}

	stored.Consumed = true
	return ConsumeResult{Valid: true, Code: stored}, nil
}

// IssueAccessToken creates a token for clientID, which may be empty for an
// anonymous client.
func (r *Registry) IssueAccessToken(ctx context.Context, clientID, scope string) (*AccessToken, error) {
	value, err := generateSecureToken(AccessTokenBytes)
	if err != nil {
		return nil, err
	}

	now := r.now()
	token := &AccessToken{
		Token:     value,
		ClientID:  clientID,
		Scope:     scope,
		TokenType: TokenTypeBearer,
		IssuedAt:  now,
		ExpiresAt: now.Add(r.tokenTTL),
	}
	if err := r.store.SaveAccessToken(ctx, token); err != nil {
		return nil, fmt.Errorf("save access token: %w", err)
	}
	return token, nil
}

// LookupAccessToken returns the live token record, ErrTokenNotFound or ErrTokenExpired.
func (r *Registry) LookupAccessToken(ctx context.Context, token string) (*AccessToken, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}
	stored, err := r.store.GetAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if stored.IsExpired(r.now()) {
		if err := r.store.DeleteAccessToken(ctx, token); err != nil {
			r.logger.Debug("Failed to drop expired access token", "error", err)
		}
		return nil, ErrTokenExpired
	}
	return stored, nil
}

// ValidateAccessToken reports whether token exists and has not expired.
func (r *Registry) ValidateAccessToken(ctx context.Context, token string) bool {
	_, err := r.LookupAccessToken(ctx, token)
	return err == nil
}

// AuthenticateClient checks a confidential client's secret. Unknown clients,
// public clients and wrong secrets all yield ErrInvalidClient.
func (r *Registry) AuthenticateClient(ctx context.Context, clientID, secret string) (*RegisteredClient, error) {
	if clientID == "" || secret == "" {
		return nil, ErrInvalidClient
	}
	client, err := r.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	if client.ClientSecretHash == "" {
		return nil, ErrInvalidClient
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(secret)); err != nil {
		return nil, ErrInvalidClient
	}
	return client, nil
}
