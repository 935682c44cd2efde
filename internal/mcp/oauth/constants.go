package oauth

import "time"

// Lifetimes
const (
	// DefaultAuthorizationCodeTTL is how long authorization codes are valid (10 minutes)
	DefaultAuthorizationCodeTTL = 10 * time.Minute

	// DefaultAccessTokenTTL is the default access token expiry (1 hour)
	DefaultAccessTokenTTL = 1 * time.Hour

	// DefaultCleanupInterval is how often MemoryStore sweeps expired codes and tokens
	DefaultCleanupInterval = 1 * time.Minute
)

// Random material sizes in bytes, before base64url encoding.
const (
	AuthorizationCodeBytes = 32
	AccessTokenBytes       = 48
	ClientSecretBytes      = 32
)

// PKCE verifier bounds (RFC 7636 section 4.1)
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
)

// Grant, response and auth method identifiers.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"

	ResponseTypeCode = "code"

	PKCEMethodS256 = "S256"

	AuthMethodClientSecretBasic = "client_secret_basic"
	AuthMethodClientSecretPost  = "client_secret_post"
	AuthMethodNone              = "none"

	TokenTypeBearer = "Bearer"
)

// Endpoint paths served by Handler.
const (
	PathAuthorize                 = "/oauth/authorize"
	PathToken                     = "/oauth/token"
	PathRegister                  = "/oauth/register"
	PathAuthorizationServerMeta   = "/.well-known/oauth-authorization-server"
	PathOpenIDConfiguration       = "/.well-known/openid-configuration"
	PathProtectedResourceMetadata = "/.well-known/oauth-protected-resource"
)

// maxRegistrationBody caps the registration request body.
const maxRegistrationBody = 64 << 10

var (
	// DangerousSchemes are never accepted as redirect URI schemes.
	DangerousSchemes = []string{"javascript", "data", "file", "vbscript", "about"}

	// LoopbackAddresses may use plain http redirect URIs.
	LoopbackAddresses = []string{"localhost", "127.0.0.1", "::1"}

	SupportedGrantTypes           = []string{GrantTypeAuthorizationCode, GrantTypeClientCredentials}
	SupportedResponseTypes        = []string{ResponseTypeCode}
	SupportedCodeChallengeMethods = []string{PKCEMethodS256}
	SupportedTokenAuthMethods     = []string{AuthMethodClientSecretBasic, AuthMethodClientSecretPost, AuthMethodNone}
)
