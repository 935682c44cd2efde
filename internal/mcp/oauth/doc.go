// Package oauth implements the OAuth 2.1 authorization server that guards the
// MCP endpoint.
//
// It provides dynamic client registration (RFC 7591), the authorization code
// grant with PKCE (S256 only), the client credentials grant, discovery
// metadata (RFC 8414, OpenID configuration, RFC 9728) and a bearer token check
// for protected routes.
//
// State lives behind the Store interface. MemoryStore keeps everything in
// process; RedisStore keeps it in Redis so restarts do not invalidate issued
// tokens. Either way, an authorization code can be redeemed at most once.
//
// Issued access tokens are opaque random strings. They are never refreshed;
// clients obtain a new token by running the grant again.
package oauth
