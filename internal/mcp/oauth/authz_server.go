package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
)

// ServeAuthorize handles GET and POST /oauth/authorize.
//
// Every check runs before a code is stored. Failures are answered with a 400
// JSON error instead of a redirect, so an unregistered redirect_uri never
// receives anything.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("malformed request"))
		return
	}

	clientID := r.Form.Get("client_id")
	redirectURI := r.Form.Get("redirect_uri")
	responseType := r.Form.Get("response_type")
	state := r.Form.Get("state")
	challenge := r.Form.Get("code_challenge")
	method := r.Form.Get("code_challenge_method")
	scope := r.Form.Get("scope")

	if clientID == "" {
		h.writeError(w, ErrInvalidRequest("client_id is required"))
		return
	}
	client, err := h.registry.GetClient(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			h.audit.LogAuthFailure(clientID, clientIP(r), "unknown client at authorize")
			h.writeError(w, ErrUnknownClientID("client is not registered"))
			return
		}
		h.logger.Error("Failed to load client", "client_id", clientID, "error", err)
		h.writeError(w, ErrServerError("failed to load client"))
		return
	}

	if redirectURI == "" {
		h.writeError(w, ErrInvalidRequest("redirect_uri is required"))
		return
	}
	if !client.HasRedirectURI(redirectURI) {
		h.audit.LogInvalidRedirect(clientID, clientIP(r))
		h.writeError(w, ErrInvalidRequest("redirect_uri is not registered for this client"))
		return
	}

	if responseType != ResponseTypeCode {
		h.writeError(w, ErrUnsupportedResponseType(fmt.Sprintf("response_type must be %q", ResponseTypeCode)))
		return
	}

	if method != "" && method != PKCEMethodS256 {
		h.writeError(w, ErrInvalidRequest("code_challenge_method must be S256"))
		return
	}
	if method != "" && challenge == "" {
		h.writeError(w, ErrInvalidRequest("code_challenge is required with code_challenge_method"))
		return
	}
	if challenge == "" && client.IsPublic() && h.config.requirePKCEForPublic() {
		h.writeError(w, ErrInvalidRequest("public clients must use PKCE"))
		return
	}

	code, err := h.registry.IssueAuthorizationCode(r.Context(), AuthorizationRequest{
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		Scope:               scope,
	})
	if err != nil {
		h.logger.Error("Failed to issue authorization code", "client_id", clientID, "error", err)
		h.writeError(w, ErrServerError("failed to issue authorization code"))
		return
	}

	params := url.Values{"code": {code.Code}}
	if state != "" {
		params.Set("state", state)
	}
	target, err := appendQuery(redirectURI, params)
	if err != nil {
		h.writeError(w, ErrServerError("failed to build redirect"))
		return
	}

	h.audit.LogCodeIssued(clientID, clientIP(r), challenge != "")
	h.setSecurityHeaders(w)
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

// ServeToken handles POST /oauth/token.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("malformed request body"))
		return
	}

	switch grantType := r.PostFormValue("grant_type"); grantType {
	case GrantTypeAuthorizationCode:
		h.handleAuthorizationCodeGrant(w, r)
	case GrantTypeClientCredentials:
		h.handleClientCredentialsGrant(w, r)
	case "":
		h.writeError(w, ErrUnsupportedGrantType("grant_type is required"))
	default:
		h.writeError(w, ErrUnsupportedGrantType(fmt.Sprintf("grant_type %q is not supported", grantType)))
	}
}

func (h *Handler) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	params, oauthErr := parseAuthCodeRequest(r)
	if oauthErr != nil {
		h.writeError(w, oauthErr)
		return
	}

	creds, oauthErr := extractClientCredentials(r)
	if oauthErr != nil {
		h.writeError(w, oauthErr)
		return
	}
	if creds.presented() {
		if _, err := h.registry.AuthenticateClient(r.Context(), creds.ClientID, creds.ClientSecret); err != nil {
			h.rejectClient(w, r, creds, err)
			return
		}
	}

	result, err := h.registry.ConsumeAuthorizationCode(r.Context(), params.Code, creds.ClientID, params.RedirectURI, params.CodeVerifier)
	if err != nil {
		h.logger.Error("Failed to redeem authorization code", "code_hash", hashForLogging(params.Code), "error", err)
		h.writeError(w, ErrServerError("failed to redeem authorization code"))
		return
	}
	if !result.Valid {
		h.audit.LogGrantRejected(creds.ClientID, clientIP(r), result.Reason)
		h.writeError(w, ErrInvalidGrant(grantFailureDescription(result.Reason)))
		return
	}

	token, err := h.registry.IssueAccessToken(r.Context(), result.Code.ClientID, result.Code.Scope)
	if err != nil {
		h.logger.Error("Failed to issue access token", "client_id", result.Code.ClientID, "error", err)
		h.writeError(w, ErrServerError("failed to issue access token"))
		return
	}

	h.audit.LogTokenIssued(token.ClientID, clientIP(r), GrantTypeAuthorizationCode, token.Scope)
	h.writeToken(w, token)
}

func (h *Handler) handleClientCredentialsGrant(w http.ResponseWriter, r *http.Request) {
	creds, oauthErr := extractClientCredentials(r)
	if oauthErr != nil {
		h.writeError(w, oauthErr)
		return
	}

	client, err := h.registry.AuthenticateClient(r.Context(), creds.ClientID, creds.ClientSecret)
	if err != nil {
		h.rejectClient(w, r, creds, err)
		return
	}
	if !slices.Contains(client.GrantTypes, GrantTypeClientCredentials) {
		h.audit.LogAuthFailure(client.ClientID, clientIP(r), "client_credentials grant not registered")
		h.writeError(w, ErrUnauthorizedClient("client is not registered for the client_credentials grant"))
		return
	}

	scope := r.PostFormValue("scope")
	if scope == "" {
		scope = client.Scope
	}

	token, err := h.registry.IssueAccessToken(r.Context(), client.ClientID, scope)
	if err != nil {
		h.logger.Error("Failed to issue access token", "client_id", client.ClientID, "error", err)
		h.writeError(w, ErrServerError("failed to issue access token"))
		return
	}

	h.audit.LogTokenIssued(client.ClientID, clientIP(r), GrantTypeClientCredentials, scope)
	h.writeToken(w, token)
}

// rejectClient answers a failed client authentication with 401 invalid_client.
func (h *Handler) rejectClient(w http.ResponseWriter, r *http.Request, creds clientCredentials, err error) {
	if !errors.Is(err, ErrInvalidClient) {
		h.logger.Error("Client authentication failed", "client_id", creds.ClientID, "error", err)
		h.writeError(w, ErrServerError("failed to authenticate client"))
		return
	}
	h.audit.LogAuthFailure(creds.ClientID, clientIP(r), "client authentication failed")
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q`, h.config.issuer()))
	h.writeError(w, ErrInvalidClientAuth("client authentication failed"))
}

func (h *Handler) writeToken(w http.ResponseWriter, token *AccessToken) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	h.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token.Token,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn(h.registry.now()),
		Scope:       token.Scope,
	})
}
