package oauth

import (
	"net/http"
	"net/url"
)

// clientCredentials are the id/secret a client presented at the token endpoint.
type clientCredentials struct {
	ClientID     string
	ClientSecret string
	// Basic is true when the credentials came from the Authorization header.
	Basic bool
}

// presented reports whether the client tried to authenticate at all.
func (c clientCredentials) presented() bool {
	return c.ClientSecret != ""
}

// extractClientCredentials reads client_secret_basic or client_secret_post
// credentials. Basic values are form-encoded per RFC 6749 section 2.3.1.
// A body client_id without a secret identifies a public client.
func extractClientCredentials(r *http.Request) (clientCredentials, *OAuthError) {
	if id, secret, ok := r.BasicAuth(); ok {
		decodedID, err := url.QueryUnescape(id)
		if err != nil {
			return clientCredentials{}, ErrInvalidClientAuth("malformed basic credentials")
		}
		decodedSecret, err := url.QueryUnescape(secret)
		if err != nil {
			return clientCredentials{}, ErrInvalidClientAuth("malformed basic credentials")
		}
		if bodyID := r.PostFormValue("client_id"); bodyID != "" && bodyID != decodedID {
			return clientCredentials{}, ErrInvalidRequest("client_id in body does not match basic credentials")
		}
		return clientCredentials{ClientID: decodedID, ClientSecret: decodedSecret, Basic: true}, nil
	}

	return clientCredentials{
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
	}, nil
}

// authCodeRequest holds parsed authorization code grant request parameters
type authCodeRequest struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// parseAuthCodeRequest extracts and validates authorization code grant parameters
func parseAuthCodeRequest(r *http.Request) (*authCodeRequest, *OAuthError) {
	code := r.PostFormValue("code")
	if code == "" {
		return nil, ErrInvalidRequest("code is required")
	}
	return &authCodeRequest{
		Code:         code,
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
	}, nil
}

// grantFailureDescription maps a consume reason to the error_description
// returned with invalid_grant.
func grantFailureDescription(reason string) string {
	switch reason {
	case ReasonNotFound:
		return "Invalid authorization code"
	case ReasonExpired:
		return "Authorization code expired"
	case ReasonConsumed:
		return "Authorization code already used"
	case ReasonClientMismatch:
		return "Authorization code was issued to another client"
	case ReasonRedirectMismatch:
		return "redirect_uri does not match the authorization request"
	case ReasonPKCEMissingVerifier:
		return "code_verifier is required"
	case ReasonPKCEMismatch:
		return "code_verifier does not match code_challenge"
	default:
		return "Invalid authorization code"
	}
}

// appendQuery adds params to target, keeping any query it already has.
func appendQuery(target string, params url.Values) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
