package oauth

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

var customSchemePattern = regexp.MustCompile(`^[a-z][a-z0-9+.-]*$`)

// validateRedirectURI checks a redirect URI offered at registration.
//
// Accepted: https URIs, http URIs on loopback hosts, and private-use schemes
// (RFC 8252) such as com.example.app:/callback. Rejected: relative URIs,
// fragments, and the schemes in DangerousSchemes.
func validateRedirectURI(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: empty redirect uri", ErrInvalidClientMetadata)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed redirect uri %q", ErrInvalidClientMetadata, raw)
	}
	if !u.IsAbs() {
		return fmt.Errorf("%w: redirect uri %q must be absolute", ErrInvalidClientMetadata, raw)
	}
	if u.Fragment != "" || strings.Contains(raw, "#") {
		return fmt.Errorf("%w: redirect uri %q must not contain a fragment", ErrInvalidClientMetadata, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if slices.Contains(DangerousSchemes, scheme) {
		return fmt.Errorf("%w: redirect uri scheme %q is not allowed", ErrInvalidClientMetadata, scheme)
	}

	switch scheme {
	case "https":
		if u.Host == "" {
			return fmt.Errorf("%w: redirect uri %q has no host", ErrInvalidClientMetadata, raw)
		}
	case "http":
		if !isLoopbackHost(u.Hostname()) {
			return fmt.Errorf("%w: http redirect uri %q is only allowed for loopback hosts", ErrInvalidClientMetadata, raw)
		}
	default:
		if !customSchemePattern.MatchString(scheme) {
			return fmt.Errorf("%w: invalid redirect uri scheme %q", ErrInvalidClientMetadata, scheme)
		}
		if u.Host == "" && u.Path == "" && u.Opaque == "" {
			return fmt.Errorf("%w: redirect uri %q has no target", ErrInvalidClientMetadata, raw)
		}
	}
	return nil
}

func isLoopbackHost(host string) bool {
	return slices.Contains(LoopbackAddresses, strings.ToLower(host))
}
