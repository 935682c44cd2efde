package oauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// ServeRegister handles POST /oauth/register (RFC 7591). Each call creates a
// new client identity, even for identical metadata.
func (h *Handler) ServeRegister(w http.ResponseWriter, r *http.Request) {
	var metadata ClientMetadata
	body := http.MaxBytesReader(w, r.Body, maxRegistrationBody)
	if err := json.NewDecoder(body).Decode(&metadata); err != nil {
		h.writeError(w, ErrInvalidClientMetadataResp("request body must be a JSON client metadata document"))
		return
	}

	client, secret, err := h.registry.RegisterClient(r.Context(), metadata)
	if err != nil {
		if errors.Is(err, ErrInvalidClientMetadata) {
			desc := strings.TrimPrefix(err.Error(), ErrInvalidClientMetadata.Error()+": ")
			h.writeError(w, ErrInvalidClientMetadataResp(desc))
			return
		}
		h.logger.Error("Client registration failed", "error", err)
		h.writeError(w, ErrServerError("failed to register client"))
		return
	}

	h.audit.LogClientRegistered(client.ClientID, client.TokenEndpointAuthMethod, clientIP(r))

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	h.writeJSON(w, http.StatusCreated, ClientRegistrationResponse{
		ClientID:                client.ClientID,
		ClientSecret:            secret,
		ClientIDIssuedAt:        client.CreatedAt.Unix(),
		ClientSecretExpiresAt:   0,
		RedirectURIs:            client.RedirectURIs,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		ClientName:              client.ClientName,
		Scope:                   client.Scope,
	})
}
