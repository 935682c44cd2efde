package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teemow/rsvp/internal/mcp/oauth"
)

// clientsFile is the layout of RSVP_CLIENTS_FILE:
//
//	clients:
//	  - client_id: chatgpt
//	    client_secret: s3cret
//	    redirect_uris: [https://chatgpt.com/connector_platform_oauth_redirect]
type clientsFile struct {
	Clients []oauth.SeedClient `yaml:"clients"`
}

// LoadClients reads the pre-registered OAuth clients. An empty path yields
// no clients.
func LoadClients(path string) ([]oauth.SeedClient, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clients file: %w", err)
	}

	var file clientsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse clients file %s: %w", path, err)
	}
	for i, c := range file.Clients {
		if c.ClientID == "" {
			return nil, fmt.Errorf("clients file %s: entry %d has no client_id", path, i)
		}
	}
	return file.Clients, nil
}
