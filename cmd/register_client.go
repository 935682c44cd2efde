package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/teemow/rsvp/internal/config"
	"github.com/teemow/rsvp/internal/mcp/oauth"
)

type registerClientFlags struct {
	envFile      string
	name         string
	redirectURIs []string
	public       bool
	scope        string
}

func newRegisterClientCmd() *cobra.Command {
	var flags registerClientFlags

	cmd := &cobra.Command{
		Use:   "register-client",
		Short: "Register an OAuth client in the Redis store",
		Long: `Register an OAuth client ahead of time, for MCP clients that do not
support dynamic client registration. The client is written to the Redis store
named by REDIS_ADDR, so a running server picks it up immediately.

The client secret is printed once and cannot be recovered.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.envFile)
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return fmt.Errorf("REDIS_ADDR is required: clients registered in memory would be lost")
			}

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()

			store := oauth.NewRedisStore(rdb, cfg.Redis.KeyPrefix+"oauth:")
			if err := store.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
			}
			return registerClient(cmd.Context(), oauth.NewRegistry(store), flags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&flags.envFile, "env-file", config.DefaultEnvFile, "Optional dotenv file loaded before the environment is parsed")
	cmd.Flags().StringVar(&flags.name, "name", "", "Client name shown on the consent screen")
	cmd.Flags().StringSliceVar(&flags.redirectURIs, "redirect-uri", nil, "Allowed redirect URI (repeatable)")
	cmd.Flags().BoolVar(&flags.public, "public", false, "Register a public client (PKCE, no secret)")
	cmd.Flags().StringVar(&flags.scope, "scope", "", "Space-separated scopes the client may request")
	_ = cmd.MarkFlagRequired("redirect-uri")

	return cmd
}

// registeredClientOutput is printed after registration.
type registeredClientOutput struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	ClientName   string   `json:"client_name,omitempty"`
	RedirectURIs []string `json:"redirect_uris"`
	GrantTypes   []string `json:"grant_types"`
	AuthMethod   string   `json:"token_endpoint_auth_method"`
}

func registerClient(ctx context.Context, registry *oauth.Registry, flags registerClientFlags, out io.Writer) error {
	metadata := oauth.ClientMetadata{
		RedirectURIs: flags.redirectURIs,
		ClientName:   flags.name,
		Scope:        flags.scope,
	}
	if flags.public {
		metadata.TokenEndpointAuthMethod = oauth.AuthMethodNone
	}

	client, secret, err := registry.RegisterClient(ctx, metadata)
	if err != nil {
		return fmt.Errorf("failed to register client: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(registeredClientOutput{
		ClientID:     client.ClientID,
		ClientSecret: secret,
		ClientName:   client.ClientName,
		RedirectURIs: client.RedirectURIs,
		GrantTypes:   client.GrantTypes,
		AuthMethod:   client.TokenEndpointAuthMethod,
	})
}
