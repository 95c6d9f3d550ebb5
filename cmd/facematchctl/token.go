package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facematch/internal/admin"
	"github.com/saturnino-fabrica-de-software/facematch/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token <operator>",
	Short: "Issue an operator token for the admin API",
	Long: `Issue a signed operator token for the /v1/admin routes, including the
regeneration progress websocket. With --client the token only grants the face
routes with inline images. Requires ADMIN_TOKEN_SECRET.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ttl := cfg.AdminTokenTTL
		if d := mustGetDuration(cmd, "ttl"); d > 0 {
			ttl = d
		}

		tokens := admin.NewTokenService(cfg.AdminTokenSecret, cfg.AdminTokenIssuer, ttl)
		scope := admin.ScopeAdmin
		if mustGetBool(cmd, "client") {
			scope = admin.ScopeClient
		}
		token, err := tokens.Issue(args[0], scope)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to ADMIN_TOKEN_TTL)")
	tokenCmd.Flags().Bool("client", false, "Issue a client scoped token for the face routes")
}
