package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/auth"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/config"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
)

type tokenOutput struct {
	Token     string     `json:"token"`
	User      hooks.User `json:"user"`
	ExpiresAt time.Time  `json:"expires_at"`
}

func newTokenCmd() *cobra.Command {
	var (
		userID   string
		username string
		email    string
		roles    []string
		ttl      time.Duration
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token for the plugin administration API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			if username == "" {
				username = userID
			}

			svc := auth.NewJWTService(cfg.Auth.JWTSecret, ttl)
			token, err := svc.GenerateToken(hooks.User{ID: userID, Username: username, Email: email, Roles: roles})
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			claims, err := svc.ValidateToken(token)
			if err != nil {
				return fmt.Errorf("verify token: %w", err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), tokenOutput{
					Token:     token,
					User:      claims.User(),
					ExpiresAt: claims.ExpiresAt.Time,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "admin", "Subject of the token")
	cmd.Flags().StringVar(&username, "username", "", "Username claim (defaults to --user)")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleAdmin}, "Roles granted by the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the token with its decoded claims as JSON")
	return cmd
}
