package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/persona-engine/internal/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the HTTP API",
		Long: `Issue a signed operator token for the HTTP API using JWT_SECRET.

Examples:
  personactl token
  personactl token --subject deploy-bot --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			tok, err := auth.SignJWT(tokenSubject, cfg.JWTSecret, tokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&tokenSubject, "subject", "operator", "Token subject")
	cmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
