package main

import (
	"fmt"
	"time"

	"github.com/makkenzo/prospect-enrichment-api/internal/service"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the enrichment API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		auth := service.NewAuthService(&cfg.Auth, appLogger)
		token, err := auth.IssueToken(tokenSubject, tokenRole, tokenTTL)
		if err != nil {
			return eris.Wrap(err, "issue token")
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject, e.g. a user email (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", service.RoleAgent, "role: agent or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}
