package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papemosque/community-api/internal/api"
)

var (
	tokenSubject string
	tokenEmail   string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin bearer token signed with ADMIN_JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}

		token, err := api.IssueAdminToken(cfg.AdminJWTSecret, tokenSubject, tokenEmail, tokenTTL)
		if err != nil {
			return fmt.Errorf("signing token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "admin email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")
}
