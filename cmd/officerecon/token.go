package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rasmus-Riis/OfficeRecon/pkg/auth"
)

var tokenOpts struct {
	subject string
	name    string
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		authConfig, err := auth.NewConfig()
		if err != nil {
			return fmt.Errorf("failed to initialize auth config: %w", err)
		}
		if !authConfig.Enabled() {
			return errors.New("AUTH_TYPE must be jwt to issue tokens")
		}
		tokens, err := auth.IssueToken(authConfig, tokenOpts.subject, tokenOpts.name)
		if err != nil {
			return err
		}
		logger.WithField("subject", tokenOpts.subject).Info("Issued API token")
		fmt.Fprintln(cmd.OutOrStdout(), tokens.AccessToken)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOpts.subject, "subject", "", "token subject, usually the analyst name")
	tokenCmd.Flags().StringVar(&tokenOpts.name, "name", "", "display name stored in the token")
	tokenCmd.MarkFlagRequired("subject")
}
