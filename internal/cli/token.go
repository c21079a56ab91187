package cli

import (
	"fmt"
	"time"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/identity"

	"github.com/spf13/cobra"
)

// NewTokenCmd mints an account token for local testing.
func NewTokenCmd(cfg *config.Config) *cobra.Command {
	var (
		subject string
		name    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development account token",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := identity.NewVerifier(cfg.Auth.Secret).Issue(subject, name, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "account id (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for none")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
