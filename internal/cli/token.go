package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"career-compass/internal/config"
	"career-compass/internal/service"
)

func init() {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for --account, signed with AUTH_JWT_SECRET",
		RunE:  runToken,
	}
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	RootCmd.AddCommand(cmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if accountID == "" {
		return errors.New("--account is required")
	}
	cfg, err := config.LoadStorageConfig()
	if err != nil {
		return err
	}
	verifier := service.NewTokenVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer)
	if !verifier.Enabled() {
		return errors.New("AUTH_JWT_SECRET is not configured")
	}
	token, err := verifier.Issue(accountID, ttl)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{"account_id": accountID, "token": token, "expires_in": ttl.String()})
}
