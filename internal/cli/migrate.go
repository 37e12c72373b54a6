package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"career-compass/internal/service"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Copy this device's anonymous data to --account",
		RunE:  runMigrate,
	})
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if accountID == "" {
		return errors.New("--account is required")
	}
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	svc := service.NewMigrationService(e.local, e.remote, e.logger)
	res, err := svc.Run(cmd.Context(), accountID)
	if printErr := printJSON(cmd, map[string]any{"result": res, "status": svc.Status()}); printErr != nil {
		return printErr
	}
	return err
}
