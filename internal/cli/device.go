package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "device",
		Short: "Show the device token and migration marker",
		RunE:  runDevice,
	})
}

func runDevice(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	state, err := e.local.MigrationState(ctx)
	if err != nil {
		return err
	}
	account, err := e.local.MigratedAccount(ctx)
	if err != nil {
		return err
	}
	hasData, err := e.local.HasData(ctx, e.token)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"device_token":     e.token,
		"migration_state":  state,
		"migrated_account": account,
		"has_local_data":   hasData,
		"remote_enabled":   e.remote != nil,
	})
}
