package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"career-compass/internal/service"
)

func init() {
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Delete all progress, insights and snapshots of the device or --account",
		RunE:  runErase,
	}
	cmd.Flags().Bool("yes", false, "Confirm the deletion")
	RootCmd.AddCommand(cmd)
}

func runErase(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return errors.New("refusing to erase without --yes")
	}
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	counts, err := service.NewAccountService(e.storage, nil, e.logger).Erase(cmd.Context(), e.identity())
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{"erased": counts, "total": counts.Total()})
}
