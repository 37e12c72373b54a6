package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Show the current and previous value snapshots",
		RunE:  runSnapshots,
	}
	cmd.Flags().Bool("history", false, "Include the full snapshot history")
	RootCmd.AddCommand(cmd)
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	history, _ := cmd.Flags().GetBool("history")

	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	hist, err := e.storage.ListSnapshots(cmd.Context(), e.identity(), history)
	if err != nil {
		return err
	}
	return printJSON(cmd, hist)
}
