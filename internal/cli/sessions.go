package cli

import (
	"github.com/spf13/cobra"

	"career-compass/internal/modules"
	"career-compass/internal/service"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "sessions <module-id>",
		Short: "List the sessions of a module, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessions,
	})
	RootCmd.AddCommand(&cobra.Command{
		Use:   "modules",
		Short: "List the module catalog",
		RunE:  runModules,
	})
}

func runSessions(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	catalog, err := modules.Load(e.cfg.ModulesFile)
	if err != nil {
		return err
	}
	mgr := service.NewSessionManager(e.storage, catalog, e.logger)
	list, err := mgr.ListSessions(cmd.Context(), e.identity(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd, list)
}

func runModules(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	catalog, err := modules.Load(e.cfg.ModulesFile)
	if err != nil {
		return err
	}
	return printJSON(cmd, catalog.All())
}
