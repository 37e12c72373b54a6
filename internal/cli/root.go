// Package cli implementa progressctl, la herramienta de operador sobre el almacenamiento de progreso.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"career-compass/internal/config"
	"career-compass/internal/db"
	"career-compass/internal/domain"
	"career-compass/internal/repository"
)

var (
	dbPath    string
	accountID string
	verbose   bool
)

// RootCmd es el comando raiz.
var RootCmd = &cobra.Command{
	Use:          "progressctl",
	Short:        "Inspect and maintain career-compass progress storage",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Local SQLite path (default: $LOCAL_DB_PATH)")
	RootCmd.PersistentFlags().StringVarP(&accountID, "account", "a", "", "Act on this account instead of the device")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log service activity to stderr")
}

// env agrupa lo que abre cada comando; close libera todo.
type env struct {
	cfg     *config.StorageConfig
	logger  *zap.Logger
	local   *repository.SQLiteStore
	remote  repository.Backend
	storage *repository.StorageRouter
	token   string
	close   func()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.LoadStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.LocalDBPath = dbPath
	}

	logger := zap.NewNop()
	if verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}

	local, err := repository.NewSQLiteStore(cfg.LocalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	closers := []func(){func() { local.Close() }}
	e := &env{cfg: cfg, logger: logger, local: local}
	e.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		_ = logger.Sync()
	}

	if cfg.RemoteEnabled() {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("db connect: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := db.EnsureSchema(ctx, pool); err != nil {
			e.close()
			return nil, fmt.Errorf("db schema: %w", err)
		}
		e.remote = repository.NewPgStore(pool)
	}

	if e.token, err = local.DeviceToken(ctx); err != nil {
		e.close()
		return nil, fmt.Errorf("device token: %w", err)
	}
	e.storage = repository.NewStorageRouter(local, e.remote, e.token)
	return e, nil
}

// identity es la cuenta de --account, o la identidad anonima del dispositivo.
func (e *env) identity() domain.Identity {
	if accountID != "" {
		return domain.AuthenticatedIdentity(accountID)
	}
	return e.storage.DeviceIdentity()
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
