// Command prbf trains, evaluates, serves and inspects possibilistic
// receptive-field classifier populations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/prbf/go-engine/internal/config"
	"github.com/danielpatrickdp/prbf/go-engine/internal/logging"
	"github.com/danielpatrickdp/prbf/go-engine/internal/store"
)

// #region flags
var (
	configPath string
	dbPath     string
	logLevel   string
)

// #endregion flags

// #region root
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "prbf",
		Short:         "Possibilistic receptive-field classifier engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database (overrides store.path)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (overrides log.level)")

	root.AddCommand(newTrainCmd(), newEvaluateCmd(), newServeCmd(), newInspectCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion root

// #region env
// env bundles what every command needs.
type env struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	closeLog func() error
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &env{cfg: cfg, logger: logger, store: st, closeLog: closeLog}, nil
}

func (e *env) Close() {
	e.store.Close()
	e.closeLog()
}

// resolveRun returns the named run, or the latest run for "".
func (e *env) resolveRun(id string) (store.Run, error) {
	if id == "" {
		return e.store.LatestRun()
	}
	return e.store.GetRun(id)
}

// #endregion env
