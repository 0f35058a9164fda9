package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/points-engine/config"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/store/sqlite"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
	Database   string
	Verbose    bool
}

// NewRootCommand creates the root command for the pointsd CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pointsd",
		Short: "Points ledger engine",
		Long: `pointsd runs the points ledger: per-user per-category balances,
an append-only transaction log, and a ranked leaderboard, served over
a REST API backed by SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database path (overrides config; \":memory:\" for in-memory)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRegenCommand(opts))
	cmd.AddCommand(NewDeleteCategoryCommand(opts))

	return cmd
}

// engine bundles the wired-up dependencies the commands work with.
type engine struct {
	cfg     *config.Config
	store   *sqlite.Store
	service *points.Service
	top     *points.TopUsers
	logger  *slog.Logger
}

func (e *engine) Close() error {
	return e.store.Close()
}

// openEngine loads config, opens the store, and wires the service.
func openEngine(opts *RootOptions) (*engine, error) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	service := points.NewService(store, store, registry, logger)
	service.TenantID = cfg.Tenant

	top := points.NewTopUsers(store, cfg.Excluded())
	top.Bind(service.Bus)

	return &engine{
		cfg:     cfg,
		store:   store,
		service: service,
		top:     top,
		logger:  logger,
	}, nil
}
