package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/points-engine/api"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Start the points engine REST API.

Opens the SQLite database (creating it if it doesn't exist), seeds the
category registry from config, and serves until SIGINT/SIGTERM, then
drains in-flight requests for up to 30 seconds.

Example:
  pointsd serve --config points.yaml
  pointsd serve --db /tmp/points.db --addr :3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions) error {
	eng, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer eng.Close()

	addr := eng.cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	handler := api.NewHandler(eng.service, eng.top, eng.store, eng.store)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		eng.logger.Info("server starting", "addr", addr, "db", eng.cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		eng.logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	eng.logger.Info("server stopped")
	return nil
}
