package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/promptsmith/sdprompt/internal/batch"
	"github.com/promptsmith/sdprompt/internal/config"
	"github.com/promptsmith/sdprompt/internal/handlers"
	"github.com/promptsmith/sdprompt/internal/styles"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server and API",
		Long: `Starts the prompt builder API and serves the built front end.

Generation and image analysis requests are relayed to the configured
provider. Saved prompts are kept in the configured store. Edits to the
config file are picked up without a restart.`,
		Example: `  # Start server on the configured port (default 3001)
  sdprompt serve

  # Start server on custom port
  sdprompt serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, err := flags.load()
			if err != nil {
				return err
			}
			cfg := cm.Get()
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			svc, err := newProxyService(cfg)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			catalog, err := styles.Load(cfg.Styles.Path)
			if err != nil {
				return err
			}

			batches := batch.NewManager(svc, batch.Config{
				MaxImages: cfg.Batch.MaxImages,
				Interval:  cfg.Batch.Interval,
				TTL:       cfg.Batch.TTL,
			})

			cm.OnChange(func(c *config.Config) {
				svc.SetDefaults(c.GenerationOptions())
				slog.Info("Generation defaults updated")
			})

			handler := handlers.New(handlers.Deps{
				Proxy:     svc,
				Store:     store,
				Batches:   batches,
				Styles:    catalog,
				StaticDir: cfg.Server.StaticDir,
			})

			addr := cfg.Addr()
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(cfg.Server.CORSOrigins),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				return cm.Watch(ctx)
			})

			g.Go(func() error {
				slog.Info("Prompt builder available",
					"addr", addr,
					"provider", cfg.Provider,
					"upstream", svc.Address(),
					"store", cfg.Storage.Driver)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			// Wait for context cancellation (Ctrl+C) or server error
			g.Go(func() error {
				<-ctx.Done()
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			})

			return g.Wait()
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 3001, "Port to listen on (overrides server.port)")

	return cmd
}
