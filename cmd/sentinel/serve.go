package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/pdn-sentinel/internal/config"
	"github.com/raaihank/pdn-sentinel/internal/proxy"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			cfg, log, svc, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer svc.Close()

			log.Info("Starting pdn-sentinel",
				zap.String("version", version),
				zap.String("commit", commit),
				zap.String("build_date", date),
				zap.Int("port", cfg.Server.Port),
			)

			server := proxy.New(cfg, svc, log)

			if file := a.loader.ConfigFile(); file != "" {
				a.loader.Watch(func(next *config.Config) {
					if err := a.applyOverrides(next); err != nil {
						log.Error("Configuration reload rejected", zap.Error(err))
						return
					}
					if err := svc.ApplyConfig(ctx, next); err != nil {
						log.Error("Configuration reload failed, keeping previous engine", zap.Error(err))
						return
					}
					log.Info("Configuration reloaded", zap.String("file", file))
					server.Reloaded("configuration reloaded")
				}, func(err error) {
					log.Warn("Ignoring invalid configuration change", zap.Error(err))
				})
				log.Info("Watching configuration file", zap.String("file", file))
			}

			serverErrors := make(chan error, 1)
			go func() {
				log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
				serverErrors <- server.Start(ctx)
			}()

			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				log.Error("Server error", zap.Error(err))
				return err
			case <-ctx.Done():
				log.Info("Shutdown signal received")

				// Give outstanding requests 30 seconds to complete
				shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
				defer done()

				if err := server.Stop(shutdownCtx); err != nil {
					return fmt.Errorf("failed to shutdown server gracefully: %w", err)
				}
				log.Info("Server shutdown complete")
				return nil
			}
		},
	}
}

func newHealthCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running server and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{
				Timeout: 5 * time.Second,
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health check failed: HTTP %d", resp.StatusCode)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Health check passed")
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://localhost:8080/health", "Health endpoint")
	return cmd
}
