package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nijaru/yt-clip/handlers"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the retention janitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			level := ""
			if ctx.verbose {
				level = "debug"
			}
			logCloser, err := setupLogging(cfg, level)
			if err != nil {
				return err
			}
			defer logCloser.Close()

			app, err := newApplication(cmd.Context(), cfg)
			if err != nil {
				logrus.WithError(err).Error("Failed to initialize application")
				return err
			}
			defer app.Close()

			if cfg.Retention.Enabled {
				if err := app.janitor.Start(cfg.Retention.Schedule); err != nil {
					return err
				}
			}

			server := handlers.NewServer(cfg,
				handlers.WithPipeline(app.service),
				handlers.WithSessions(app.sessions),
				handlers.WithStore(app.store),
			)

			errCh := make(chan error, 1)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
				close(errCh)
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(stop)

			select {
			case sig := <-stop:
				logrus.WithField("signal", sig.String()).Info("Shutdown requested")
			case err, ok := <-errCh:
				if ok {
					logrus.WithError(err).Error("Server failed")
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logrus.WithError(err).Error("Server shutdown failed")
				return err
			}
			logrus.Info("Server stopped")
			return nil
		},
	}
}
