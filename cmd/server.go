package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"secscan/api"
	"secscan/logger"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the scan HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup := buildEngine()
		defer cleanup()

		srv := &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           api.NewRouter(engine),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("scan API listening on %s", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			logger.Info("shutting down scan API")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
