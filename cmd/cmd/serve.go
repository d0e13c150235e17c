package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"newsroom/internal/logger"
	"newsroom/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the operational HTTP surface without starting the timers",
	Long: `Serve starts the health, status, and manual-trigger endpoints while
leaving the scheduler timers stopped. Runs still happen on demand through
POST /api/trigger/{collection|generation|learning}.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer p.Close()

		srv := server.New(viper.GetString("server.addr"), p.scheduler, p.store)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server stopped: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
