package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection pass over the configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// No text service: a burst backlog waits for the next generate run.
		p, err := buildPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer p.Close()

		return p.scheduler.RunCollection(ctx)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation pass over the unprocessed backlog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer p.Close()

		return p.scheduler.RunGeneration(ctx)
	},
}

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Run one learning pass over recent article performance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer p.Close()

		return p.scheduler.RunLearning(ctx)
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(learnCmd)
}
