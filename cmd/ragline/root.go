package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandevgo/ragline/internal/config"
	"github.com/sandevgo/ragline/pkg/log"
)

var (
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "ragline",
	Short: "Retrieval-augmented chat over a local instruct model",
	Long: `RagLine sits between a chat client and a locally hosted instruct model,
adding retrieval-augmented context, durable per-session memory with
automatic compaction, and per-turn intent tagging.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	isDebug := debug || config.IsDebug()
	return log.NewContextWithLogger(ctx, isDebug)
}
