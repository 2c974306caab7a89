package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/sandevgo/ragline/pkg/log"
	"github.com/sandevgo/ragline/pkg/srv"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the RagLine services",
	Long:  `Initializes session storage, the retrieval cache and the HTTP API, then serves until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		// logger setup
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting ragline")

		services := NewServices(ctx)

		srv.StartServices(ctx, services)

		// Wait for shutdown signal
		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("ragline has been shut down gracefully")

		return nil
	},
}

// Flag overrides for the env-based config. Zero values mean "keep the
// configured default"; the disable flags only ever switch a feature off.
var (
	flagAddr       string
	flagLLMBaseURL string
	flagLLMModel   string
	flagLLMTimeout int
	flagTopK       int
	flagMaxHistory int
	flagNoContext  bool
	flagNoSummary  bool
	flagNoIntents  bool
)

func init() {
	startCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address, e.g. :8004")
	startCmd.Flags().StringVar(&flagLLMBaseURL, "llm-base-url", "", "base URL of the chat completion service")
	startCmd.Flags().StringVar(&flagLLMModel, "llm-model", "", "model name for completions")
	startCmd.Flags().IntVar(&flagLLMTimeout, "llm-timeout", 0, "timeout for model calls in seconds")
	startCmd.Flags().IntVar(&flagTopK, "top-k", 0, "chunks to retrieve from the vector store")
	startCmd.Flags().IntVar(&flagMaxHistory, "max-history", 0, "max messages kept in rolling memory")
	startCmd.Flags().BoolVar(&flagNoContext, "disable-context", false, "disable vector store context injection")
	startCmd.Flags().BoolVar(&flagNoSummary, "disable-summarisation", false, "disable rolling summarisation")
	startCmd.Flags().BoolVar(&flagNoIntents, "disable-intents", false, "disable intent tracking")

	rootCmd.AddCommand(startCmd)
}
