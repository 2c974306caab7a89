package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sandevgo/ragline/internal/config"
	"github.com/sandevgo/ragline/pkg/env"
	"github.com/sandevgo/ragline/pkg/log"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter .env into the runtime path",
	Long:  `Creates the runtime directory and writes a .env file with the current configuration so it can be edited before the first start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		appCfg := config.NewAppConfig(ctx)
		llmCfg := config.NewLLMConfig(ctx)
		embeddingCfg := config.NewEmbeddingConfig(ctx)

		content, err := env.Marshal(appCfg, llmCfg, embeddingCfg)
		if err != nil {
			return fmt.Errorf("render config: %w", err)
		}

		if err := os.MkdirAll(appCfg.GetRuntimePath(), 0o755); err != nil {
			return fmt.Errorf("create runtime path: %w", err)
		}

		envFile := filepath.Join(appCfg.GetRuntimePath(), ".env")
		if _, err := os.Stat(envFile); err == nil {
			return fmt.Errorf("%s already exists, refusing to overwrite", envFile)
		}

		if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
			return fmt.Errorf("write .env: %w", err)
		}

		log.FromCtx(ctx).Info().Str("path", envFile).Msg("wrote starter .env")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
