package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/sandevgo/ragline/internal/config"
	"github.com/sandevgo/ragline/internal/core"
	"github.com/sandevgo/ragline/internal/providers/embedding"
	"github.com/sandevgo/ragline/internal/providers/llm"
	"github.com/sandevgo/ragline/internal/providers/vectorstore"
	"github.com/sandevgo/ragline/internal/service/chat"
	"github.com/sandevgo/ragline/internal/service/session"
	"github.com/sandevgo/ragline/internal/storage/sqlite"
	"github.com/sandevgo/ragline/internal/transport/httpapi"
	"github.com/sandevgo/ragline/pkg/log"
	"github.com/sandevgo/ragline/pkg/srv"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)

	if err := initEnv(ctx, appCfg.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	llmCfg := config.NewLLMConfig(ctx)
	embeddingCfg := config.NewEmbeddingConfig(ctx)
	applyFlagOverrides(appCfg, llmCfg)

	// 2. Storage
	recorder, cleanup, err := initStorage(ctx, appCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	if cleanup != nil {
		services = append(services, cleanup)
	}

	// 3. Session store, reloading persisted sessions
	store := session.NewStore(recorder, appCfg.MaxHistoryMessages)
	if err := store.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to restore sessions")
	}

	// 4. Model and embedding providers
	model := llm.NewOpenAICompatible(llmCfg)
	embedder := embedding.NewClient(embeddingCfg)

	// 5. Retrieval cache with its background eviction sweep
	cache := vectorstore.NewCache(embedder, time.Duration(appCfg.StoreCacheTTLMinutes)*time.Minute)
	services = append(services, cache)

	// 6. Chat engine
	engine := chat.NewEngine(appCfg, store, model, cache)

	// 7. Transport
	services = append(services, httpapi.NewServer(appCfg.HTTPAddr, engine))

	return services
}

func applyFlagOverrides(appCfg *config.AppConfig, llmCfg *config.LLMConfig) {
	if flagAddr != "" {
		appCfg.HTTPAddr = flagAddr
	}
	if flagLLMBaseURL != "" {
		llmCfg.BaseURL = flagLLMBaseURL
	}
	if flagLLMModel != "" {
		llmCfg.Model = flagLLMModel
	}
	if flagLLMTimeout > 0 {
		llmCfg.TimeoutSeconds = flagLLMTimeout
	}
	if flagTopK > 0 {
		appCfg.ContextTopK = flagTopK
	}
	if flagMaxHistory > 0 {
		appCfg.MaxHistoryMessages = flagMaxHistory
	}
	if flagNoContext {
		appCfg.EnableContext = false
	}
	if flagNoSummary {
		appCfg.EnableSummary = false
	}
	if flagNoIntents {
		appCfg.EnableIntents = false
	}
}

// initStorage opens the session database unless persistence is disabled,
// in which case sessions live in memory only.
func initStorage(ctx context.Context, cfg *config.AppConfig) (core.SessionRecorder, srv.Service, error) {
	if !cfg.PersistSessions {
		return nil, nil, nil
	}

	db, err := sqlite.NewDB(ctx, cfg.GetDatabasePath())
	if err != nil {
		return nil, nil, err
	}
	return sqlite.NewSessionsRepo(db), srv.NewCleanup(db.Close), nil
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
