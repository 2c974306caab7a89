package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v9"
	"github.com/sandevgo/ragline/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"RAGLINE_RUNTIME_PATH" envDefault:".ragline"`
	HTTPAddr    string `env:"RAGLINE_HTTP_ADDR" envDefault:":8004"`

	// Feature toggles, overridable per request
	EnableContext bool `env:"RAGLINE_ENABLE_CONTEXT" envDefault:"true"`
	EnableSummary bool `env:"RAGLINE_ENABLE_SUMMARY" envDefault:"true"`
	EnableIntents bool `env:"RAGLINE_ENABLE_INTENTS" envDefault:"true"`

	// Empty means the built-in system prompt
	SystemPrompt string `env:"RAGLINE_SYSTEM_PROMPT"`

	// Context management
	ContextTopK        int `env:"RAGLINE_CONTEXT_TOP_K" envDefault:"4"`
	MaxHistoryMessages int `env:"RAGLINE_MAX_HISTORY_MESSAGES" envDefault:"20"`
	MaxPromptTokens    int `env:"RAGLINE_MAX_PROMPT_TOKENS" envDefault:"30000"`

	// Vector store loader eviction window, minutes of inactivity
	StoreCacheTTLMinutes int `env:"RAGLINE_STORE_CACHE_TTL_MINUTES" envDefault:"60"`

	// Empty means in-memory sessions only
	PersistSessions bool `env:"RAGLINE_PERSIST_SESSIONS" envDefault:"true"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "ragline.db")
}
