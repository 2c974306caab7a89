package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/ragline/pkg/log"
)

type EmbeddingConfig struct {
	BaseURL        string `env:"RAGLINE_EMBEDDING_BASE_URL" envDefault:"http://localhost:8001"`
	Model          string `env:"RAGLINE_EMBEDDING_MODEL" envDefault:"bge-base-en-v1.5"`
	APIKey         string `env:"RAGLINE_EMBEDDING_API_KEY"`
	TimeoutSeconds int    `env:"RAGLINE_EMBEDDING_TIMEOUT_SECONDS" envDefault:"30"`
}

func NewEmbeddingConfig(ctx context.Context) *EmbeddingConfig {
	c := &EmbeddingConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Embedding config")
	}
	return c
}
