package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/ragline/pkg/log"
)

type LLMConfig struct {
	BaseURL        string `env:"RAGLINE_LLM_BASE_URL" envDefault:"http://localhost:8000"`
	Model          string `env:"RAGLINE_LLM_MODEL" envDefault:"qwen2.5-instruct"`
	APIKey         string `env:"RAGLINE_LLM_API_KEY"`
	TimeoutSeconds int    `env:"RAGLINE_LLM_TIMEOUT_SECONDS" envDefault:"60"`
}

func NewLLMConfig(ctx context.Context) *LLMConfig {
	c := &LLMConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse LLM config")
	}
	return c
}
