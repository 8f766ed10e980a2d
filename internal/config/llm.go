package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/botstudio/pkg/log"
)

type LLMConfig struct {
	APIKey  string `env:"OPENAI_API_KEY,required,notEmpty"`
	Model   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	BaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com"`

	// Bot behaviour
	Prompt         string `env:"BOT_PROMPT" envDefault:"You are a helpful assistant."`
	SourceMaterial string `env:"BOT_SOURCE_MATERIAL"`
	InputFormatter string `env:"BOT_INPUT_FORMATTER"`
	EnableTools    bool   `env:"BOT_ENABLE_TOOLS" envDefault:"false"`
}

func NewLLMConfig(ctx context.Context) *LLMConfig {
	c := &LLMConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse LLM config")
	}
	return c
}
