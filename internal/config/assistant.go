package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/botstudio/pkg/log"
)

type AssistantConfig struct {
	AssistantID  string        `env:"OPENAI_ASSISTANT_ID"`
	PollInterval time.Duration `env:"ASSISTANT_POLL_INTERVAL" envDefault:"1s"`
	PollTimeout  time.Duration `env:"ASSISTANT_POLL_TIMEOUT" envDefault:"10m"`

	// Bounded retry for run conflicts. The upstream behaviour is exactly one
	// retry; kept configurable rather than hardcoded.
	MaxConflictRetries int `env:"ASSISTANT_MAX_CONFLICT_RETRIES" envDefault:"1"`
}

func NewAssistantConfig(ctx context.Context) *AssistantConfig {
	c := &AssistantConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Assistant config")
	}
	return c
}
