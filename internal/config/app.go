package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/botstudio/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"BOTSTUDIO_RUNTIME_PATH" envDefault:".botstudio"`

	// Token budget for history compression. 0 disables compression.
	MaxTokenBudget int `env:"MAX_TOKEN_BUDGET" envDefault:"0"`

	// Chat the CLI transport writes to.
	DefaultChatID string `env:"DEFAULT_CHAT_ID" envDefault:"cli-local"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "botstudio.db")
}
