package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/joho/godotenv"
	"github.com/sandevgo/botstudio/internal/config"
	"github.com/sandevgo/botstudio/internal/core"
	"github.com/sandevgo/botstudio/internal/providers/assistant"
	"github.com/sandevgo/botstudio/internal/providers/llm"
	"github.com/sandevgo/botstudio/internal/providers/tools"
	"github.com/sandevgo/botstudio/internal/service/bot"
	"github.com/sandevgo/botstudio/internal/service/events"
	"github.com/sandevgo/botstudio/internal/service/generator"
	"github.com/sandevgo/botstudio/internal/service/history"
	"github.com/sandevgo/botstudio/internal/service/trace"
	"github.com/sandevgo/botstudio/internal/storage/sqlite"
	"github.com/sandevgo/botstudio/internal/transport/console"
	"github.com/sandevgo/botstudio/pkg/log"
	"github.com/sandevgo/botstudio/pkg/srv"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	if err := initEnv(ctx, appCfg.RuntimePath); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}
	llmCfg := config.NewLLMConfig(ctx)
	assistantCfg := config.NewAssistantConfig(ctx)

	// 2. Storage
	db, err := initStorage(ctx, appCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup(db.Close))
	chats := sqlite.NewChatsRepo(db)
	files := sqlite.NewFilesRepo(db)

	// 3. LLM provider, with the local tool loop when tools are enabled
	var provider core.LLMProvider = llm.NewOpenAI(llmCfg.BaseURL, llmCfg.APIKey, llmCfg.Model)
	if llmCfg.EnableTools {
		manager := tools.NewManager(tools.NewFetch())
		provider = llm.NewToolLoop(provider, manager)
	}

	// 4. Conversation memory
	memory := history.NewMemory(
		appCfg.DefaultChatID,
		chats,
		history.NewTiktokenCounter(),
		history.NewLLMSummarizer(provider),
	)

	// 5. Generator: stateful assistant when configured, chat completion otherwise
	primary, err := initGenerator(appCfg, llmCfg, assistantCfg, provider, files, memory)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build generator")
	}

	// 6. Events and tracing
	sink, pubsub := events.NewGoChannelSink()
	services = append(services, srv.NewCleanup(pubsub.Close))
	subscribeDebugLogger(ctx, pubsub)

	recorder := trace.NewRecorder()
	if config.IsDebug() || debug {
		recorder = trace.NewRecorder(trace.NewLogBackend())
	}

	// 7. Router
	router, err := bot.NewRouter(bot.BotSpec{Primary: primary}, recorder, sink)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build router")
	}

	// 8. Console transport
	services = append(services, console.NewBot(router))

	return services
}

func initStorage(ctx context.Context, cfg *config.AppConfig) (*sql.DB, error) {
	if err := os.MkdirAll(cfg.RuntimePath, 0o755); err != nil {
		return nil, err
	}
	return sqlite.NewDB(ctx, cfg.GetDatabasePath())
}

func initGenerator(
	appCfg *config.AppConfig,
	llmCfg *config.LLMConfig,
	assistantCfg *config.AssistantConfig,
	provider core.LLMProvider,
	files core.FileStore,
	memory *history.Memory,
) (generator.ResponseGenerator, error) {
	if assistantCfg.AssistantID != "" {
		client := assistant.NewClient(llmCfg.BaseURL, llmCfg.APIKey)
		return generator.NewAssistantBot(generator.AssistantBotConfig{
			ID:                 "assistant",
			AssistantID:        assistantCfg.AssistantID,
			InputFormatter:     llmCfg.InputFormatter,
			PollInterval:       assistantCfg.PollInterval,
			PollTimeout:        assistantCfg.PollTimeout,
			MaxConflictRetries: assistantCfg.MaxConflictRetries,
		}, client, files, memory)
	}

	return generator.NewChatBot(generator.ChatBotConfig{
		ID:             "chat",
		Prompt:         llmCfg.Prompt,
		SourceMaterial: llmCfg.SourceMaterial,
		InputFormatter: llmCfg.InputFormatter,
		MaxTokenBudget: appCfg.MaxTokenBudget,
	}, provider, memory)
}

// subscribeDebugLogger drains the event topic into the debug log so emitted
// events are visible during development.
func subscribeDebugLogger(ctx context.Context, pubsub *gochannel.GoChannel) {
	logger := log.FromCtx(ctx)

	messages, err := pubsub.Subscribe(ctx, events.Topic)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to subscribe to events")
		return
	}

	go func() {
		for msg := range messages {
			logger.Debug().Str("event", msg.Metadata.Get("event")).RawJSON("payload", msg.Payload).Msg("event")
			msg.Ack()
		}
	}()
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
