package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sandevgo/botstudio/internal/core"
	"github.com/sandevgo/botstudio/internal/service/bot"
	"github.com/sandevgo/botstudio/pkg/log"
)

// Bot is the interactive stdin transport: one line in, one turn through the
// router, one response out.
type Bot struct {
	router *bot.Router
}

func NewBot(router *bot.Router) *Bot {
	return &Bot{router: router}
}

func (b *Bot) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)

	fmt.Printf("%s ready. Type a message, Ctrl+C to exit.\n", core.BotName)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		output, err := b.router.ProcessInput(ctx, input, bot.DefaultProcessOptions())
		if err != nil {
			var cancelled *core.GenerationCancelled
			if errors.As(err, &cancelled) {
				logger.Warn().Str("run_id", cancelled.RunID).Msg("generation was cancelled remotely")
				continue
			}
			logger.Error().Err(err).Msg("turn failed")
			continue
		}

		fmt.Println(output)

		usage := b.router.Usage()
		logger.Debug().
			Int("prompt_tokens", usage.PromptTokens).
			Int("completion_tokens", usage.CompletionTokens).
			Int64("message_id", b.router.AIMessageID()).
			Msg("turn complete")
	}
}

func (b *Bot) Shutdown(ctx context.Context) error {
	return nil
}
