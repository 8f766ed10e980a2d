package generator

import (
	"context"
	"strings"
	"time"

	"github.com/sandevgo/botstudio/internal/core"
	"github.com/sandevgo/botstudio/internal/service/history"
)

type ChatBotConfig struct {
	ID             string
	Prompt         string
	SourceMaterial string
	InputFormatter string

	// MaxTokenBudget triggers history compression before each call when
	// greater than zero.
	MaxTokenBudget int

	// InjectTimestamp appends a trailing system message carrying the current
	// time, for time-aware bots.
	InjectTimestamp bool
}

// ChatBot is the chat-completion generator variant. It is stateless per
// call beyond its conversation memory.
type ChatBot struct {
	cfg         ChatBotConfig
	provider    core.LLMProvider
	memory      *history.Memory
	clock       func() time.Time
	aiMessageID int64
}

func NewChatBot(cfg ChatBotConfig, provider core.LLMProvider, memory *history.Memory) (*ChatBot, error) {
	if cfg.Prompt == "" {
		return nil, &core.ChatError{Reason: "chat bot requires a prompt"}
	}
	if provider == nil {
		return nil, &core.ChatError{Reason: "chat bot requires an LLM provider"}
	}
	if memory == nil {
		return nil, &core.ChatError{Reason: "chat bot requires a conversation memory"}
	}
	return &ChatBot{
		cfg:      cfg,
		provider: provider,
		memory:   memory,
		clock:    time.Now,
	}, nil
}

func (b *ChatBot) ID() string {
	return b.cfg.ID
}

func (b *ChatBot) AIMessageID() int64 {
	return b.aiMessageID
}

func (b *ChatBot) Invoke(ctx context.Context, input string, opts Options) (core.InvocationResult, error) {
	formatted := formatInput(b.cfg.InputFormatter, input)

	b.memory.Compress(ctx, b.cfg.MaxTokenBudget)

	messages, err := b.buildMessages(ctx, formatted, opts)
	if err != nil {
		return core.InvocationResult{}, err
	}

	response, usage, err := b.provider.Generate(ctx, messages, nil)
	if err != nil {
		return core.InvocationResult{}, &core.GenerationError{Message: "chat completion failed", Err: err}
	}

	// History is written only after a successful call: human input first,
	// then the AI output.
	if opts.SaveInputToHistory {
		if _, err := b.memory.Append(ctx, core.MessageTypeHuman, input); err != nil {
			return core.InvocationResult{}, err
		}
	}
	if opts.SaveOutputToHistory {
		saved, err := b.memory.Append(ctx, core.MessageTypeAI, response.Content)
		if err != nil {
			return core.InvocationResult{}, err
		}
		b.aiMessageID = saved.ID
	}

	return core.InvocationResult{
		Output:           response.Content,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		ProcessorID:      b.cfg.ID,
	}, nil
}

func (b *ChatBot) buildMessages(ctx context.Context, input string, opts Options) ([]core.Message, error) {
	prompt := strings.ReplaceAll(b.cfg.Prompt, "{source_material}", b.cfg.SourceMaterial)

	messages := []core.Message{{Role: core.RoleSystem, Content: prompt}}

	if opts.IncludeHistory {
		hist, err := b.memory.UntilSummary(ctx)
		if err != nil {
			return nil, err
		}
		messages = append(messages, hist...)
	}

	messages = append(messages, core.Message{Role: core.RoleUser, Content: input})

	if b.cfg.InjectTimestamp {
		messages = append(messages, core.Message{
			Role:    core.RoleSystem,
			Content: "The current datetime is " + b.clock().UTC().Format(time.RFC3339),
		})
	}
	return messages, nil
}
