package llm

import (
	"context"
	"fmt"

	"github.com/sandevgo/botstudio/internal/core"
	"github.com/sandevgo/botstudio/pkg/log"
)

// maxToolIterations bounds the tool-calling conversation so a misbehaving
// model cannot loop forever.
const maxToolIterations = 10

// ToolLoop drives a tool-calling conversation to a single final text reply.
// Tool exchanges stay local to the call; only the final message is returned.
type ToolLoop struct {
	provider core.LLMProvider
	executor core.ToolExecutor
}

func NewToolLoop(provider core.LLMProvider, executor core.ToolExecutor) *ToolLoop {
	return &ToolLoop{
		provider: provider,
		executor: executor,
	}
}

func (l *ToolLoop) Generate(ctx context.Context, messages []core.Message, tools []core.Tool) (core.Message, core.Usage, error) {
	logger := log.FromCtx(ctx)

	if l.executor != nil && len(tools) == 0 {
		tools = l.executor.Definitions(ctx)
	}

	conversation := make([]core.Message, len(messages))
	copy(conversation, messages)

	var total core.Usage
	for i := 0; i < maxToolIterations; i++ {
		response, usage, err := l.provider.Generate(ctx, conversation, tools)
		if err != nil {
			return core.Message{}, total, err
		}
		total.Add(usage)

		if len(response.ToolCalls) == 0 || l.executor == nil {
			return response, total, nil
		}

		for _, tc := range response.ToolCalls {
			logger.Info().Str("tool", tc.Function.Name).Msg("executing tool")
		}

		conversation = append(conversation, response)
		conversation = append(conversation, l.executor.Execute(ctx, response.ToolCalls)...)
	}

	return core.Message{}, total, fmt.Errorf("tool loop exceeded %d iterations", maxToolIterations)
}
