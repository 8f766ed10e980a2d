package bot

import (
	"context"

	"github.com/sandevgo/botstudio/internal/core"
	"github.com/sandevgo/botstudio/internal/service/generator"
	"github.com/sandevgo/botstudio/internal/service/history"
)

// PipelineRunner executes an externally defined processing graph. The graph
// itself lives outside this engine.
type PipelineRunner interface {
	Run(ctx context.Context, input string) (string, error)
}

// PipelineBot adapts a PipelineRunner to the generator contract so a
// pipeline can stand in anywhere a bot can. Token usage is owned by the
// pipeline's own nodes and reported as zero here.
type PipelineBot struct {
	id          string
	runner      PipelineRunner
	memory      *history.Memory
	aiMessageID int64
}

func NewPipelineBot(id string, runner PipelineRunner, memory *history.Memory) (*PipelineBot, error) {
	if runner == nil {
		return nil, &core.ChatError{Reason: "pipeline bot requires a runner"}
	}
	if memory == nil {
		return nil, &core.ChatError{Reason: "pipeline bot requires a conversation memory"}
	}
	return &PipelineBot{id: id, runner: runner, memory: memory}, nil
}

func (b *PipelineBot) ID() string {
	return b.id
}

func (b *PipelineBot) AIMessageID() int64 {
	return b.aiMessageID
}

func (b *PipelineBot) Invoke(ctx context.Context, input string, opts generator.Options) (core.InvocationResult, error) {
	output, err := b.runner.Run(ctx, input)
	if err != nil {
		return core.InvocationResult{}, &core.GenerationError{Message: "pipeline run failed", Err: err}
	}

	if opts.SaveInputToHistory {
		if _, err := b.memory.Append(ctx, core.MessageTypeHuman, input); err != nil {
			return core.InvocationResult{}, err
		}
	}
	if opts.SaveOutputToHistory {
		saved, err := b.memory.Append(ctx, core.MessageTypeAI, output)
		if err != nil {
			return core.InvocationResult{}, err
		}
		b.aiMessageID = saved.ID
	}

	return core.InvocationResult{Output: output, ProcessorID: b.id}, nil
}
