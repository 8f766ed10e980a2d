package bot

import (
	"context"
	"strings"

	"github.com/sandevgo/botstudio/internal/core"
	"github.com/sandevgo/botstudio/internal/service/generator"
	"github.com/sandevgo/botstudio/internal/service/safety"
	"github.com/sandevgo/botstudio/internal/service/trace"
	"github.com/sandevgo/botstudio/pkg/log"
)

// ProcessOptions controls one turn through the router.
type ProcessOptions struct {
	SaveToHistory bool
	Attachments   []core.Attachment
}

func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{SaveToHistory: true}
}

// Router drives one conversational turn: human-side safety, optional
// keyword routing to a child generator, the main generation, an optional
// terminal post-processor, and AI-side safety.
type Router struct {
	primary      generator.ResponseGenerator
	routes       map[string]generator.ResponseGenerator
	defaultRoute string
	terminal     generator.ResponseGenerator
	filters      []*safety.Filter
	recorder     *trace.Recorder
	events       core.EventSink

	usage       core.Usage
	aiMessageID int64
}

// Usage reports the aggregate token counts of the most recent turn, across
// every internal call: routing decision, target, terminal, and any safety
// classifications or fallback generations.
func (r *Router) Usage() core.Usage {
	return r.usage
}

// AIMessageID returns the persisted id of the AI message produced by the
// most recent turn, or 0 when nothing was persisted.
func (r *Router) AIMessageID() int64 {
	return r.aiMessageID
}

// ProcessInput runs one full turn and returns the final response text. Any
// unrecovered error aborts the turn; a triggered safety layer is a normal
// terminal branch, not an error.
func (r *Router) ProcessInput(ctx context.Context, input string, opts ProcessOptions) (string, error) {
	r.usage = core.Usage{}
	r.aiMessageID = 0

	span := r.recorder.StartSpan(ctx, "process_input", map[string]any{"input": input})
	output, err := r.runTurn(ctx, input, opts)
	span.SetOutput("output", output)
	span.End(ctx, err)
	if err != nil {
		return "", err
	}

	r.events.Emit(ctx, core.EventNewBotMessage, map[string]any{
		"bot_id":     r.primary.ID(),
		"message_id": r.aiMessageID,
	})
	return output, nil
}

func (r *Router) runTurn(ctx context.Context, input string, opts ProcessOptions) (string, error) {
	blocked, output, err := r.checkInput(ctx, input)
	if err != nil {
		return "", err
	}
	if blocked {
		return output, nil
	}

	target, err := r.resolveTarget(ctx, input)
	if err != nil {
		return "", err
	}

	output, producer, err := r.generate(ctx, target, input, opts)
	if err != nil {
		return "", err
	}
	r.aiMessageID = producer.AIMessageID()

	return r.checkOutput(ctx, output)
}

// checkInput runs the human-reviewing safety filters; the first unsafe
// verdict ends the turn with that layer's fallback.
func (r *Router) checkInput(ctx context.Context, input string) (bool, string, error) {
	for _, filter := range r.filters {
		if !filter.AppliesTo(core.MessageTypeHuman) {
			continue
		}
		safe, usage, err := filter.Classify(ctx, input)
		r.usage.Add(usage)
		if err != nil {
			return false, "", err
		}
		if safe {
			continue
		}

		log.FromCtx(ctx).Info().Str("layer_id", filter.Spec().ID).Msg("human safety layer triggered")
		r.events.Emit(ctx, core.EventHumanSafetyTriggered, map[string]any{"layer_id": filter.Spec().ID})

		output, err := r.fallback(ctx, filter)
		if err != nil {
			return false, "", err
		}
		return true, output, nil
	}
	return false, "", nil
}

// resolveTarget picks the generator for the main stage. Without routes the
// primary answers directly and no routing-decision call is made.
func (r *Router) resolveTarget(ctx context.Context, input string) (generator.ResponseGenerator, error) {
	if len(r.routes) == 0 {
		return r.primary, nil
	}

	span := r.recorder.StartSpan(ctx, "routing_decision", map[string]any{"input": input})
	result, err := r.primary.Invoke(ctx, input, generator.Options{IncludeHistory: true})
	span.SetOutput("keyword", result.Output)
	span.End(ctx, err)
	if err != nil {
		return nil, err
	}
	r.usage.Add(core.Usage{PromptTokens: result.PromptTokens, CompletionTokens: result.CompletionTokens})

	keyword := strings.ToLower(strings.TrimSpace(result.Output))
	target, ok := r.routes[keyword]
	if !ok {
		log.FromCtx(ctx).Debug().Str("keyword", keyword).Str("default", r.defaultRoute).Msg("unrecognized routing keyword")
		target = r.routes[r.defaultRoute]
	}
	return target, nil
}

// generate runs the main stage and, when configured, the terminal stage.
// The terminal stage owns the persisted answer, so the main stage never
// saves its output when a terminal generator exists.
func (r *Router) generate(ctx context.Context, target generator.ResponseGenerator, input string, opts ProcessOptions) (string, generator.ResponseGenerator, error) {
	mainOpts := generator.Options{
		SaveInputToHistory:  opts.SaveToHistory,
		SaveOutputToHistory: opts.SaveToHistory && r.terminal == nil,
		IncludeHistory:      true,
		Attachments:         opts.Attachments,
	}

	span := r.recorder.StartSpan(ctx, "generate:"+target.ID(), map[string]any{"input": input})
	result, err := target.Invoke(ctx, input, mainOpts)
	span.SetOutput("output", result.Output)
	span.End(ctx, err)
	if err != nil {
		return "", nil, err
	}
	r.usage.Add(core.Usage{PromptTokens: result.PromptTokens, CompletionTokens: result.CompletionTokens})

	if r.terminal == nil {
		return result.Output, target, nil
	}

	terminalOpts := generator.Options{
		SaveOutputToHistory: opts.SaveToHistory,
	}
	span = r.recorder.StartSpan(ctx, "terminal:"+r.terminal.ID(), map[string]any{"input": result.Output})
	terminalResult, err := r.terminal.Invoke(ctx, result.Output, terminalOpts)
	span.SetOutput("output", terminalResult.Output)
	span.End(ctx, err)
	if err != nil {
		return "", nil, err
	}
	r.usage.Add(core.Usage{PromptTokens: terminalResult.PromptTokens, CompletionTokens: terminalResult.CompletionTokens})

	return terminalResult.Output, r.terminal, nil
}

// checkOutput runs the AI-reviewing safety filters over the candidate
// response; the first unsafe verdict replaces it with that layer's fallback
// and bypasses the remaining filters.
func (r *Router) checkOutput(ctx context.Context, output string) (string, error) {
	for _, filter := range r.filters {
		if !filter.AppliesTo(core.MessageTypeAI) {
			continue
		}
		safe, usage, err := filter.Classify(ctx, output)
		r.usage.Add(usage)
		if err != nil {
			return "", err
		}
		if safe {
			continue
		}

		log.FromCtx(ctx).Info().Str("layer_id", filter.Spec().ID).Msg("bot safety layer triggered")
		r.events.Emit(ctx, core.EventBotSafetyTriggered, map[string]any{"layer_id": filter.Spec().ID})

		return r.fallback(ctx, filter)
	}
	return output, nil
}

// fallback produces the response for a triggered safety layer: a fresh
// generation from the fallback prompt when one is configured (the
// triggering input is never persisted), else the layer's canned response,
// else the default apology.
func (r *Router) fallback(ctx context.Context, filter *safety.Filter) (string, error) {
	spec := filter.Spec()

	if spec.FallbackPrompt != "" {
		result, err := r.primary.Invoke(ctx, spec.FallbackPrompt, generator.Options{
			SaveOutputToHistory: true,
			IncludeHistory:      true,
		})
		if err != nil {
			return "", err
		}
		r.usage.Add(core.Usage{PromptTokens: result.PromptTokens, CompletionTokens: result.CompletionTokens})
		r.aiMessageID = r.primary.AIMessageID()
		return result.Output, nil
	}
	if spec.FallbackResponse != "" {
		return spec.FallbackResponse, nil
	}
	return safety.DefaultFallbackResponse, nil
}
