package generator

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/sandevgo/botstudio/internal/core"
	"github.com/sandevgo/botstudio/internal/service/history"
	"github.com/sandevgo/botstudio/pkg/log"
)

// runConflictRe matches the remote error raised when a message or run is
// added to a thread that already has an active run.
var runConflictRe = regexp.MustCompile(`(thread_[a-zA-Z0-9]+) while a run (run_[a-zA-Z0-9]+) is active`)

type AssistantBotConfig struct {
	ID             string
	AssistantID    string
	InputFormatter string

	PollInterval time.Duration
	PollTimeout  time.Duration

	// MaxConflictRetries bounds how many conflicting runs get cancelled
	// before the invocation gives up.
	MaxConflictRetries int
}

// AssistantBot is the stateful generator variant: conversation state lives
// in a remote thread, and each invocation reconciles the locally recorded
// thread and run against the remote service.
type AssistantBot struct {
	cfg         AssistantBotConfig
	client      core.AssistantClient
	files       core.FileStore
	memory      *history.Memory
	aiMessageID int64
}

func NewAssistantBot(cfg AssistantBotConfig, client core.AssistantClient, files core.FileStore, memory *history.Memory) (*AssistantBot, error) {
	if cfg.AssistantID == "" {
		return nil, &core.ChatError{Reason: "assistant bot requires an assistant ID"}
	}
	if client == nil {
		return nil, &core.ChatError{Reason: "assistant bot requires an assistant client"}
	}
	if memory == nil {
		return nil, &core.ChatError{Reason: "assistant bot requires a conversation memory"}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Minute
	}
	return &AssistantBot{
		cfg:    cfg,
		client: client,
		files:  files,
		memory: memory,
	}, nil
}

func (b *AssistantBot) ID() string {
	return b.cfg.ID
}

func (b *AssistantBot) AIMessageID() int64 {
	return b.aiMessageID
}

// runState is the locally recorded remote-side state of this chat.
type runState struct {
	ThreadID    string
	ActiveRunID string
}

func (b *AssistantBot) loadRunState(ctx context.Context) (runState, error) {
	var state runState

	threadID, err := b.memory.GetMetadata(ctx, core.MetadataThreadID)
	if err != nil && err != core.ErrNotFound {
		return state, fmt.Errorf("failed to load thread ID: %w", err)
	}
	state.ThreadID = threadID

	runID, err := b.memory.GetMetadata(ctx, core.MetadataActiveRunID)
	if err != nil && err != core.ErrNotFound {
		return state, fmt.Errorf("failed to load active run ID: %w", err)
	}
	state.ActiveRunID = runID

	return state, nil
}

func (b *AssistantBot) Invoke(ctx context.Context, input string, opts Options) (core.InvocationResult, error) {
	formatted := formatInput(b.cfg.InputFormatter, input)

	uploaded, err := b.uploadAttachments(ctx, opts.Attachments)
	if err != nil {
		return core.InvocationResult{}, err
	}

	state, err := b.loadRunState(ctx)
	if err != nil {
		return core.InvocationResult{}, err
	}

	var run core.AssistantRun
	if state.ThreadID == "" {
		run, err = b.client.CreateThreadAndRun(ctx, b.cfg.AssistantID, formatted, uploaded)
		if err != nil {
			return core.InvocationResult{}, &core.GenerationError{Message: "failed to create thread", Err: err}
		}
		if err := b.memory.SetMetadata(ctx, core.MetadataThreadID, run.ThreadID); err != nil {
			return core.InvocationResult{}, fmt.Errorf("failed to store thread ID: %w", err)
		}
	} else {
		run, err = b.startRunOnThread(ctx, state, formatted, uploaded)
		if err != nil {
			return core.InvocationResult{}, err
		}
	}

	// Record the run as active so a later invocation can reconcile it if
	// this one is interrupted.
	if err := b.memory.SetMetadata(ctx, core.MetadataActiveRunID, run.ID); err != nil {
		return core.InvocationResult{}, fmt.Errorf("failed to store active run ID: %w", err)
	}

	run, err = b.waitForRun(ctx, run)
	if err != nil {
		return core.InvocationResult{}, err
	}

	output, cited, err := b.collectResponse(ctx, run)
	if err != nil {
		return core.InvocationResult{}, err
	}

	if opts.SaveInputToHistory {
		var fileIDs []string
		for _, att := range uploaded {
			fileIDs = append(fileIDs, att.RemoteFileID)
		}
		if _, err := b.memory.Append(ctx, core.MessageTypeHuman, input, fileIDs...); err != nil {
			return core.InvocationResult{}, err
		}
	}
	if opts.SaveOutputToHistory {
		saved, err := b.memory.Append(ctx, core.MessageTypeAI, output, cited...)
		if err != nil {
			return core.InvocationResult{}, err
		}
		b.aiMessageID = saved.ID
	}

	if err := b.memory.SetMetadata(ctx, core.MetadataActiveRunID, ""); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("run_id", run.ID).Msg("failed to clear active run ID")
	}

	return core.InvocationResult{
		Output:           output,
		PromptTokens:     run.Usage.PromptTokens,
		CompletionTokens: run.Usage.CompletionTokens,
		ProcessorID:      b.cfg.ID,
	}, nil
}

func (b *AssistantBot) uploadAttachments(ctx context.Context, attachments []core.Attachment) ([]core.ThreadAttachment, error) {
	var uploaded []core.ThreadAttachment
	for _, att := range attachments {
		file, err := b.files.GetFile(ctx, att.FileID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve attachment %d: %w", att.FileID, err)
		}
		content, err := b.files.FileContent(ctx, att.FileID)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %d: %w", att.FileID, err)
		}
		remoteID, err := b.client.UploadFile(ctx, file.Name, content)
		if err != nil {
			return nil, &core.GenerationError{Message: "failed to upload attachment " + file.Name, Err: err}
		}
		uploaded = append(uploaded, core.ThreadAttachment{RemoteFileID: remoteID, ToolType: att.ToolType})
	}
	return uploaded, nil
}

// startRunOnThread adds the input to an existing thread and starts a run,
// cancelling conflicting runs up to the retry bound.
func (b *AssistantBot) startRunOnThread(ctx context.Context, state runState, input string, attachments []core.ThreadAttachment) (core.AssistantRun, error) {
	logger := log.FromCtx(ctx)

	messageCreated := false
	for attempt := 0; ; attempt++ {
		run, err := b.tryStartRun(ctx, state.ThreadID, input, attachments, &messageCreated)
		if err == nil {
			return run, nil
		}

		conflictThread, conflictRun, ok := parseRunConflict(err)
		if !ok {
			return core.AssistantRun{}, &core.GenerationError{Message: "failed to start run", Err: err}
		}
		if conflictThread != state.ThreadID {
			// The remote complained about a thread we do not own. Retrying
			// cannot fix that.
			return core.AssistantRun{}, &core.GenerationError{
				Message: fmt.Sprintf("run conflict on foreign thread %s (expected %s)", conflictThread, state.ThreadID),
				Err:     err,
			}
		}
		if attempt >= b.cfg.MaxConflictRetries {
			return core.AssistantRun{}, &core.GenerationError{Message: "run conflict retries exhausted", Err: err}
		}

		if state.ActiveRunID != "" && state.ActiveRunID != conflictRun {
			logger.Warn().
				Str("recorded_run", state.ActiveRunID).
				Str("conflicting_run", conflictRun).
				Msg("conflicting run differs from the recorded active run")
		}
		logger.Info().Str("run_id", conflictRun).Msg("cancelling stale run")
		if cancelErr := b.client.CancelRun(ctx, state.ThreadID, conflictRun); cancelErr != nil {
			return core.AssistantRun{}, &core.GenerationError{Message: "failed to cancel stale run " + conflictRun, Err: cancelErr}
		}
	}
}

func (b *AssistantBot) tryStartRun(ctx context.Context, threadID, input string, attachments []core.ThreadAttachment, messageCreated *bool) (core.AssistantRun, error) {
	if !*messageCreated {
		if err := b.client.CreateMessage(ctx, threadID, input, attachments); err != nil {
			return core.AssistantRun{}, err
		}
		*messageCreated = true
	}
	return b.client.CreateRun(ctx, threadID, b.cfg.AssistantID)
}

func parseRunConflict(err error) (threadID, runID string, ok bool) {
	m := runConflictRe.FindStringSubmatch(err.Error())
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// waitForRun polls the run until it reaches a terminal status.
func (b *AssistantBot) waitForRun(ctx context.Context, run core.AssistantRun) (core.AssistantRun, error) {
	deadline := time.Now().Add(b.cfg.PollTimeout)

	for {
		switch run.Status {
		case core.RunStatusCompleted:
			return run, nil
		case core.RunStatusCancelled:
			return run, &core.GenerationCancelled{RunID: run.ID}
		case core.RunStatusQueued, core.RunStatusInProgress, "cancelling":
			// still pending
		default:
			return run, &core.GenerationError{Message: fmt.Sprintf("run %s ended with status %s", run.ID, run.Status)}
		}

		if time.Now().After(deadline) {
			return run, &core.GenerationError{Message: "timed out waiting for run " + run.ID}
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-time.After(b.cfg.PollInterval):
		}

		updated, err := b.client.RetrieveRun(ctx, run.ThreadID, run.ID)
		if err != nil {
			return run, &core.GenerationError{Message: "failed to retrieve run " + run.ID, Err: err}
		}
		run = updated
	}
}
