package history

import (
	"context"
	"fmt"

	"github.com/sandevgo/botstudio/internal/core"
	"github.com/sandevgo/botstudio/pkg/log"
)

// Summarizer condenses a message prefix (plus any earlier summary) into a
// single summary text.
type Summarizer interface {
	Summarize(ctx context.Context, messages []core.Message, previousSummary string) (string, error)
}

// Memory owns the ordered message history of one chat, including
// token-budget-aware compression.
type Memory struct {
	chatID     string
	store      core.ChatStore
	counter    TokenCounter
	summarizer Summarizer
}

func NewMemory(chatID string, store core.ChatStore, counter TokenCounter, summarizer Summarizer) *Memory {
	return &Memory{
		chatID:     chatID,
		store:      store,
		counter:    counter,
		summarizer: summarizer,
	}
}

func (m *Memory) ChatID() string {
	return m.chatID
}

func (m *Memory) Append(ctx context.Context, t core.MessageType, content string, fileIDs ...string) (core.ChatMessage, error) {
	msg := core.ChatMessage{
		Type:    t,
		Content: content,
		FileIDs: fileIDs,
	}
	saved, err := m.store.AppendMessage(ctx, m.chatID, msg)
	if err != nil {
		return core.ChatMessage{}, fmt.Errorf("failed to save %s message: %w", t, err)
	}
	return saved, nil
}

// Messages returns the full persisted history, oldest first.
func (m *Memory) Messages(ctx context.Context) ([]core.ChatMessage, error) {
	return m.store.Messages(ctx, m.chatID)
}

// UntilSummary returns the wire-level history starting at the most recent
// summary-bearing message, with the summary prepended as a system message.
// Without a summary it returns the full history.
func (m *Memory) UntilSummary(ctx context.Context) ([]core.Message, error) {
	window, summary, err := m.window(ctx)
	if err != nil {
		return nil, err
	}

	var messages []core.Message
	if summary != "" {
		messages = append(messages, core.Message{Role: core.RoleSystem, Content: summary})
	}
	for _, msg := range window {
		messages = append(messages, msg.ToWire())
	}
	return messages, nil
}

// window returns the persisted messages from the summary carrier (inclusive)
// to the newest, along with the carrier's summary text.
func (m *Memory) window(ctx context.Context) ([]core.ChatMessage, string, error) {
	all, err := m.store.Messages(ctx, m.chatID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get history: %w", err)
	}

	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Summary != "" {
			return all[i:], all[i].Summary, nil
		}
	}
	return all, "", nil
}

// Compress condenses history so that the messages since the summary stay
// within the token budget. A budget of 0 disables compression. Failures are
// fail-open: the turn proceeds with full history rather than blocking on
// summarization.
func (m *Memory) Compress(ctx context.Context, budget int) {
	if budget <= 0 {
		return
	}
	logger := log.FromCtx(ctx)

	window, prevSummary, err := m.window(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("history compression skipped: cannot read history")
		return
	}

	// Walk newest to oldest until the budget is exhausted. The summary text
	// itself is not counted, which keeps the cutoff stable across repeated
	// compressions with the same budget.
	carrierIdx := 0
	running := 0
	for i := len(window) - 1; i >= 0; i-- {
		running += m.counter.Count(window[i].Content)
		if running > budget {
			carrierIdx = i + 1
			break
		}
	}
	if carrierIdx > len(window)-1 {
		// even the newest message alone busts the budget; it still has to
		// carry the summary of everything older
		carrierIdx = len(window) - 1
	}

	// Cutoff at the oldest message means there is nothing older to condense.
	if carrierIdx == 0 {
		return
	}

	var excluded []core.Message
	for _, msg := range window[:carrierIdx] {
		excluded = append(excluded, msg.ToWire())
	}

	summary, err := m.summarizer.Summarize(ctx, excluded, prevSummary)
	if err != nil {
		logger.Warn().Err(err).Msg("history compression skipped: summarization failed")
		return
	}

	carrier := window[carrierIdx]
	if err := m.store.SetSummary(ctx, carrier.ID, summary); err != nil {
		logger.Warn().Err(err).Msg("history compression skipped: cannot store summary")
		return
	}

	// Keep the single-summary invariant: the previous carrier loses its
	// summary now that a newer one exists.
	if prevSummary != "" && window[0].ID != carrier.ID {
		if err := m.store.ClearSummary(ctx, window[0].ID); err != nil {
			logger.Warn().Err(err).Int64("message_id", window[0].ID).Msg("failed to clear old summary")
		}
	}

	logger.Debug().Int64("carrier_id", carrier.ID).Int("budget", budget).Msg("history compressed")
}

func (m *Memory) GetMetadata(ctx context.Context, key string) (string, error) {
	return m.store.GetMetadata(ctx, m.chatID, key)
}

func (m *Memory) SetMetadata(ctx context.Context, key, value string) error {
	return m.store.SetMetadata(ctx, m.chatID, key, value)
}
