package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/sandevgo/botstudio/internal/core"
)

const summarizerPrompt = `Progressively summarize the conversation below. ` +
	`Fold the current summary, if any, into a new concise summary that keeps ` +
	`all facts, decisions and open points. Reply with the summary only.`

// LLMSummarizer produces history summaries with a dedicated single-turn
// LLM call. Token usage of summarization is deliberately not reported
// upward; it is bookkeeping, not part of the user turn.
type LLMSummarizer struct {
	provider core.LLMProvider
}

func NewLLMSummarizer(provider core.LLMProvider) *LLMSummarizer {
	return &LLMSummarizer{provider: provider}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, messages []core.Message, previousSummary string) (string, error) {
	var sb strings.Builder
	if previousSummary != "" {
		sb.WriteString("Current summary:\n")
		sb.WriteString(previousSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("New lines of conversation:\n")
	for _, msg := range messages {
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}

	request := []core.Message{
		{Role: core.RoleSystem, Content: summarizerPrompt},
		{Role: core.RoleUser, Content: sb.String()},
	}

	response, _, err := s.provider.Generate(ctx, request, nil)
	if err != nil {
		return "", fmt.Errorf("summarization call failed: %w", err)
	}
	return strings.TrimSpace(response.Content), nil
}
