package generator

import (
	"context"
	"strings"

	"github.com/sandevgo/botstudio/internal/core"
)

// Options controls history side effects for one invocation.
type Options struct {
	SaveInputToHistory  bool
	SaveOutputToHistory bool
	IncludeHistory      bool
	Attachments         []core.Attachment
}

func DefaultOptions() Options {
	return Options{
		SaveInputToHistory:  true,
		SaveOutputToHistory: true,
		IncludeHistory:      true,
	}
}

// ResponseGenerator is the single capability interface over the generator
// variants. The concrete variant is chosen from configuration at setup
// time, never at call time.
type ResponseGenerator interface {
	Invoke(ctx context.Context, input string, opts Options) (core.InvocationResult, error)
	ID() string

	// AIMessageID returns the persisted id of the AI message produced by the
	// most recent invocation, or 0 when nothing was persisted.
	AIMessageID() int64
}

// formatInput applies the optional {input}-substitution template.
func formatInput(formatter, input string) string {
	if formatter == "" {
		return input
	}
	return strings.ReplaceAll(formatter, "{input}", input)
}
