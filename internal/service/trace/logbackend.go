package trace

import (
	"context"

	"github.com/sandevgo/botstudio/pkg/log"
)

// LogBackend records spans and events to the structured log. Mostly useful
// for local development and as a reference backend implementation.
type LogBackend struct{}

func NewLogBackend() *LogBackend {
	return &LogBackend{}
}

func (b *LogBackend) StartSpan(ctx context.Context, spanID, name string, inputs map[string]any) error {
	log.FromCtx(ctx).Debug().Str("span_id", spanID).Str("name", name).Interface("inputs", inputs).Msg("span started")
	return nil
}

func (b *LogBackend) EndSpan(ctx context.Context, spanID string, outputs map[string]any, spanErr error) error {
	evt := log.FromCtx(ctx).Debug().Str("span_id", spanID).Interface("outputs", outputs)
	if spanErr != nil {
		evt = evt.AnErr("span_error", spanErr)
	}
	evt.Msg("span ended")
	return nil
}

func (b *LogBackend) Event(ctx context.Context, name, message, level string, metadata map[string]any) error {
	log.FromCtx(ctx).Debug().Str("event", name).Str("level", level).Interface("metadata", metadata).Msg(message)
	return nil
}
