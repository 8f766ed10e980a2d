package trace

import (
	"context"

	"github.com/google/uuid"
	"github.com/sandevgo/botstudio/pkg/log"
)

// Backend receives span and event records. Backends are individually
// fault-tolerant: their failures are logged and never reach the caller.
type Backend interface {
	StartSpan(ctx context.Context, spanID, name string, inputs map[string]any) error
	EndSpan(ctx context.Context, spanID string, outputs map[string]any, spanErr error) error
	Event(ctx context.Context, name, message, level string, metadata map[string]any) error
}

// Recorder fans spans and events out to its backends. With zero backends
// every operation is inert, so an unconfigured recorder costs a branch.
//
// A recorder is an explicit per-orchestration instance, not a process-wide
// singleton.
type Recorder struct {
	backends []Backend
}

func NewRecorder(backends ...Backend) *Recorder {
	return &Recorder{backends: backends}
}

func (r *Recorder) Active() bool {
	return r != nil && len(r.backends) > 0
}

// Span is an open unit of work. It must always be ended, success or error.
type Span struct {
	recorder *Recorder
	id       string
	name     string
	outputs  map[string]any
	ended    bool
}

func (r *Recorder) StartSpan(ctx context.Context, name string, inputs map[string]any) *Span {
	if !r.Active() {
		return &Span{}
	}

	span := &Span{
		recorder: r,
		id:       uuid.NewString(),
		name:     name,
		outputs:  make(map[string]any),
	}
	for _, backend := range r.backends {
		if err := backend.StartSpan(ctx, span.id, name, inputs); err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("span", name).Msg("tracer failed to start span")
		}
	}
	return span
}

func (s *Span) SetOutput(key string, value any) {
	if s.recorder == nil {
		return
	}
	s.outputs[key] = value
}

// End closes the span, attaching accumulated outputs or the error. It is
// safe to call from a defer; repeated calls are ignored.
func (s *Span) End(ctx context.Context, spanErr error) {
	if s.recorder == nil || s.ended {
		return
	}
	s.ended = true

	for _, backend := range s.recorder.backends {
		if err := backend.EndSpan(ctx, s.id, s.outputs, spanErr); err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("span", s.name).Msg("tracer failed to end span")
		}
	}
}

func (r *Recorder) Event(ctx context.Context, name, message, level string, metadata map[string]any) {
	if !r.Active() {
		return
	}

	for _, backend := range r.backends {
		if err := backend.Event(ctx, name, message, level, metadata); err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("event", name).Msg("tracer failed to record event")
		}
	}
}
