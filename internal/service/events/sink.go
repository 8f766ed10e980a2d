package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sandevgo/botstudio/pkg/log"
)

// Topic carries every domain event; subscribers filter on the event name.
const Topic = "botstudio.events"

// Sink publishes domain events through watermill. Publishing is
// fire-and-forget: failures are logged and never surfaced to the turn.
type Sink struct {
	publisher message.Publisher
}

func NewSink(publisher message.Publisher) *Sink {
	return &Sink{publisher: publisher}
}

// NewGoChannelSink wires an in-process pub/sub, suitable for single-binary
// deployments. The returned pub/sub should be closed on shutdown.
func NewGoChannelSink() (*Sink, *gochannel.GoChannel) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	return NewSink(pubsub), pubsub
}

type envelope struct {
	Name       string         `json:"name"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func (s *Sink) Emit(ctx context.Context, name string, payload map[string]any) {
	logger := log.FromCtx(ctx)

	body, err := json.Marshal(envelope{
		Name:       name,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		logger.Warn().Err(err).Str("event", name).Msg("failed to marshal event")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set("event", name)

	if err := s.publisher.Publish(Topic, msg); err != nil {
		logger.Warn().Err(err).Str("event", name).Msg("failed to publish event")
	}
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Emit(ctx context.Context, name string, payload map[string]any) {}
