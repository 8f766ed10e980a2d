package core

import "context"

// Domain event names emitted during a turn.
const (
	EventHumanSafetyTriggered = "human_safety_layer_triggered"
	EventBotSafetyTriggered   = "bot_safety_layer_triggered"
	EventNewBotMessage        = "new_bot_message"
)

// EventSink receives fire-and-forget domain events. Implementations must
// never block the turn or surface errors to the caller.
type EventSink interface {
	Emit(ctx context.Context, name string, payload map[string]any)
}
