package core

import "fmt"

// ChatError indicates a malformed conversation setup. It is raised before
// any history is written.
type ChatError struct {
	Reason string
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("chat configuration error: %s", e.Reason)
}

// GenerationError indicates a remote generation failure, including bounded
// retry exhaustion and thread id mismatches. Any human input appended before
// the failure remains in history.
type GenerationError struct {
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("generation error: %s", e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// GenerationCancelled is raised when a remote run terminates with status
// "cancelled" without local intent. Callers may surface it differently from
// a hard failure.
type GenerationCancelled struct {
	RunID string
}

func (e *GenerationCancelled) Error() string {
	return fmt.Sprintf("generation cancelled: run %s", e.RunID)
}
