package safety

import (
	"context"
	"fmt"
	"strings"

	"github.com/sandevgo/botstudio/internal/core"
)

// DefaultFallbackResponse is used when a triggered layer configures neither
// a fallback prompt nor a fallback response.
const DefaultFallbackResponse = "Sorry, I can't answer that. Please try something else."

// LayerSpec configures one safety layer.
type LayerSpec struct {
	ID               string
	Prompt           string
	Reviews          core.MessageType // MessageTypeHuman or MessageTypeAI
	FallbackPrompt   string
	FallbackResponse string
}

// Filter classifies candidate messages against one safety layer. Each
// classification runs in its own isolated single-turn conversation; nothing
// it sends or receives is persisted.
type Filter struct {
	spec           LayerSpec
	provider       core.LLMProvider
	sourceMaterial string
}

func NewFilter(spec LayerSpec, provider core.LLMProvider, sourceMaterial string) *Filter {
	return &Filter{
		spec:           spec,
		provider:       provider,
		sourceMaterial: sourceMaterial,
	}
}

func (f *Filter) Spec() LayerSpec {
	return f.spec
}

func (f *Filter) AppliesTo(t core.MessageType) bool {
	return f.spec.Reviews == t
}

// Classify returns true when the text is safe, along with the tokens the
// classification cost. Ambiguous classifier output is treated as unsafe.
func (f *Filter) Classify(ctx context.Context, text string) (bool, core.Usage, error) {
	prompt := strings.ReplaceAll(f.spec.Prompt, "{source_material}", f.sourceMaterial)

	request := []core.Message{
		{Role: core.RoleSystem, Content: prompt},
		{Role: core.RoleUser, Content: text},
	}

	response, usage, err := f.provider.Generate(ctx, request, nil)
	if err != nil {
		return false, usage, fmt.Errorf("safety classification failed: %w", err)
	}

	verdict := strings.ToLower(strings.TrimSpace(response.Content))
	switch {
	case strings.HasPrefix(verdict, "unsafe"):
		return false, usage, nil
	case strings.HasPrefix(verdict, "safe"):
		return true, usage, nil
	default:
		// fail closed
		return false, usage, nil
	}
}
