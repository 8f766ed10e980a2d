package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sandevgo/botstudio/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTools struct {
	defs map[string]Definition
}

func (s staticTools) GetDefinitions() map[string]Definition { return s.defs }

func TestManager_DefinitionsAndExecute(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(staticTools{defs: map[string]Definition{
		"shout": {
			Description: "uppercases the input",
			Schema:      `{"type":"object","properties":{"text":{"type":"string"}}}`,
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				var params struct {
					Text string `json:"text"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return "", err
				}
				return strings.ToUpper(params.Text), nil
			},
		},
	}})

	defs := manager.Definitions(ctx)
	require.Len(t, defs, 1)
	assert.Equal(t, "shout", defs[0].Function.Name)
	assert.Equal(t, "function", defs[0].Type)

	results := manager.Execute(ctx, []core.ToolCall{{
		ID:       "call_1",
		Type:     "function",
		Function: core.FunctionCall{Name: "shout", Arguments: `{"text":"hello"}`},
	}})
	require.Len(t, results, 1)
	assert.Equal(t, core.RoleTool, results[0].Role)
	assert.Equal(t, "call_1", results[0].ToolCallID)
	assert.Equal(t, "HELLO", results[0].Content)
}

func TestManager_UnknownToolReportsError(t *testing.T) {
	ctx := context.Background()
	manager := NewManager()

	results := manager.Execute(ctx, []core.ToolCall{{
		ID:       "call_1",
		Function: core.FunctionCall{Name: "nope", Arguments: `{}`},
	}})
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "unknown tool")
}

func TestTruncate_KeepsHeadAndTail(t *testing.T) {
	long := strings.Repeat("a", 1000) + strings.Repeat("z", 2000)
	out := truncate(long)

	assert.Less(t, len(out), len(long))
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 500)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("z", 1500)))
	assert.Contains(t, out, "TRUNCATED")
}
