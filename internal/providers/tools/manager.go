package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sandevgo/botstudio/internal/core"
)

type Handler func(ctx context.Context, args json.RawMessage) (string, error)

type Definition struct {
	Description string
	Schema      string
	Handler     Handler
}

// Provider exposes a named set of tool definitions.
type Provider interface {
	GetDefinitions() map[string]Definition
}

// Manager aggregates local tool providers into a single executor for the
// tool-calling loop.
type Manager struct {
	handlers    map[string]Handler
	definitions []core.Tool
}

func NewManager(providers ...Provider) *Manager {
	m := &Manager{
		handlers: make(map[string]Handler),
	}
	for _, p := range providers {
		for name, def := range p.GetDefinitions() {
			m.handlers[name] = def.Handler
			m.definitions = append(m.definitions, core.Tool{
				Type: "function",
				Function: core.Function{
					Name:        name,
					Description: def.Description,
					Parameters:  json.RawMessage(def.Schema),
				},
			})
		}
	}
	return m
}

func (m *Manager) Definitions(ctx context.Context) []core.Tool {
	return m.definitions
}

func (m *Manager) Execute(ctx context.Context, toolCalls []core.ToolCall) []core.Message {
	var results []core.Message
	for _, tc := range toolCalls {
		res, err := m.callTool(ctx, tc.Function.Name, tc.Function.Arguments)
		if err != nil {
			res = fmt.Sprintf("Error: %v", err)
		}

		results = append(results, core.Message{
			Role:       core.RoleTool,
			Content:    truncate(res),
			ToolCallID: tc.ID,
		})
	}
	return results
}

func (m *Manager) callTool(ctx context.Context, name, args string) (string, error) {
	handler, ok := m.handlers[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return handler(ctx, json.RawMessage(args))
}

func truncate(input string) string {
	const maxLen = 2000
	if len(input) <= maxLen {
		return input
	}

	head := input[:500]
	tail := input[len(input)-(maxLen-500):]
	return fmt.Sprintf("%s\n\n... [TRUNCATED %d bytes] ...\n\n%s", head, len(input)-maxLen, tail)
}
