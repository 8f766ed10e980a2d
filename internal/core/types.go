package core

import (
	"encoding/json"
	"time"
)

const (
	BotName      = "BotStudio"
	BotUserAgent = "BotStudio-Engine/0.1"
	BotVersion   = "0.1.0"
)

// Wire-level roles for LLM calls.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// MessageType classifies persisted chat messages.
type MessageType string

const (
	MessageTypeHuman  MessageType = "human"
	MessageTypeAI     MessageType = "ai"
	MessageTypeSystem MessageType = "system"
)

// Role maps a persisted message type onto the wire-level role.
func (t MessageType) Role() string {
	switch t {
	case MessageTypeHuman:
		return RoleUser
	case MessageTypeAI:
		return RoleAssistant
	default:
		return RoleSystem
	}
}

type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is the wire format sent to and received from an LLM.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ChatMessage is a persisted message within a chat.
//
// At most one message in a chat carries a non-empty Summary. It condenses
// everything older than that message, which is why reads that honor the
// summary stop there.
type ChatMessage struct {
	ID        int64
	Type      MessageType
	Content   string
	Summary   string
	FileIDs   []string // remote file ids associated with this message
	CreatedAt time.Time
}

// ToWire converts the persisted message into its wire representation.
func (m ChatMessage) ToWire() Message {
	return Message{Role: m.Type.Role(), Content: m.Content}
}

// SummaryToWire renders the summary as a stand-alone system message.
func (m ChatMessage) SummaryToWire() Message {
	return Message{Role: RoleSystem, Content: m.Summary}
}

// Usage carries token counts for a single LLM call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// InvocationResult is the transient outcome of one generator invocation.
// Callers aggregate the token counts; the result itself is never persisted.
type InvocationResult struct {
	Output           string
	PromptTokens     int
	CompletionTokens int
	ProcessorID      string
}

// Attachment references a locally stored file that should accompany the
// user input, tagged with the remote tool it is destined for.
type Attachment struct {
	ToolType string // "code_interpreter" or "file_search"
	FileID   int64
}
