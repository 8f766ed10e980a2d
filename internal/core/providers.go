package core

import "context"

// LLMProvider is the chat-completion capability: one call in, one generated
// message plus token usage out.
type LLMProvider interface {
	Generate(ctx context.Context, messages []Message, tools []Tool) (Message, Usage, error)
}

// ToolExecutor resolves a set of tool calls into tool-role result messages.
type ToolExecutor interface {
	Definitions(ctx context.Context) []Tool
	Execute(ctx context.Context, toolCalls []ToolCall) []Message
}

// AssistantRun mirrors one remote execution of an assistant on a thread.
type AssistantRun struct {
	ID       string
	ThreadID string
	Status   string
	Usage    Usage
}

// Remote run terminal statuses.
const (
	RunStatusQueued     = "queued"
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
	RunStatusCancelled  = "cancelled"
	RunStatusFailed     = "failed"
	RunStatusExpired    = "expired"
)

// ThreadAttachment binds an uploaded remote file to the tool that may use it.
type ThreadAttachment struct {
	RemoteFileID string
	ToolType     string
}

// Annotation marks a span of assistant output that references a remote file.
type Annotation struct {
	Type         string // "file_citation" or "file_path"
	Text         string // the literal text to be rewritten
	RemoteFileID string
}

// ThreadMessage is an assistant-authored message fetched from a remote thread.
type ThreadMessage struct {
	ID          string
	Role        string
	Content     string
	Annotations []Annotation
}

// RemoteFile describes a file stored by the remote assistant service.
type RemoteFile struct {
	ID   string
	Name string
}

// AssistantClient is the stateful remote thread+run service. The remote side
// owns conversation state once a thread exists.
type AssistantClient interface {
	CreateThreadAndRun(ctx context.Context, assistantID, input string, attachments []ThreadAttachment) (AssistantRun, error)
	CreateMessage(ctx context.Context, threadID, input string, attachments []ThreadAttachment) error
	CreateRun(ctx context.Context, threadID, assistantID string) (AssistantRun, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (AssistantRun, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	ListRunMessages(ctx context.Context, threadID, runID string) ([]ThreadMessage, error)
	UploadFile(ctx context.Context, name string, data []byte) (string, error)
	RetrieveFile(ctx context.Context, remoteFileID string) (RemoteFile, error)
	RetrieveFileContent(ctx context.Context, remoteFileID string) ([]byte, error)
}
