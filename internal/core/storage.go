package core

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Chat metadata keys.
const (
	MetadataThreadID    = "openai_thread_id"
	MetadataActiveRunID = "openai_active_run_id"
)

// ChatStore is the append-only message store for chats. Messages are
// ordered by creation time and never deleted mid-run.
type ChatStore interface {
	AppendMessage(ctx context.Context, chatID string, msg ChatMessage) (ChatMessage, error)
	Messages(ctx context.Context, chatID string) ([]ChatMessage, error)
	SetSummary(ctx context.Context, messageID int64, summary string) error
	ClearSummary(ctx context.Context, messageID int64) error
	GetMetadata(ctx context.Context, chatID, key string) (string, error)
	SetMetadata(ctx context.Context, chatID, key, value string) error
}

// File is a locally durable file record, keyed by the remote service's id.
type File struct {
	ID         int64
	Name       string
	ExternalID string
}

// FileStore resolves remote file ids to durable local records.
type FileStore interface {
	GetFile(ctx context.Context, id int64) (File, error)
	GetFileByExternalID(ctx context.Context, externalID string) (File, error)
	CreateFile(ctx context.Context, file File, content []byte) (File, error)
	FileContent(ctx context.Context, id int64) ([]byte, error)
}
