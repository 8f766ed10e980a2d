package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sandevgo/botstudio/internal/core"
	"github.com/sandevgo/botstudio/pkg/log"
)

type ChatsRepo struct {
	db *sql.DB
}

func NewChatsRepo(db *sql.DB) *ChatsRepo {
	return &ChatsRepo{db: db}
}

func (r *ChatsRepo) AppendMessage(ctx context.Context, chatID string, msg core.ChatMessage) (core.ChatMessage, error) {
	fileIDsJSON, err := json.Marshal(msg.FileIDs)
	if err != nil {
		return core.ChatMessage{}, fmt.Errorf("failed to marshal file ids: %w", err)
	}

	// Empty slice is stored as empty string to save space
	fidStr := string(fileIDsJSON)
	if fidStr == "null" || fidStr == "[]" {
		fidStr = ""
	}

	query := `INSERT INTO chat_messages (chat_id, type, content, summary, file_ids) VALUES (?, ?, ?, NULLIF(?, ''), ?)`
	res, err := r.db.ExecContext(ctx, query, chatID, string(msg.Type), msg.Content, msg.Summary, fidStr)
	if err != nil {
		return core.ChatMessage{}, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.ChatMessage{}, err
	}

	msg.ID = id
	return msg, nil
}

func (r *ChatsRepo) Messages(ctx context.Context, chatID string) ([]core.ChatMessage, error) {
	query := `SELECT id, type, content, summary, file_ids, created_at FROM chat_messages WHERE chat_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []core.ChatMessage
	for rows.Next() {
		var msg core.ChatMessage
		var msgType string
		var summary, fileIDs sql.NullString

		if err := rows.Scan(&msg.ID, &msgType, &msg.Content, &summary, &fileIDs, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.Type = core.MessageType(msgType)
		msg.Summary = summary.String

		if fileIDs.Valid && fileIDs.String != "" {
			if err := json.Unmarshal([]byte(fileIDs.String), &msg.FileIDs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal file ids: %w", err)
			}
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.FromCtx(ctx).Debug().Int("count", len(messages)).Msg("loaded chat messages")
	return messages, nil
}

func (r *ChatsRepo) SetSummary(ctx context.Context, messageID int64, summary string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_messages SET summary = ? WHERE id = ?`, summary, messageID)
	if err != nil {
		return fmt.Errorf("failed to set summary: %w", err)
	}
	return nil
}

func (r *ChatsRepo) ClearSummary(ctx context.Context, messageID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_messages SET summary = NULL WHERE id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("failed to clear summary: %w", err)
	}
	return nil
}

func (r *ChatsRepo) GetMetadata(ctx context.Context, chatID, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM chat_metadata WHERE chat_id = ? AND key = ?`, chatID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", core.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}
	return value, nil
}

func (r *ChatsRepo) SetMetadata(ctx context.Context, chatID, key, value string) error {
	query := `INSERT INTO chat_metadata (chat_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT (chat_id, key) DO UPDATE SET value = excluded.value`
	if _, err := r.db.ExecContext(ctx, query, chatID, key, value); err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}
	return nil
}
