package generator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sandevgo/botstudio/internal/core"
	"github.com/sandevgo/botstudio/pkg/log"
)

const (
	annotationFileCitation = "file_citation"
	annotationFilePath     = "file_path"
)

// collectResponse fetches the run's assistant messages and rewrites remote
// file annotations into durable local links. It returns the rewritten text
// and the remote file ids cited by it.
func (b *AssistantBot) collectResponse(ctx context.Context, run core.AssistantRun) (string, []string, error) {
	messages, err := b.client.ListRunMessages(ctx, run.ThreadID, run.ID)
	if err != nil {
		return "", nil, &core.GenerationError{Message: "failed to list run messages", Err: err}
	}

	var parts []string
	var cited []string
	for _, msg := range messages {
		if msg.Role != core.RoleAssistant {
			continue
		}
		text := msg.Content
		for _, ann := range msg.Annotations {
			text = b.rewriteAnnotation(ctx, text, ann)
			if ann.RemoteFileID != "" {
				cited = append(cited, ann.RemoteFileID)
			}
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), cited, nil
}

// rewriteAnnotation replaces one annotated span with a local file link.
// Rewrites never fail the turn: an unresolvable annotation is left as an
// empty link so the reply stays readable.
func (b *AssistantBot) rewriteAnnotation(ctx context.Context, text string, ann core.Annotation) string {
	switch ann.Type {
	case annotationFilePath:
		file, err := b.localFile(ctx, ann.RemoteFileID, true)
		if err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("remote_file_id", ann.RemoteFileID).Msg("failed to resolve generated file")
			return text
		}
		return strings.Replace(text, ann.Text, b.fileLink(file), 1)
	case annotationFileCitation:
		file, err := b.localFile(ctx, ann.RemoteFileID, false)
		if err == nil {
			return strings.Replace(text, ann.Text, fmt.Sprintf(" [%s](%s)", file.Name, b.fileLink(file)), 1)
		}
		// The cited file was never uploaded through us; the best we can do
		// is name it.
		remote, rerr := b.client.RetrieveFile(ctx, ann.RemoteFileID)
		if rerr != nil {
			log.FromCtx(ctx).Warn().Err(rerr).Str("remote_file_id", ann.RemoteFileID).Msg("failed to resolve cited file")
			return strings.Replace(text, ann.Text, "", 1)
		}
		return strings.Replace(text, ann.Text, fmt.Sprintf(" [%s]()", remote.Name), 1)
	default:
		return text
	}
}

// localFile resolves a remote file id to a local record, optionally pulling
// the file down on first sight.
func (b *AssistantBot) localFile(ctx context.Context, remoteFileID string, fetch bool) (core.File, error) {
	file, err := b.files.GetFileByExternalID(ctx, remoteFileID)
	if err == nil {
		return file, nil
	}
	if err != core.ErrNotFound || !fetch {
		return core.File{}, err
	}

	remote, err := b.client.RetrieveFile(ctx, remoteFileID)
	if err != nil {
		return core.File{}, fmt.Errorf("failed to retrieve file %s: %w", remoteFileID, err)
	}
	content, err := b.client.RetrieveFileContent(ctx, remoteFileID)
	if err != nil {
		return core.File{}, fmt.Errorf("failed to download file %s: %w", remoteFileID, err)
	}
	created, err := b.files.CreateFile(ctx, core.File{Name: remote.Name, ExternalID: remoteFileID}, content)
	if err != nil {
		return core.File{}, fmt.Errorf("failed to store file %s: %w", remoteFileID, err)
	}
	return created, nil
}

func (b *AssistantBot) fileLink(file core.File) string {
	return "file:" + b.memory.ChatID() + ":" + strconv.FormatInt(file.ID, 10)
}
