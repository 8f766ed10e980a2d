package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sandevgo/botstudio/internal/core"
)

// Client talks to the OpenAI Assistants v2 API (threads, runs, messages,
// files). It implements core.AssistantClient.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &Client{
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return resp, nil
}

func readError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("http %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
}

type wireRun struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Status   string `json:"status"`
	Usage    *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (r wireRun) toCore() core.AssistantRun {
	run := core.AssistantRun{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Status:   r.Status,
	}
	// usage is null until the run reaches a terminal status
	if r.Usage != nil {
		run.Usage = core.Usage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
		}
	}
	return run
}

type wireAttachment struct {
	FileID string `json:"file_id"`
	Tools  []struct {
		Type string `json:"type"`
	} `json:"tools"`
}

func toWireAttachments(attachments []core.ThreadAttachment) []wireAttachment {
	out := make([]wireAttachment, 0, len(attachments))
	for _, a := range attachments {
		wa := wireAttachment{FileID: a.RemoteFileID}
		wa.Tools = append(wa.Tools, struct {
			Type string `json:"type"`
		}{Type: a.ToolType})
		out = append(out, wa)
	}
	return out
}

func (c *Client) CreateThreadAndRun(ctx context.Context, assistantID, input string, attachments []core.ThreadAttachment) (core.AssistantRun, error) {
	payload := map[string]any{
		"assistant_id": assistantID,
		"thread": map[string]any{
			"messages": []map[string]any{
				{
					"role":        "user",
					"content":     input,
					"attachments": toWireAttachments(attachments),
				},
			},
		},
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/threads/runs", payload)
	if err != nil {
		return core.AssistantRun{}, err
	}
	defer resp.Body.Close()

	return parseRun(resp)
}

func (c *Client) CreateMessage(ctx context.Context, threadID, input string, attachments []core.ThreadAttachment) error {
	payload := map[string]any{
		"role":        "user",
		"content":     input,
		"attachments": toWireAttachments(attachments),
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/threads/"+threadID+"/messages", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return nil
}

func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (core.AssistantRun, error) {
	payload := map[string]any{
		"assistant_id": assistantID,
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/threads/"+threadID+"/runs", payload)
	if err != nil {
		return core.AssistantRun{}, err
	}
	defer resp.Body.Close()

	return parseRun(resp)
}

func (c *Client) RetrieveRun(ctx context.Context, threadID, runID string) (core.AssistantRun, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/threads/"+threadID+"/runs/"+runID, nil)
	if err != nil {
		return core.AssistantRun{}, err
	}
	defer resp.Body.Close()

	return parseRun(resp)
}

func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/threads/"+threadID+"/runs/"+runID+"/cancel", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return nil
}

func parseRun(resp *http.Response) (core.AssistantRun, error) {
	if resp.StatusCode != http.StatusOK {
		return core.AssistantRun{}, readError(resp)
	}

	var run wireRun
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return core.AssistantRun{}, fmt.Errorf("decode run: %w", err)
	}
	return run.toCore(), nil
}

func (c *Client) ListRunMessages(ctx context.Context, threadID, runID string) ([]core.ThreadMessage, error) {
	path := "/v1/threads/" + threadID + "/messages?order=asc&run_id=" + runID
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}

	var list struct {
		Data []struct {
			ID      string `json:"id"`
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text struct {
					Value       string `json:"value"`
					Annotations []struct {
						Type         string `json:"type"`
						Text         string `json:"text"`
						FileCitation *struct {
							FileID string `json:"file_id"`
						} `json:"file_citation"`
						FilePath *struct {
							FileID string `json:"file_id"`
						} `json:"file_path"`
					} `json:"annotations"`
				} `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	var messages []core.ThreadMessage
	for _, m := range list.Data {
		msg := core.ThreadMessage{ID: m.ID, Role: m.Role}
		for _, block := range m.Content {
			if block.Type != "text" {
				continue
			}
			msg.Content += block.Text.Value
			for _, a := range block.Text.Annotations {
				annotation := core.Annotation{Type: a.Type, Text: a.Text}
				switch {
				case a.FileCitation != nil:
					annotation.RemoteFileID = a.FileCitation.FileID
				case a.FilePath != nil:
					annotation.RemoteFileID = a.FilePath.FileID
				}
				msg.Annotations = append(msg.Annotations, annotation)
			}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (c *Client) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("purpose", "assistants"); err != nil {
		return "", fmt.Errorf("write purpose field: %w", err)
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readError(resp)
	}

	var file struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return "", fmt.Errorf("decode file: %w", err)
	}
	return file.ID, nil
}

func (c *Client) RetrieveFile(ctx context.Context, remoteFileID string) (core.RemoteFile, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/files/"+remoteFileID, nil)
	if err != nil {
		return core.RemoteFile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.RemoteFile{}, readError(resp)
	}

	var file struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return core.RemoteFile{}, fmt.Errorf("decode file: %w", err)
	}
	return core.RemoteFile{ID: file.ID, Name: file.Filename}, nil
}

func (c *Client) RetrieveFileContent(ctx context.Context, remoteFileID string) ([]byte, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/files/"+remoteFileID+"/content", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}
	return io.ReadAll(resp.Body)
}
