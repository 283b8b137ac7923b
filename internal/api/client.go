package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"chat-client/internal/models"
)

// SendRequest is the payload of a durable message write.
type SendRequest struct {
	Text      string `json:"text"`
	ReplyToID string `json:"replyToId,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// Service is the collaborator contract the pipeline and session depend on.
// The backend itself is an external system; anything satisfying this
// interface works, which is what the mocks exercise.
type Service interface {
	Conversation(ctx context.Context, conversationID string) (models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, conversationID string, req SendRequest) (models.Message, error)
	EditMessage(ctx context.Context, conversationID, messageID, body string) (models.Message, error)
	DeleteForEveryone(ctx context.Context, conversationID, messageID string) error
	RemoveForMe(ctx context.Context, conversationID, messageID string) error
	React(ctx context.Context, conversationID, messageID, emoji string, added bool) error
	Star(ctx context.Context, conversationID, messageID string, starred bool) error
	Pin(ctx context.Context, conversationID, messageID string, pinned bool) error
	UploadImage(ctx context.Context, name string, content io.Reader) (string, error)
}

// Client talks to the marketplace backend's REST surface.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a Client. The token is sent as a bearer credential on
// every request.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Conversation fetches conversation metadata, including the server-side
// clear time and lock state.
func (c *Client) Conversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := c.do(ctx, http.MethodGet, c.conversationPath(conversationID, ""), nil, &conv)
	return conv, err
}

// ListMessages performs the full fetch used on open and manual refresh.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, c.conversationPath(conversationID, "messages"), nil, &resp)
	return resp.Messages, err
}

// SendMessage performs the durable write behind an optimistic send. The
// returned record carries the server-assigned id and timestamps.
func (c *Client) SendMessage(ctx context.Context, conversationID string, req SendRequest) (models.Message, error) {
	var msg models.Message
	err := c.do(ctx, http.MethodPost, c.conversationPath(conversationID, "messages"), req, &msg)
	return msg, err
}

// EditMessage replaces the body of an existing message.
func (c *Client) EditMessage(ctx context.Context, conversationID, messageID, body string) (models.Message, error) {
	var msg models.Message
	payload := map[string]string{"text": body}
	err := c.do(ctx, http.MethodPatch, c.messagePath(conversationID, messageID, ""), payload, &msg)
	return msg, err
}

// DeleteForEveryone hard-deletes a message for both parties.
func (c *Client) DeleteForEveryone(ctx context.Context, conversationID, messageID string) error {
	return c.do(ctx, http.MethodDelete, c.messagePath(conversationID, messageID, ""), nil, nil)
}

// RemoveForMe mirrors a local tombstone to the server, best effort, so other
// devices of the same user resync the hidden state.
func (c *Client) RemoveForMe(ctx context.Context, conversationID, messageID string) error {
	return c.do(ctx, http.MethodPatch, c.messagePath(conversationID, messageID, "remove-for-me"), nil, nil)
}

// React toggles a reaction. Idempotent given the same desired state.
func (c *Client) React(ctx context.Context, conversationID, messageID, emoji string, added bool) error {
	payload := map[string]any{"emoji": emoji, "added": added}
	return c.do(ctx, http.MethodPatch, c.messagePath(conversationID, messageID, "react"), payload, nil)
}

// Star toggles the caller's star on a message.
func (c *Client) Star(ctx context.Context, conversationID, messageID string, starred bool) error {
	payload := map[string]any{"starred": starred}
	return c.do(ctx, http.MethodPatch, c.messagePath(conversationID, messageID, "star"), payload, nil)
}

// Pin toggles a pin. Pins are time-bounded server-side; the expiry comes
// back through the message record, not this call.
func (c *Client) Pin(ctx context.Context, conversationID, messageID string, pinned bool) error {
	payload := map[string]any{"pinned": pinned}
	return c.do(ctx, http.MethodPatch, c.messagePath(conversationID, messageID, "pin"), payload, nil)
}

// UploadImage streams one attachment and returns its served URL. The
// caller's context aborts the transfer mid-flight.
func (c *Client) UploadImage(ctx context.Context, name string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("read upload %q: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uploads", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", statusError(resp)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return out.URL, nil
}

func (c *Client) conversationPath(conversationID, suffix string) string {
	p := c.baseURL + "/conversations/" + url.PathEscape(conversationID)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) messagePath(conversationID, messageID, suffix string) string {
	p := c.conversationPath(conversationID, "messages") + "/" + url.PathEscape(messageID)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) do(ctx context.Context, method, target string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)
	return &StatusError{Status: resp.StatusCode, Message: payload.Error}
}
