package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"courierchat/internal/errors"
	"courierchat/internal/models"
)

// Client talks to the message backend over JSON HTTP. Every mutating call is
// retry-safe: inserts carry the client idempotency key, status and delete
// updates are naturally idempotent on the server side.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(cfg models.BackendConfig, token string) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.APIBaseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchHistory loads the full conversation between the two users, ascending
// by creation time.
func (c *Client) FetchHistory(ctx context.Context, userA, userB string) ([]models.Message, error) {
	endpoint := fmt.Sprintf("/v1/conversations/%s/%s/messages", url.PathEscape(userA), url.PathEscape(userB))

	var messages []models.Message
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// InsertMessage persists a new message and returns the server record with its
// assigned id. The Idempotency-Key header lets the server collapse retries of
// the same logical send into one row.
func (c *Client) InsertMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	body := insertRequest{
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Type:       msg.Type,
		Content:    msg.Content,
		ImageURL:   msg.ImageURL,
		AudioURL:   msg.AudioURL,
		Metadata:   msg.Metadata,
		ReplyTo:    msg.ReplyTo,
		CreatedAt:  msg.CreatedAt,
	}

	headers := map[string]string{}
	if msg.IdempotencyKey != "" {
		headers["Idempotency-Key"] = msg.IdempotencyKey
	}

	var confirmed models.Message
	if err := c.doJSON(ctx, http.MethodPost, "/v1/messages", headers, body, &confirmed); err != nil {
		return nil, err
	}
	if confirmed.Ref.Server == "" {
		return nil, errors.New(errors.ErrCodeBackendAPI, "insert response missing message id")
	}
	if confirmed.IdempotencyKey == "" {
		confirmed.IdempotencyKey = msg.IdempotencyKey
	}
	return &confirmed, nil
}

// UpdateStatus advances the delivery status of a message.
func (c *Client) UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error {
	endpoint := fmt.Sprintf("/v1/messages/%s/status", url.PathEscape(id))
	return c.doJSON(ctx, http.MethodPatch, endpoint, nil, statusRequest{Status: status}, nil)
}

// SoftDelete asks the server to tombstone a message. The row survives with
// its content rewritten; hard deletion is the retention job's business.
func (c *Client) SoftDelete(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("/v1/messages/%s", url.PathEscape(id))
	return c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil, nil)
}

type insertRequest struct {
	SenderID   string                `json:"sender_id"`
	ReceiverID string                `json:"receiver_id"`
	Type       models.MessageType    `json:"type"`
	Content    string                `json:"content,omitempty"`
	ImageURL   string                `json:"image_url,omitempty"`
	AudioURL   string                `json:"audio_url,omitempty"`
	Metadata   *models.MediaMetadata `json:"metadata,omitempty"`
	ReplyTo    string                `json:"reply_to,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

type statusRequest struct {
	Status models.MessageStatus `json:"status"`
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, headers map[string]string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewBackendError(endpoint, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little of the body for the error context; the server
		// sends short JSON error envelopes.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.NewBackendError(endpoint, resp.StatusCode,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewBackendError(endpoint, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
