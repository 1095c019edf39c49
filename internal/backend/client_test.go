package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "courierchat/internal/errors"
	"courierchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(models.BackendConfig{APIBaseURL: url, TimeoutSec: 5}, "api-token")
}

func TestFetchHistory(t *testing.T) {
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/conversations/alice/bob/messages", r.URL.Path)
		assert.Equal(t, "Bearer api-token", r.Header.Get("Authorization"))

		msgs := []models.Message{
			{Ref: models.ServerRef("m1"), SenderID: "alice", Content: "hi", CreatedAt: base},
			{Ref: models.ServerRef("m2"), SenderID: "bob", Content: "hey", CreatedAt: base.Add(time.Minute)},
		}
		_ = json.NewEncoder(w).Encode(msgs)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	msgs, err := client.FetchHistory(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].Ref.Server)
	assert.Equal(t, "hey", msgs[1].Content)
}

func TestInsertMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req insertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.SenderID)
		assert.Equal(t, "hello", req.Content)

		confirmed := models.Message{
			Ref:        models.ServerRef("srv-1"),
			SenderID:   req.SenderID,
			ReceiverID: req.ReceiverID,
			Type:       req.Type,
			Content:    req.Content,
			Status:     models.StatusSent,
			CreatedAt:  req.CreatedAt,
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(confirmed)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	msg := models.Message{
		Ref:            models.LocalRef("tmp-1"),
		SenderID:       "alice",
		ReceiverID:     "bob",
		Type:           models.TextMessage,
		Content:        "hello",
		IdempotencyKey: "key-1",
		CreatedAt:      time.Now().UTC(),
	}

	confirmed, err := client.InsertMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", confirmed.Ref.Server)
	assert.Equal(t, models.StatusSent, confirmed.Status)
	assert.Equal(t, "key-1", confirmed.IdempotencyKey, "key is carried over when the server omits it")
}

func TestInsertMessageMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.Message{Content: "no id"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.InsertMessage(context.Background(), models.Message{Content: "x"})
	assert.Error(t, err)
}

func TestUpdateStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/messages/srv-1/status", r.URL.Path)

		var req statusRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.StatusRead, req.Status)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assert.NoError(t, client.UpdateStatus(context.Background(), "srv-1", models.StatusRead))
}

func TestSoftDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/messages/srv-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assert.NoError(t, client.SoftDelete(context.Background(), "srv-1"))
}

func TestServerErrorIsRetryableByStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"bad gateway", http.StatusBadGateway, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"request timeout", http.StatusRequestTimeout, true},
		{"bad request", http.StatusBadRequest, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"nope"}`, tt.status)
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			err := client.UpdateStatus(context.Background(), "srv-1", models.StatusRead)
			require.Error(t, err)
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
		})
	}
}

func TestTransportErrorIsRetryable(t *testing.T) {
	client := NewClient(models.BackendConfig{APIBaseURL: "http://127.0.0.1:1", TimeoutSec: 1}, "")
	err := client.SoftDelete(context.Background(), "srv-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}
