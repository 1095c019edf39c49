package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"courierchat/internal/chat"
	"courierchat/internal/metrics"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *Server {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewServer(map[string]*chat.Session{}, logger)
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleMetrics(t *testing.T) {
	metrics.GetRegistry().Reset()
	metrics.IncrementCounter("test_requests_total", nil)

	server := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_requests_total")
}

func TestHandleMessagesUnknownPeer(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/conversations/nobody/messages", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTypingUnknownPeer(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/conversations/nobody/typing", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
