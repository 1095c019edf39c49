package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"courierchat/internal/models"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server

	subscribes chan subscribeRequest
	typings    chan typingRequest
	conns      chan *websocket.Conn
	authHeader chan string
}

// newTestServer accepts one websocket connection at a time, records the
// subscribe handshake and any typing frames, and hands the raw connection
// to the test for pushing events.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		subscribes: make(chan subscribeRequest, 4),
		typings:    make(chan typingRequest, 4),
		conns:      make(chan *websocket.Conn, 4),
		authHeader: make(chan string, 4),
	}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.authHeader <- r.Header.Get("Authorization")

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("accept failed: %v", err)
			return
		}

		ctx := r.Context()
		var sub subscribeRequest
		if err := wsjson.Read(ctx, conn, &sub); err != nil {
			return
		}
		ts.subscribes <- sub
		ts.conns <- conn

		for {
			var req typingRequest
			if err := wsjson.Read(ctx, conn, &req); err != nil {
				return
			}
			ts.typings <- req
		}
	}))
	t.Cleanup(ts.Server.Close)
	return ts
}

func wsURL(s *httptest.Server) string {
	return strings.Replace(s.URL, "http://", "ws://", 1)
}

func newTestClient(ts *testServer) *Client {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	cfg := models.RealtimeConfig{URL: wsURL(ts.Server), PingIntervalSec: 60, SinkBufferSize: 8}
	return NewClient(cfg, "feed-token", logger)
}

func TestSubscribeHandshake(t *testing.T) {
	ts := newTestServer(t)
	client := newTestClient(ts)
	defer func() { _ = client.Close() }()

	events, err := client.Subscribe(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, events)

	assert.Equal(t, "Bearer feed-token", <-ts.authHeader)

	sub := <-ts.subscribes
	assert.Equal(t, "subscribe", sub.Action)
	assert.Equal(t, "alice", sub.UserID)
	assert.Equal(t, "bob", sub.PeerID)
}

func TestSubscribeTwiceRejected(t *testing.T) {
	ts := newTestServer(t)
	client := newTestClient(ts)
	defer func() { _ = client.Close() }()

	_, err := client.Subscribe(context.Background(), "alice", "bob")
	require.NoError(t, err)

	_, err = client.Subscribe(context.Background(), "alice", "bob")
	assert.Error(t, err)
}

func TestSubscribeDialFailure(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	cfg := models.RealtimeConfig{URL: "ws://127.0.0.1:1", PingIntervalSec: 60}
	client := NewClient(cfg, "", logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.Subscribe(ctx, "alice", "bob")
	assert.Error(t, err)
}

func TestEventsDelivered(t *testing.T) {
	ts := newTestServer(t)
	client := newTestClient(ts)
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	events, err := client.Subscribe(ctx, "alice", "bob")
	require.NoError(t, err)

	serverConn := <-ts.conns
	msg := models.Message{
		Ref:       models.ServerRef("srv-1"),
		SenderID:  "bob",
		Content:   "hello",
		Type:      models.TextMessage,
		Status:    models.StatusSent,
		CreatedAt: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, wsjson.Write(ctx, serverConn, models.ChatEvent{Kind: models.EventInsert, Message: &msg}))

	select {
	case ev := <-events:
		assert.Equal(t, models.EventInsert, ev.Kind)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "srv-1", ev.Message.Ref.Server)
		assert.Equal(t, "hello", ev.Message.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestTypingEventDelivered(t *testing.T) {
	ts := newTestServer(t)
	client := newTestClient(ts)
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	events, err := client.Subscribe(ctx, "alice", "bob")
	require.NoError(t, err)

	serverConn := <-ts.conns
	typing := models.TypingStatus{UserID: "bob", IsTyping: true}
	require.NoError(t, wsjson.Write(ctx, serverConn, models.ChatEvent{Kind: models.EventTyping, Typing: &typing}))

	select {
	case ev := <-events:
		assert.Equal(t, models.EventTyping, ev.Kind)
		require.NotNil(t, ev.Typing)
		assert.Equal(t, "bob", ev.Typing.UserID)
		assert.True(t, ev.Typing.IsTyping)
	case <-time.After(2 * time.Second):
		t.Fatal("typing event was not delivered")
	}
}

func TestSendTyping(t *testing.T) {
	ts := newTestServer(t)
	client := newTestClient(ts)
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	_, err := client.Subscribe(ctx, "alice", "bob")
	require.NoError(t, err)
	<-ts.conns

	require.NoError(t, client.SendTyping(ctx, "alice", true))

	select {
	case req := <-ts.typings:
		assert.Equal(t, "typing", req.Action)
		assert.Equal(t, "alice", req.UserID)
		assert.True(t, req.IsTyping)
	case <-time.After(2 * time.Second):
		t.Fatal("typing frame never reached the server")
	}
}

func TestSendTypingWithoutSubscription(t *testing.T) {
	ts := newTestServer(t)
	client := newTestClient(ts)

	err := client.SendTyping(context.Background(), "alice", true)
	assert.Error(t, err)
}

func TestServerCloseClosesChannel(t *testing.T) {
	ts := newTestServer(t)
	client := newTestClient(ts)
	defer func() { _ = client.Close() }()

	events, err := client.Subscribe(context.Background(), "alice", "bob")
	require.NoError(t, err)

	serverConn := <-ts.conns
	require.NoError(t, serverConn.Close(websocket.StatusGoingAway, "restarting"))

	select {
	case _, ok := <-events:
		assert.False(t, ok, "channel must close when the feed drops")
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after server disconnect")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	client := newTestClient(ts)

	events, err := client.Subscribe(context.Background(), "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after Close")
	}

	_, err = client.Subscribe(context.Background(), "alice", "bob")
	assert.Error(t, err, "closed client must not resubscribe")
}
