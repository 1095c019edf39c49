package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"courierchat/internal/errors"
	"courierchat/internal/models"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// subscribeRequest opens the two-party change feed on the vendor channel.
type subscribeRequest struct {
	Action string `json:"action"`
	UserID string `json:"user_id"`
	PeerID string `json:"peer_id"`
}

// typingRequest is the outbound ephemeral typing broadcast.
type typingRequest struct {
	Action   string `json:"action"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// Client is the realtime feed for one conversation: the server pushes
// insert/update/typing frames which are delivered, in arrival order, into
// the channel returned by Subscribe. Ordering correction is the store's job,
// not the transport's. When the read loop fails the event channel is closed,
// signalling the error state to the caller.
type Client struct {
	url          string
	token        string
	pingInterval time.Duration
	bufSize      int
	logger       *logrus.Logger

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	closed  bool
}

func NewClient(cfg models.RealtimeConfig, token string, logger *logrus.Logger) *Client {
	pingInterval := time.Duration(cfg.PingIntervalSec) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	bufSize := cfg.SinkBufferSize
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Client{
		url:          cfg.URL,
		token:        token,
		pingInterval: pingInterval,
		bufSize:      bufSize,
		logger:       logger,
	}
}

// Subscribe dials the channel and starts the read loop. The returned channel
// is closed when the subscription ends, whether by Close or by a transport
// failure.
func (c *Client) Subscribe(ctx context.Context, userID, peerID string) (<-chan models.ChatEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "already subscribed")
	}
	if c.closed {
		return nil, errors.New(errors.ErrCodeInvalidInput, "client is closed")
	}

	dialURL, err := conversationURL(c.url, userID, peerID)
	if err != nil {
		return nil, errors.NewRealtimeError("subscribe", err)
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.Dial(ctx, dialURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, errors.NewRealtimeError("subscribe", err)
	}

	sub := subscribeRequest{Action: "subscribe", UserID: userID, PeerID: peerID}
	if err := wsjson.Write(ctx, conn, sub); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, errors.NewRealtimeError("subscribe", err)
	}

	c.conn = conn
	events := make(chan models.ChatEvent, c.bufSize)

	go c.readLoop(ctx, conn, events)
	go c.pingLoop(ctx, conn)

	return events, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, events chan<- models.ChatEvent) {
	defer close(events)

	for {
		var ev models.ChatEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if ctx.Err() == nil && !c.isClosed() {
				c.logger.WithError(err).Warn("Realtime feed read failed")
			}
			return
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil && !c.isClosed() {
					c.logger.WithError(err).Debug("Realtime keepalive ping failed")
				}
				return
			}
		}
	}
}

// SendTyping broadcasts the ephemeral typing flag. Fire-and-forget from the
// session's point of view; the error is only for logging.
func (c *Client) SendTyping(ctx context.Context, userID string, isTyping bool) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return errors.New(errors.ErrCodeRealtimeChannel, "not subscribed")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsjson.Write(ctx, conn, typingRequest{Action: "typing", UserID: userID, IsTyping: isTyping}); err != nil {
		return errors.NewRealtimeError("typing broadcast", err)
	}
	return nil
}

// Close tears down the subscription. Idempotent; safe on error paths.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "conversation closed")
	c.conn = nil
	if err != nil {
		return errors.NewRealtimeError("close", err)
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func conversationURL(base, userID, peerID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid realtime URL: %w", err)
	}
	q := u.Query()
	q.Set("user", userID)
	q.Set("peer", peerID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
