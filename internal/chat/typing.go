package chat

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TypingBroadcaster sends the ephemeral typing signal to the peer.
type TypingBroadcaster interface {
	SendTyping(ctx context.Context, userID string, isTyping bool) error
}

// TypingNotifier debounces the local user's typing broadcasts. The first
// keystroke broadcasts is_typing=true immediately; each keystroke resets the
// idle timer, and only when it expires is a single is_typing=false sent.
// Broadcasts are fire-and-forget: a failed send is logged, never surfaced.
type TypingNotifier struct {
	mu          sync.Mutex
	broadcaster TypingBroadcaster
	logger      *logrus.Logger
	userID      string
	idle        time.Duration
	timer       *time.Timer
	active      bool
}

func NewTypingNotifier(broadcaster TypingBroadcaster, userID string, idle time.Duration, logger *logrus.Logger) *TypingNotifier {
	return &TypingNotifier{
		broadcaster: broadcaster,
		logger:      logger,
		userID:      userID,
		idle:        idle,
	}
}

// Touch records a keystroke.
func (n *TypingNotifier) Touch(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.active {
		n.active = true
		n.broadcast(ctx, true)
	}

	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.idle, n.expire)
}

func (n *TypingNotifier) expire() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.active {
		return
	}
	n.active = false
	n.broadcast(context.Background(), false)
}

// Stop cancels the pending timer and, if a true broadcast is outstanding,
// sends the matching false so the peer is not left with a stale indicator.
func (n *TypingNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	if n.active {
		n.active = false
		n.broadcast(context.Background(), false)
	}
}

func (n *TypingNotifier) broadcast(ctx context.Context, isTyping bool) {
	if err := n.broadcaster.SendTyping(ctx, n.userID, isTyping); err != nil {
		n.logger.WithError(err).WithField("isTyping", isTyping).Debug("Typing broadcast failed")
	}
}

// PeerTyping tracks the peer's advisory typing flag. A stale true that never
// receives its matching false self-limits: the flag expires after the
// configured window without a refreshing broadcast.
type PeerTyping struct {
	mu        sync.Mutex
	typing    bool
	expiresAt time.Time
	expiry    time.Duration
	now       func() time.Time
}

func NewPeerTyping(expiry time.Duration) *PeerTyping {
	return &PeerTyping{
		expiry: expiry,
		now:    time.Now,
	}
}

// Observe records a typing broadcast from the peer.
func (p *PeerTyping) Observe(isTyping bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.typing = isTyping
	if isTyping {
		p.expiresAt = p.now().Add(p.expiry)
	}
}

// IsTyping reports the flag, treating an expired true as false.
func (p *PeerTyping) IsTyping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.typing {
		return false
	}
	if p.now().After(p.expiresAt) {
		p.typing = false
	}
	return p.typing
}
