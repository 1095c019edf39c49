package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []bool
}

func (r *recordingBroadcaster) SendTyping(ctx context.Context, userID string, isTyping bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, isTyping)
	return nil
}

func (r *recordingBroadcaster) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.calls))
	copy(out, r.calls)
	return out
}

func TestTypingDebounce(t *testing.T) {
	b := &recordingBroadcaster{}
	n := NewTypingNotifier(b, "me", 80*time.Millisecond, logrus.New())

	// Five keystrokes inside the idle window.
	for i := 0; i < 5; i++ {
		n.Touch(context.Background())
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, []bool{true}, b.snapshot(), "only the first keystroke broadcasts")

	require.Eventually(t, func() bool {
		calls := b.snapshot()
		return len(calls) == 2 && !calls[1]
	}, time.Second, 10*time.Millisecond, "exactly one false after the idle window")

	// No further broadcasts without new keystrokes.
	time.Sleep(120 * time.Millisecond)
	assert.Len(t, b.snapshot(), 2)
}

func TestTypingNewBurstBroadcastsAgain(t *testing.T) {
	b := &recordingBroadcaster{}
	n := NewTypingNotifier(b, "me", 30*time.Millisecond, logrus.New())

	n.Touch(context.Background())
	require.Eventually(t, func() bool { return len(b.snapshot()) == 2 }, time.Second, 5*time.Millisecond)

	n.Touch(context.Background())
	require.Eventually(t, func() bool { return len(b.snapshot()) == 4 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []bool{true, false, true, false}, b.snapshot())
}

func TestTypingStopSendsFalseWhenActive(t *testing.T) {
	b := &recordingBroadcaster{}
	n := NewTypingNotifier(b, "me", time.Minute, logrus.New())

	n.Touch(context.Background())
	n.Stop()

	assert.Equal(t, []bool{true, false}, b.snapshot())

	// Stop when idle is a no-op.
	n.Stop()
	assert.Len(t, b.snapshot(), 2)
}

func TestPeerTypingExpires(t *testing.T) {
	p := NewPeerTyping(5 * time.Second)
	current := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return current }

	assert.False(t, p.IsTyping())

	p.Observe(true)
	assert.True(t, p.IsTyping())

	// No matching false ever arrives; the flag self-expires.
	current = current.Add(6 * time.Second)
	assert.False(t, p.IsTyping())
}

func TestPeerTypingExplicitFalse(t *testing.T) {
	p := NewPeerTyping(5 * time.Second)
	p.Observe(true)
	assert.True(t, p.IsTyping())
	p.Observe(false)
	assert.False(t, p.IsTyping())
}

func TestPeerTypingRefreshExtendsExpiry(t *testing.T) {
	p := NewPeerTyping(5 * time.Second)
	current := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return current }

	p.Observe(true)
	current = current.Add(4 * time.Second)
	p.Observe(true)
	current = current.Add(4 * time.Second)
	assert.True(t, p.IsTyping())
}
