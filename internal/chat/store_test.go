package chat

import (
	"testing"
	"time"

	"courierchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func textDraft(content string) models.Draft {
	return models.Draft{Type: models.TextMessage, Content: content}
}

func remoteMessage(id string, at time.Time) models.Message {
	return models.Message{
		Ref:        models.ServerRef(id),
		SenderID:   "peer",
		ReceiverID: "me",
		Type:       models.TextMessage,
		Content:    "from " + id,
		Status:     models.StatusSent,
		CreatedAt:  at,
	}
}

func TestAppendOptimistic(t *testing.T) {
	s := NewStore()
	msg := s.AppendOptimistic(textDraft("hello"), "me", "peer", baseTime)

	assert.True(t, msg.Ref.IsLocal())
	assert.NotEmpty(t, msg.Ref.Local)
	assert.NotEmpty(t, msg.IdempotencyKey)
	assert.Equal(t, models.StatusSending, msg.Status)
	assert.Equal(t, 1, s.Len())
}

func TestConfirmReplacesInPlace(t *testing.T) {
	s := NewStore()
	msg := s.AppendOptimistic(textDraft("hello"), "me", "peer", baseTime)

	confirmed := msg
	confirmed.Ref = models.ServerRef("srv-1")
	confirmed.Status = models.StatusSent
	s.Confirm(msg.Ref.Local, confirmed)

	require.Equal(t, 1, s.Len())
	got := s.Messages()[0]
	assert.Equal(t, "srv-1", got.Ref.Server)
	assert.Equal(t, msg.Ref.Local, got.Ref.Local)
	assert.Equal(t, models.StatusSent, got.Status)
}

func TestConfirmUnknownLocalIDIsNoOp(t *testing.T) {
	s := NewStore()
	s.AppendOptimistic(textDraft("hello"), "me", "peer", baseTime)

	assert.NotPanics(t, func() {
		s.Confirm("no-such-id", remoteMessage("srv-9", baseTime))
	})
	assert.Equal(t, 1, s.Len())
}

func TestConfirmAfterEchoDoesNotDuplicate(t *testing.T) {
	s := NewStore()
	msg := s.AppendOptimistic(textDraft("hello"), "me", "peer", baseTime)

	// The realtime echo lands before the write call returns.
	echo := remoteMessage("srv-1", baseTime)
	echo.IdempotencyKey = msg.IdempotencyKey
	s.IngestRemote(echo)
	require.Equal(t, 1, s.Len())

	confirmed := msg
	confirmed.Ref = models.ServerRef("srv-1")
	s.Confirm(msg.Ref.Local, confirmed)

	require.Equal(t, 1, s.Len())
	assert.Equal(t, "srv-1", s.Messages()[0].Ref.Server)
}

func TestOptimisticOrderingIndependentOfResolution(t *testing.T) {
	s := NewStore()
	a := s.AppendOptimistic(textDraft("A"), "me", "peer", baseTime)
	b := s.AppendOptimistic(textDraft("B"), "me", "peer", baseTime.Add(time.Second))

	// B resolves before A; display order must stay A then B.
	confirmedB := b
	confirmedB.Ref = models.ServerRef("srv-b")
	s.Confirm(b.Ref.Local, confirmedB)

	confirmedA := a
	confirmedA.Ref = models.ServerRef("srv-a")
	s.Confirm(a.Ref.Local, confirmedA)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "A", msgs[0].Content)
	assert.Equal(t, "B", msgs[1].Content)
}

func TestIngestRemoteOrdersByCreatedAt(t *testing.T) {
	s := NewStore()
	t1 := baseTime
	t2 := baseTime.Add(time.Minute)
	t3 := baseTime.Add(2 * time.Minute)

	// Arrival order t1, t3, t2.
	s.IngestRemote(remoteMessage("m1", t1))
	s.IngestRemote(remoteMessage("m3", t3))
	s.IngestRemote(remoteMessage("m2", t2))

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].Ref.Server)
	assert.Equal(t, "m2", msgs[1].Ref.Server)
	assert.Equal(t, "m3", msgs[2].Ref.Server)
}

func TestIngestRemoteEchoUpdatesInPlace(t *testing.T) {
	s := NewStore()
	msg := s.AppendOptimistic(textDraft("hello"), "me", "peer", baseTime)
	confirmed := msg
	confirmed.Ref = models.ServerRef("srv-1")
	s.Confirm(msg.Ref.Local, confirmed)

	echo := remoteMessage("srv-1", baseTime)
	echo.Content = "hello"
	inserted := s.IngestRemote(echo)

	assert.False(t, inserted)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, "srv-1", s.Messages()[0].Ref.Server)
}

func TestIngestRemoteUpdateDoesNotRegressStatus(t *testing.T) {
	s := NewStore()
	s.IngestRemote(remoteMessage("m1", baseTime))
	require.True(t, s.ApplyStatusUpdate("m1", models.StatusRead))

	stale := remoteMessage("m1", baseTime)
	stale.Status = models.StatusSent
	s.IngestRemote(stale)

	assert.Equal(t, models.StatusRead, s.Messages()[0].Status)
}

func TestFailedSendIsVisibleAndRetryable(t *testing.T) {
	s := NewStore()
	msg := s.AppendOptimistic(textDraft("important"), "me", "peer", baseTime)

	require.True(t, s.MarkFailed(msg.Ref.Local))
	got, ok := s.Get(models.LocalRef(msg.Ref.Local))
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "important", got.Content, "typed content must survive a failed send")

	// Retry: failed -> sending -> sent, no duplicate entry.
	require.True(t, s.MarkSending(msg.Ref.Local))
	confirmed := msg
	confirmed.Ref = models.ServerRef("srv-1")
	s.Confirm(msg.Ref.Local, confirmed)

	require.Equal(t, 1, s.Len())
	assert.Equal(t, models.StatusSent, s.Messages()[0].Status)
}

func TestMarkFailedRejectsDeliveredMessage(t *testing.T) {
	s := NewStore()
	msg := s.AppendOptimistic(textDraft("x"), "me", "peer", baseTime)
	confirmed := msg
	confirmed.Ref = models.ServerRef("srv-1")
	confirmed.Status = models.StatusDelivered
	s.Confirm(msg.Ref.Local, confirmed)

	assert.False(t, s.MarkFailed(msg.Ref.Local))
}

func TestApplyStatusUpdate(t *testing.T) {
	s := NewStore()
	s.IngestRemote(remoteMessage("m1", baseTime))

	assert.True(t, s.ApplyStatusUpdate("m1", models.StatusDelivered))
	assert.True(t, s.ApplyStatusUpdate("m1", models.StatusRead))
	assert.False(t, s.ApplyStatusUpdate("m1", models.StatusDelivered), "status must not regress")
	assert.False(t, s.ApplyStatusUpdate("missing", models.StatusRead))
}

func TestApplyTombstone(t *testing.T) {
	s := NewStore()
	msg := remoteMessage("m1", baseTime)
	msg.Type = models.ImageMessage
	msg.Content = ""
	msg.ImageURL = "https://cdn.example.com/pic.jpg"
	s.IngestRemote(msg)

	deletedAt := baseTime.Add(time.Hour)
	require.True(t, s.ApplyTombstone("m1", deletedAt))

	got := s.Messages()[0]
	assert.Equal(t, models.DeletedTombstone, got.Content)
	assert.Equal(t, models.TextMessage, got.Type)
	assert.Empty(t, got.ImageURL)
	require.NotNil(t, got.DeletedAt)
	assert.Equal(t, deletedAt, *got.DeletedAt)
}

func TestLoadHistoryKeepsPendingEntries(t *testing.T) {
	s := NewStore()
	pending := s.AppendOptimistic(textDraft("unsent"), "me", "peer", baseTime.Add(time.Hour))
	require.True(t, s.MarkFailed(pending.Ref.Local))

	history := []models.Message{
		remoteMessage("m2", baseTime.Add(time.Minute)),
		remoteMessage("m1", baseTime),
	}
	s.LoadHistory(history)

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].Ref.Server)
	assert.Equal(t, "m2", msgs[1].Ref.Server)
	assert.Equal(t, "unsent", msgs[2].Content)
	assert.Equal(t, models.StatusFailed, msgs[2].Status)
}

func TestLoadHistoryEmpty(t *testing.T) {
	s := NewStore()
	s.LoadHistory(nil)
	assert.Equal(t, 0, s.Len())
}
