package chat

import (
	"sort"
	"sync"
	"time"

	"courierchat/internal/models"

	"github.com/google/uuid"
)

// Store maintains the ordered, duplicate-free message sequence for a single
// two-party conversation. It resolves the tension between showing the user
// their message immediately and treating the server as the source of truth:
// outbound messages enter as unconfirmed optimistic entries and are later
// replaced by the server-confirmed record, or marked failed in place.
//
// The mutex guards the sequence only; it is never held across I/O, so
// concurrent sends of different messages do not block each other.
type Store struct {
	mu       sync.Mutex
	messages []models.Message
}

func NewStore() *Store {
	return &Store{}
}

// AppendOptimistic constructs an unconfirmed message from the draft and
// appends it to the sequence. Optimistic entries are always the newest by
// construction, so this is an append rather than a sorted insert. It cannot
// fail; the returned message carries a fresh local ref and idempotency key.
func (s *Store) AppendOptimistic(draft models.Draft, senderID, receiverID string, now time.Time) models.Message {
	msg := models.Message{
		Ref:            models.LocalRef(uuid.NewString()),
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Type:           draft.Type,
		Content:        draft.Content,
		ImageURL:       draft.ImageURL,
		AudioURL:       draft.AudioURL,
		Metadata:       draft.Metadata,
		ReplyTo:        draft.ReplyTo,
		Status:         models.StatusSending,
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return msg
}

// Confirm replaces the entry with the given local id by the server-confirmed
// record, preserving its position. The confirmed entry keeps its local id so
// later lookups by either ref still resolve. A missing local id is a no-op:
// the entry may have been superseded by an echo ingested first.
func (s *Store) Confirm(localID string, confirmed models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if confirmed.Status == "" || confirmed.Status == models.StatusSending {
		confirmed.Status = models.StatusSent
	}

	// The feed may have echoed the confirmed record before the write call
	// returned. In that case the echo already holds the server id; drop the
	// optimistic entry instead of duplicating it.
	for i := range s.messages {
		if confirmed.Ref.Server != "" && s.messages[i].Ref.Server == confirmed.Ref.Server {
			s.messages[i].Ref.Local = localID
			s.removeLocal(localID)
			return
		}
	}

	for i := range s.messages {
		if s.messages[i].Ref.Local == localID {
			confirmed.Ref.Local = localID
			s.messages[i] = confirmed
			return
		}
	}
}

// removeLocal drops an unconfirmed entry; callers hold the mutex.
func (s *Store) removeLocal(localID string) {
	for i := range s.messages {
		if s.messages[i].Ref.IsLocal() && s.messages[i].Ref.Local == localID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// MarkFailed flags the unconfirmed entry as failed, leaving it in place so
// the user can see it and retry. The typed content is never cleared.
func (s *Store) MarkFailed(localID string) bool {
	return s.setStatusByLocal(localID, models.StatusFailed)
}

// MarkSending moves a failed entry back to sending for a retry attempt.
func (s *Store) MarkSending(localID string) bool {
	return s.setStatusByLocal(localID, models.StatusSending)
}

func (s *Store) setStatusByLocal(localID string, status models.MessageStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].Ref.Local == localID {
			if !s.messages[i].Status.CanTransition(status) {
				return false
			}
			s.messages[i].Status = status
			return true
		}
	}
	return false
}

// IngestRemote merges a server-pushed record into the sequence. If a record
// with the same server id already exists it is updated in place, preserving
// its position so the visible list does not jump. Otherwise the record is
// inserted at its created_at position: arrival order does not dictate display
// order. Returns true when a new entry was inserted.
func (s *Store) IngestRemote(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Ref.Server != "" {
		for i := range s.messages {
			if s.messages[i].Ref.Matches(msg.Ref) {
				s.updateInPlace(i, msg)
				return false
			}
		}
	}

	// An echo of our own in-flight send carries the idempotency key of the
	// optimistic entry; treat it as the confirmation it is.
	if msg.IdempotencyKey != "" {
		for i := range s.messages {
			if s.messages[i].Ref.IsLocal() && s.messages[i].IdempotencyKey == msg.IdempotencyKey {
				s.updateInPlace(i, msg)
				return false
			}
		}
	}

	// First entry with a later timestamp marks the insertion point.
	idx := len(s.messages)
	for i := range s.messages {
		if s.messages[i].CreatedAt.After(msg.CreatedAt) {
			idx = i
			break
		}
	}

	s.messages = append(s.messages, models.Message{})
	copy(s.messages[idx+1:], s.messages[idx:])
	s.messages[idx] = msg
	return true
}

// updateInPlace replaces the record at i with the incoming one but never
// regresses status: a stale echo carrying "sent" must not undo a local
// "read". The local id is kept so pending confirms still find the entry.
func (s *Store) updateInPlace(i int, msg models.Message) {
	current := s.messages[i]
	if msg.Status == "" || (current.Status != msg.Status && !current.Status.CanTransition(msg.Status)) {
		msg.Status = current.Status
	}
	msg.Ref.Local = current.Ref.Local
	s.messages[i] = msg
}

// ApplyStatusUpdate sets only the status of the record with the given server
// id, used for read-receipt propagation. Regressions are rejected.
func (s *Store) ApplyStatusUpdate(serverID string, status models.MessageStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].Ref.Server == serverID {
			if !s.messages[i].Status.CanTransition(status) {
				return false
			}
			s.messages[i].Status = status
			return true
		}
	}
	return false
}

// ApplyTombstone soft-deletes the record with the given server id: content is
// replaced, type forced to text, media references dropped.
func (s *Store) ApplyTombstone(serverID string, deletedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].Ref.Server == serverID {
			s.messages[i].Content = models.DeletedTombstone
			s.messages[i].Type = models.TextMessage
			s.messages[i].ImageURL = ""
			s.messages[i].AudioURL = ""
			s.messages[i].Metadata = nil
			s.messages[i].DeletedAt = &deletedAt
			return true
		}
	}
	return false
}

// LoadHistory replaces all confirmed entries with the fetched history while
// keeping unconfirmed and failed local entries at the tail, so an in-flight
// or failed send survives a refresh.
func (s *Store) LoadHistory(history []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []models.Message
	for _, m := range s.messages {
		if m.Ref.IsLocal() {
			pending = append(pending, m)
		}
	}

	merged := make([]models.Message, 0, len(history)+len(pending))
	merged = append(merged, history...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	s.messages = append(merged, pending...)
}

// Get returns a copy of the message matching the ref.
func (s *Store) Get(ref models.MessageRef) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].Ref.Matches(ref) {
			return s.messages[i], true
		}
	}
	return models.Message{}, false
}

// Messages returns a copy of the current sequence in display order.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
