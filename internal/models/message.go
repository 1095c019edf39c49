package models

import (
	"time"
)

type MessageType string

const (
	TextMessage  MessageType = "text"
	ImageMessage MessageType = "image"
	AudioMessage MessageType = "audio"
)

type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// statusRank orders the forward-only part of the lifecycle.
var statusRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// CanTransition reports whether a status change is legal. Status only moves
// forward along sending -> sent -> delivered -> read; sending and sent may
// fail, and a failed message may go back to sending on retry.
func (s MessageStatus) CanTransition(to MessageStatus) bool {
	if s == to {
		return false
	}
	if to == StatusFailed {
		return s == StatusSending || s == StatusSent
	}
	if s == StatusFailed {
		return to == StatusSending
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	next, ok := statusRank[to]
	if !ok {
		return false
	}
	return next > from
}

// MessageRef identifies a message across its lifecycle. Before the server
// confirms a send only Local is set; after confirmation Server carries the
// server-assigned UUID. Keeping both fields avoids the string-pattern
// ambiguity of a temp id that happens to look like a real one.
type MessageRef struct {
	Local  string `json:"local,omitempty"`
	Server string `json:"server,omitempty"`
}

func LocalRef(id string) MessageRef {
	return MessageRef{Local: id}
}

func ServerRef(id string) MessageRef {
	return MessageRef{Server: id}
}

// IsLocal reports whether the message has not yet been confirmed.
func (r MessageRef) IsLocal() bool {
	return r.Server == ""
}

// Matches reports whether two refs name the same message. Server ids win;
// two unconfirmed refs match only on the same local id.
func (r MessageRef) Matches(other MessageRef) bool {
	if r.Server != "" && other.Server != "" {
		return r.Server == other.Server
	}
	if r.Local != "" && other.Local != "" {
		return r.Local == other.Local
	}
	return false
}

func (r MessageRef) String() string {
	if r.Server != "" {
		return r.Server
	}
	return "local:" + r.Local
}

// MediaMetadata describes an attached image or audio clip.
type MediaMetadata struct {
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Message is one chat message in a two-party conversation. Exactly one of
// Content, ImageURL or AudioURL carries the payload, matching Type.
type Message struct {
	Ref            MessageRef     `json:"ref"`
	SenderID       string         `json:"sender_id"`
	ReceiverID     string         `json:"receiver_id"`
	Type           MessageType    `json:"type"`
	Content        string         `json:"content"`
	ImageURL       string         `json:"image_url,omitempty"`
	AudioURL       string         `json:"audio_url,omitempty"`
	Metadata       *MediaMetadata `json:"metadata,omitempty"`
	Status         MessageStatus  `json:"status"`
	ReplyTo        string         `json:"reply_to,omitempty"`
	Reactions      map[string]int `json:"reactions,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	EditedAt       *time.Time     `json:"edited_at,omitempty"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

// DeletedTombstone replaces the content of a soft-deleted message.
const DeletedTombstone = "This message was deleted"

// Deleted reports whether the message has been soft-deleted.
func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

// Draft is the user-supplied part of an outbound message.
type Draft struct {
	Type     MessageType
	Content  string
	ImageURL string
	AudioURL string
	Metadata *MediaMetadata
	ReplyTo  string
}

// TypingStatus is the ephemeral typing broadcast. It is never persisted and
// carries no ordering guarantee relative to messages.
type TypingStatus struct {
	UserID      string    `json:"user_id"`
	OtherUserID string    `json:"other_user_id"`
	IsTyping    bool      `json:"is_typing"`
	UpdatedAt   time.Time `json:"updated_at"`
}
