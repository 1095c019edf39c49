package models

type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventTyping EventKind = "typing"
)

// ChatEvent is one item delivered by the realtime feed into a session's
// event sink. Exactly one of Message or Typing is set, matching Kind.
type ChatEvent struct {
	Kind    EventKind     `json:"kind"`
	Message *Message      `json:"message,omitempty"`
	Typing  *TypingStatus `json:"typing,omitempty"`
}
