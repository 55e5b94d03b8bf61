package domain

import (
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is a single immutable entry in a transcript.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is an ordered sequence of messages. Insertion order is
// chronological order is display order.
type Transcript []ChatMessage

// Append returns a new transcript with msg at the end. The receiver is not
// modified, so snapshots handed to persistence stay stable.
func (t Transcript) Append(msg ChatMessage) Transcript {
	out := make(Transcript, len(t), len(t)+1)
	copy(out, t)
	return append(out, msg)
}

// Clone returns an independent copy of the transcript.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// Last returns the most recent message, if any.
func (t Transcript) Last() (ChatMessage, bool) {
	if len(t) == 0 {
		return ChatMessage{}, false
	}
	return t[len(t)-1], true
}

// Recent returns the last n messages.
func (t Transcript) Recent(n int) Transcript {
	if n >= len(t) {
		return t
	}
	return t[len(t)-n:]
}
