// Package message defines message domain types and the conversation
// projection.
package message

import (
	"sort"
	"strings"
	"time"
)

// BroadcastRecipient is the sentinel recipient ID for the shared broadcast
// channel. Any other recipient ID addresses a direct message.
const BroadcastRecipient = "general"

// TempIDPrefix marks client-assigned message IDs that have not yet been
// acknowledged by the remote system.
const TempIDPrefix = "local-"

// Message is a single chat message. Once acknowledged by the remote system
// it is immutable except for the read flag.
type Message struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"sender_id"`
	SenderName  string     `json:"sender_name"`
	RecipientID string     `json:"recipient_id"`
	Content     string     `json:"content"`
	Timestamp   time.Time  `json:"timestamp"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// IsBroadcast reports whether the message is addressed to the broadcast
// channel.
func (m Message) IsBroadcast() bool {
	return m.RecipientID == BroadcastRecipient
}

// IsLocal reports whether the message still carries a client-assigned
// temporary ID.
func (m Message) IsLocal() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// ConversationKey returns the ID the message files under from the given
// actor's point of view: the broadcast sentinel, or whichever of
// sender/recipient is the other party.
func (m Message) ConversationKey(actorID string) string {
	if m.IsBroadcast() {
		return BroadcastRecipient
	}
	if m.SenderID == actorID {
		return m.RecipientID
	}
	return m.SenderID
}

// UnreadBy reports whether the message counts as unread for the given
// actor: sent by someone else and not yet read.
func (m Message) UnreadBy(actorID string) bool {
	return m.SenderID != actorID && !m.Read
}

// Sort orders messages ascending by timestamp. The sort is stable so
// arrival order breaks ties.
func Sort(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
