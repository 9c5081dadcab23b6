package message

import (
	"sort"

	"github.com/musterhq/muster/internal/core/directory"
)

// Conversation is a derived view of one channel or DM thread: the most
// recent message plus an unread count. It is recomputed from the message
// log and never mutated directly.
type Conversation struct {
	PartnerID   string  `json:"partner_id"`
	PartnerName string  `json:"partner_name"`
	Last        Message `json:"last"`
	Unread      int     `json:"unread"`
	Online      bool    `json:"online"`
}

// IsBroadcast reports whether the conversation is the broadcast channel.
func (c Conversation) IsBroadcast() bool {
	return c.PartnerID == BroadcastRecipient
}

// Project derives the conversation list for the given actor from a flat
// message log. Pure: the same inputs always produce the same output. The
// result is sorted descending by the preview timestamp.
func Project(msgs []Message, actorID string, dir *directory.Directory) []Conversation {
	byPartner := map[string]*Conversation{}

	for _, m := range msgs {
		key := m.ConversationKey(actorID)

		c, ok := byPartner[key]
		if !ok {
			c = &Conversation{PartnerID: key}
			byPartner[key] = c
		}

		if c.Last.ID == "" || !m.Timestamp.Before(c.Last.Timestamp) {
			c.Last = m
		}
		if m.UnreadBy(actorID) {
			c.Unread++
		}
	}

	out := make([]Conversation, 0, len(byPartner))
	for _, c := range byPartner {
		if c.IsBroadcast() {
			c.PartnerName = "General"
		} else {
			c.PartnerName = dir.DisplayName(c.PartnerID)
			c.Online = dir.IsOnline(c.PartnerID)
		}
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Last.Timestamp.After(out[j].Last.Timestamp)
	})

	return out
}
