// Package journal defines the append-only engine event journal used to
// diagnose remote-call failures and sync behavior.
package journal

import "time"

// EntryType classifies a journal entry.
type EntryType string

const (
	EntryMessageSent     EntryType = "message_sent"
	EntrySendRollback    EntryType = "send_rollback"
	EntryReadFailed      EntryType = "read_failed"
	EntryTicketMutation  EntryType = "ticket_mutation"
	EntryTicketRollback  EntryType = "ticket_rollback"
	EntryStreamReconnect EntryType = "stream_reconnect"
)

// Entry is a single journal record.
type Entry struct {
	ID          string    `json:"id"`
	Type        EntryType `json:"type"`
	Description string    `json:"description"`
	EntityID    string    `json:"entity_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Store defines persistence for journal entries.
type Store interface {
	// Record appends an entry.
	Record(e Entry) error
	// List returns recent entries, newest first. Limit of 0 returns all.
	List(limit int) ([]Entry, error)
}
