// Package ticket defines support-ticket domain types and the access policy.
package ticket

import (
	"errors"
	"time"
)

// Sentinel errors for ticket operations.
var (
	ErrNotFound     = errors.New("ticket not found")
	ErrAccessDenied = errors.New("access denied")
	ErrClosed       = errors.New("ticket is closed")
)

// Status is the lifecycle state of a ticket. Any state may transition to
// any other via explicit actor action; closed tickets can be reopened.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
)

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return true
	}
	return false
}

// Priority is the urgency tier of a ticket.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Visibility is the access tier of a ticket, independent of the special
// access granted to submitter, assignee, and admins.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityTeam    Visibility = "team"
	VisibilityPrivate Visibility = "private"
)

// ValidVisibility reports whether v is a known visibility.
func ValidVisibility(v Visibility) bool {
	switch v {
	case VisibilityPublic, VisibilityTeam, VisibilityPrivate:
		return true
	}
	return false
}

// ActivityType classifies an activity record.
type ActivityType string

const (
	ActivityCreated        ActivityType = "created"
	ActivityStatusChange   ActivityType = "status_change"
	ActivityPriorityChange ActivityType = "priority_change"
	ActivityAssigned       ActivityType = "assigned"
	ActivityNoteAdded      ActivityType = "note_added"
)

// Activity is an append-only audit record. Activities are never edited or
// deleted.
type Activity struct {
	ID              string       `json:"id"`
	Type            ActivityType `json:"type"`
	Description     string       `json:"description"`
	PerformedBy     string       `json:"performed_by"`
	PerformedByName string       `json:"performed_by_name"`
	Timestamp       time.Time    `json:"timestamp"`
	OldValue        string       `json:"old_value,omitempty"`
	NewValue        string       `json:"new_value,omitempty"`
}

// Note is a comment on a ticket. Internal notes are visible only to admin
// actors.
type Note struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	Internal   bool      `json:"is_internal"`
}

// Attachment is file metadata tracked against a ticket. Byte storage lives
// with the external storage collaborator; StorageRef points into it.
type Attachment struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size_bytes"`
	ContentType string    `json:"content_type"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
	StorageRef  string    `json:"storage_ref"`
}

// Ticket is a support ticket. Invariants: ClosedAt is set iff Status is
// closed, and every status/priority/assignment mutation appends exactly one
// activity record in the same logical update.
type Ticket struct {
	ID          string       `json:"id"`
	Subject     string       `json:"subject"`
	Description string       `json:"description"`
	Status      Status       `json:"status"`
	Priority    Priority     `json:"priority"`
	Category    string       `json:"category"`
	Visibility  Visibility   `json:"visibility"`
	SubmittedBy string       `json:"submitted_by"`
	AssignedTo  string       `json:"assigned_to,omitempty"`
	Notes       []Note       `json:"notes"`
	Activity    []Activity   `json:"activity"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   *time.Time   `json:"updated_at,omitempty"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty"`
}

// Clone returns a deep copy, used as the rollback snapshot for optimistic
// mutations.
func (t Ticket) Clone() Ticket {
	out := t
	out.Notes = append([]Note(nil), t.Notes...)
	out.Activity = append([]Activity(nil), t.Activity...)
	out.Attachments = append([]Attachment(nil), t.Attachments...)
	if t.UpdatedAt != nil {
		v := *t.UpdatedAt
		out.UpdatedAt = &v
	}
	if t.ClosedAt != nil {
		v := *t.ClosedAt
		out.ClosedAt = &v
	}
	return out
}

// LastActivity returns the most recent activity record.
func (t Ticket) LastActivity() (Activity, bool) {
	if len(t.Activity) == 0 {
		return Activity{}, false
	}
	return t.Activity[len(t.Activity)-1], true
}

// Store defines local persistence for the ticket collection snapshot.
type Store interface {
	// Load returns the persisted ticket collection.
	Load() ([]Ticket, error)
	// Replace persists the ticket collection wholesale.
	Replace(tickets []Ticket) error
}
