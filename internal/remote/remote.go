// Package remote defines the boundary to the portal's remote collaborator:
// a transport-agnostic API interface, an HTTP implementation, and the
// push-stream subscription.
package remote

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/musterhq/muster/internal/core/directory"
	"github.com/musterhq/muster/internal/core/message"
	"github.com/musterhq/muster/internal/core/ticket"
)

// Sentinel errors for remote operations.
var (
	// ErrSessionExpired is returned when the portal rejects the session
	// token. The session's OnExpired callback fires exactly once.
	ErrSessionExpired = errors.New("session expired")
	// ErrStreamCredential is returned when the long-lived stream credential
	// is no longer accepted and a fresh ticket exchange is required.
	ErrStreamCredential = errors.New("stream credential rejected")
)

// TicketPatch carries a partial ticket update. Nil pointer fields are left
// untouched by the server; Notes and Activity entries are appended.
type TicketPatch struct {
	Subject     *string          `json:"subject,omitempty"`
	Description *string          `json:"description,omitempty"`
	Status      *ticket.Status   `json:"status,omitempty"`
	Priority    *ticket.Priority `json:"priority,omitempty"`
	AssignedTo  *string          `json:"assigned_to,omitempty"`
	ClosedAt    *time.Time       `json:"closed_at,omitempty"`
	// ClearClosedAt distinguishes "unset closed_at" from "leave it alone",
	// which a nil pointer cannot express.
	ClearClosedAt bool              `json:"clear_closed_at,omitempty"`
	Notes         []ticket.Note     `json:"notes,omitempty"`
	Activity      []ticket.Activity `json:"activity,omitempty"`
}

// StreamBatch is one delivery from the push stream: zero or more new
// messages plus the cursor for the next long-poll.
type StreamBatch struct {
	Cursor   string
	Messages []message.Message
}

// API is the remote collaborator surface consumed by the engines. All
// payloads are decoded and validated before they cross this boundary.
type API interface {
	SendMessage(ctx context.Context, msg message.Message) (string, error)
	ListMessages(ctx context.Context, actorID string) ([]message.Message, error)
	MarkMessageRead(ctx context.Context, messageID string) error

	ListActors(ctx context.Context) ([]directory.Actor, error)
	ListOnlinePresence(ctx context.Context) ([]string, error)

	ListTickets(ctx context.Context, actorID string) ([]ticket.Ticket, error)
	CreateTicket(ctx context.Context, t ticket.Ticket) (string, error)
	UpdateTicket(ctx context.Context, ticketID string, patch TicketPatch) error
	UploadAttachment(ctx context.Context, ticketID string, meta ticket.FileMeta, body io.Reader) (ticket.Attachment, error)
	DownloadAttachment(ctx context.Context, ticketID, attachmentID string, dst io.Writer) error

	NotifyMentions(ctx context.Context, mentionedIDs []string, contextText string) error

	// StreamTicket obtains a short-lived single-use ticket which
	// StreamConnect exchanges for a long-lived stream credential.
	StreamTicket(ctx context.Context) (string, error)
	StreamConnect(ctx context.Context, streamTicket string) (string, error)
	// StreamEvents long-polls for new messages after the since cursor,
	// holding the connection server-side for up to holdMillis.
	StreamEvents(ctx context.Context, credential, since string, holdMillis int) (StreamBatch, error)
}

// Session is the injected auth context passed to every remote-call site.
// It replaces ambient global token state: the engine invokes OnExpired
// rather than reading or writing shared storage.
type Session struct {
	mu        sync.Mutex
	token     string
	onExpired func()
	expired   bool
}

// NewSession creates a session with the given token. onExpired may be nil.
func NewSession(token string, onExpired func()) *Session {
	return &Session{token: token, onExpired: onExpired}
}

// Token returns the session token.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Expired reports whether the session has been marked expired.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Expire marks the session expired and fires the OnExpired callback.
// Subsequent calls are no-ops.
func (s *Session) Expire() {
	s.mu.Lock()
	already := s.expired
	s.expired = true
	callback := s.onExpired
	s.mu.Unlock()

	if !already && callback != nil {
		callback()
	}
}
