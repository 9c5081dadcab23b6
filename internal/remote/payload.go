package remote

import (
	"encoding/json"
	"fmt"

	"github.com/musterhq/muster/internal/core/directory"
	"github.com/musterhq/muster/internal/core/message"
	"github.com/musterhq/muster/internal/core/ticket"
)

// Response envelopes. Every payload from the portal is decoded into a
// typed record and validated here; untyped blobs never reach the engines.

type sendMessageResponse struct {
	ID string `json:"id"`
}

type listMessagesResponse struct {
	Messages []message.Message `json:"messages"`
}

type listActorsResponse struct {
	Actors []directory.Actor `json:"actors"`
}

type presenceResponse struct {
	Online []string `json:"online"`
}

type listTicketsResponse struct {
	Tickets []ticket.Ticket `json:"tickets"`
}

type createTicketResponse struct {
	ID string `json:"id"`
}

type uploadAttachmentResponse struct {
	Attachment ticket.Attachment `json:"attachment"`
}

type streamTicketResponse struct {
	Ticket string `json:"ticket"`
}

type streamConnectResponse struct {
	Credential string `json:"credential"`
}

type streamEventsResponse struct {
	Cursor   string            `json:"cursor"`
	Messages []message.Message `json:"messages"`
}

func parseMessages(body []byte) ([]message.Message, error) {
	var resp listMessagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse messages payload: %w", err)
	}
	for i, m := range resp.Messages {
		if err := validateMessage(m); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}
	return resp.Messages, nil
}

func validateMessage(m message.Message) error {
	switch {
	case m.ID == "":
		return fmt.Errorf("missing id")
	case m.SenderID == "":
		return fmt.Errorf("message %s: missing sender_id", m.ID)
	case m.RecipientID == "":
		return fmt.Errorf("message %s: missing recipient_id", m.ID)
	case m.Timestamp.IsZero():
		return fmt.Errorf("message %s: missing timestamp", m.ID)
	}
	return nil
}

func parseTickets(body []byte) ([]ticket.Ticket, error) {
	var resp listTicketsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse tickets payload: %w", err)
	}
	for i, t := range resp.Tickets {
		if err := validateTicket(t); err != nil {
			return nil, fmt.Errorf("ticket %d: %w", i, err)
		}
	}
	return resp.Tickets, nil
}

func validateTicket(t ticket.Ticket) error {
	switch {
	case t.ID == "":
		return fmt.Errorf("missing id")
	case !ticket.ValidStatus(t.Status):
		return fmt.Errorf("ticket %s: unknown status %q", t.ID, t.Status)
	case !ticket.ValidPriority(t.Priority):
		return fmt.Errorf("ticket %s: unknown priority %q", t.ID, t.Priority)
	case !ticket.ValidVisibility(t.Visibility):
		return fmt.Errorf("ticket %s: unknown visibility %q", t.ID, t.Visibility)
	case t.SubmittedBy == "":
		return fmt.Errorf("ticket %s: missing submitted_by", t.ID)
	}

	// Closed-state invariant holds on the wire too.
	if (t.Status == ticket.StatusClosed) != (t.ClosedAt != nil) {
		return fmt.Errorf("ticket %s: closed_at inconsistent with status %q", t.ID, t.Status)
	}

	return nil
}

func parseStreamBatch(body []byte) (StreamBatch, error) {
	var resp streamEventsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return StreamBatch{}, fmt.Errorf("parse stream payload: %w", err)
	}
	for i, m := range resp.Messages {
		if err := validateMessage(m); err != nil {
			return StreamBatch{}, fmt.Errorf("stream message %d: %w", i, err)
		}
	}
	return StreamBatch{Cursor: resp.Cursor, Messages: resp.Messages}, nil
}
