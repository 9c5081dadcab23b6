package tickets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/musterhq/muster/internal/core/directory"
	"github.com/musterhq/muster/internal/core/journal"
	"github.com/musterhq/muster/internal/core/mention"
	"github.com/musterhq/muster/internal/core/ticket"
	"github.com/musterhq/muster/internal/remote"
)

// mentionNotifyTimeout bounds the fire-and-forget mention fan-out.
const mentionNotifyTimeout = 10 * time.Second

// ErrInternalNoteDenied is returned when a non-admin posts an internal
// note.
var ErrInternalNoteDenied = errors.New("internal notes require admin access")

// AddNote appends a note to the ticket. The note and its activity record
// are written in a single update, so the audit trail can never lag the
// note itself. Mentioned actors are notified asynchronously; notification
// failure never affects the note.
func (s *Service) AddNote(ctx context.Context, ticketID, content string, internal bool) (ticket.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return ticket.Note{}, errors.New("note content is empty")
	}

	actor := s.actor()
	if internal && !actor.IsAdmin {
		return ticket.Note{}, ErrInternalNoteDenied
	}

	note := ticket.Note{
		ID:         uuid.NewString(),
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
		Internal:   internal,
	}

	_, err := s.mutate(ctx, ticketID, requireOpenAndSee, func(t *ticket.Ticket, actor directory.Actor) remote.TicketPatch {
		act := s.newActivity(actor, ticket.ActivityNoteAdded, "note added", "", "")
		t.Notes = append(t.Notes, note)
		t.Activity = append(t.Activity, act)
		s.touch(t, time.Now().UTC())

		return remote.TicketPatch{
			Notes:    []ticket.Note{note},
			Activity: []ticket.Activity{act},
		}
	})
	if err != nil {
		return ticket.Note{}, err
	}

	s.notifyMentions(note)
	return note, nil
}

// notifyMentions extracts @mentions from the note and fans out
// notifications in the background. The author never notifies themselves.
func (s *Service) notifyMentions(note ticket.Note) {
	ids := mention.Extract(note.Content, s.dir)

	targets := ids[:0]
	for _, id := range ids {
		if id != note.AuthorID {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mentionNotifyTimeout)
		defer cancel()

		if err := s.api.NotifyMentions(ctx, targets, note.Content); err != nil {
			s.log.Warn().Err(err).Strs("actor_ids", targets).Msg("mention notification failed")
		}
	}()
}

// AddAttachment validates the file against local policy and, only if it
// passes, streams it to the storage collaborator and records the returned
// metadata on the ticket. A rejected file causes no remote traffic.
func (s *Service) AddAttachment(ctx context.Context, ticketID string, meta ticket.FileMeta, body io.Reader) (ticket.Attachment, error) {
	if err := ticket.ValidateAttachment(meta, s.blocked); err != nil {
		return ticket.Attachment{}, err
	}

	actor := s.actor()

	s.mu.Lock()
	idx := s.indexLocked(ticketID)
	if idx < 0 {
		s.mu.Unlock()
		return ticket.Attachment{}, ticket.ErrNotFound
	}
	if err := requireOpenAndSee(s.tickets[idx], actor); err != nil {
		s.mu.Unlock()
		return ticket.Attachment{}, fmt.Errorf("ticket %s: %w", ticketID, err)
	}
	s.mu.Unlock()

	attachment, err := s.api.UploadAttachment(ctx, ticketID, meta, body)
	if err != nil {
		return ticket.Attachment{}, fmt.Errorf("upload attachment: %w", err)
	}

	s.mu.Lock()
	if idx := s.indexLocked(ticketID); idx >= 0 {
		s.tickets[idx].Attachments = append(s.tickets[idx].Attachments, attachment)
		now := time.Now().UTC()
		s.touch(&s.tickets[idx], now)
		s.persistLocked()
	}
	s.mu.Unlock()

	s.record(journal.EntryTicketMutation, "attachment added: "+meta.FileName, ticketID)
	return attachment, nil
}

// DownloadAttachment streams an attachment's bytes into dst.
func (s *Service) DownloadAttachment(ctx context.Context, ticketID, attachmentID string, dst io.Writer) error {
	if _, err := s.Get(ticketID); err != nil {
		return err
	}

	if err := s.api.DownloadAttachment(ctx, ticketID, attachmentID, dst); err != nil {
		return fmt.Errorf("download attachment: %w", err)
	}
	return nil
}
