// Package tickets implements the ticket workflow: lifecycle mutations with
// audit-trail coupling, optimistic remote writes with snapshot rollback,
// and the note/attachment surface.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"

	"github.com/musterhq/muster/internal/core/directory"
	"github.com/musterhq/muster/internal/core/journal"
	"github.com/musterhq/muster/internal/core/ticket"
	"github.com/musterhq/muster/internal/remote"
)

// Config wires a Service's collaborators. Store and Journal are optional.
type Config struct {
	ActorID         string
	API             remote.API
	Directory       *directory.Directory
	Store           ticket.Store
	Journal         journal.Store
	Logger          zerolog.Logger
	BlockedPatterns []string
}

// Service owns the local ticket collection and serializes all mutations to
// it. Every mutation is applied locally first, then written to the remote
// system; a failed write restores the pre-mutation snapshot.
type Service struct {
	actorID string
	api     remote.API
	dir     *directory.Directory
	store   ticket.Store
	journal journal.Store
	log     zerolog.Logger
	blocked []string

	mu      sync.Mutex
	tickets []ticket.Ticket
}

// NewService creates a ticket service, seeding the collection from the
// store when one is configured.
func NewService(cfg Config) (*Service, error) {
	if cfg.API == nil {
		return nil, errors.New("ticket service requires a remote API")
	}
	if cfg.Directory == nil {
		return nil, errors.New("ticket service requires an actor directory")
	}

	s := &Service{
		actorID: cfg.ActorID,
		api:     cfg.API,
		dir:     cfg.Directory,
		store:   cfg.Store,
		journal: cfg.Journal,
		log:     cfg.Logger.With().Str("component", "tickets").Logger(),
		blocked: cfg.BlockedPatterns,
	}

	if s.store != nil {
		tickets, err := s.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load ticket snapshot: %w", err)
		}
		s.tickets = tickets
	}

	return s, nil
}

// Refresh replaces the local collection with the remote system's view.
func (s *Service) Refresh(ctx context.Context) error {
	tickets, err := s.api.ListTickets(ctx, s.actorID)
	if err != nil {
		return fmt.Errorf("refresh tickets: %w", err)
	}

	s.mu.Lock()
	s.tickets = tickets
	s.persistLocked()
	s.mu.Unlock()
	return nil
}

// actor resolves the acting actor from the directory, degrading to a
// bare-ID actor with no role privileges when the roster is stale.
func (s *Service) actor() directory.Actor {
	if a, ok := s.dir.Get(s.actorID); ok {
		return a
	}
	return directory.Actor{ID: s.actorID}
}

// List returns the tickets visible to the acting actor, newest first.
func (s *Service) List() []ticket.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := ticket.FilterVisible(s.tickets, s.actor())
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Get returns one ticket. Tickets the actor may not see report ErrNotFound
// so their existence is not leaked.
func (s *Service) Get(ticketID string) (ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tickets {
		if t.ID == ticketID {
			if !ticket.CanSee(t, s.actor()) {
				return ticket.Ticket{}, ticket.ErrNotFound
			}
			return t.Clone(), nil
		}
	}
	return ticket.Ticket{}, ticket.ErrNotFound
}

// CreateInput is the user input for a new ticket. Zero-value Priority and
// Visibility default to medium and public.
type CreateInput struct {
	Subject     string
	Description string
	Category    string
	Priority    ticket.Priority
	Visibility  ticket.Visibility
}

// Validate checks the input, returning criterio field errors suitable for
// the printer's validation box.
func (in CreateInput) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if strings.TrimSpace(in.Subject) == "" {
		errs = errs.Append("subject", errors.New("subject is required"))
	}
	if in.Priority != "" && !ticket.ValidPriority(in.Priority) {
		errs = errs.Append("priority", fmt.Errorf("unknown priority %q", in.Priority))
	}
	if in.Visibility != "" && !ticket.ValidVisibility(in.Visibility) {
		errs = errs.Append("visibility", fmt.Errorf("unknown visibility %q", in.Visibility))
	}

	return errs.ToError()
}

// Create validates the input, submits the ticket, and adds the stored copy
// to the local collection. The remote system assigns the ID; the creation
// activity record is seeded client-side.
func (s *Service) Create(ctx context.Context, in CreateInput) (ticket.Ticket, error) {
	if err := in.Validate(); err != nil {
		return ticket.Ticket{}, err
	}

	if in.Priority == "" {
		in.Priority = ticket.PriorityMedium
	}
	if in.Visibility == "" {
		in.Visibility = ticket.VisibilityPublic
	}

	actor := s.actor()
	now := time.Now().UTC()
	t := ticket.Ticket{
		Subject:     strings.TrimSpace(in.Subject),
		Description: in.Description,
		Status:      ticket.StatusOpen,
		Priority:    in.Priority,
		Category:    in.Category,
		Visibility:  in.Visibility,
		SubmittedBy: actor.ID,
		CreatedAt:   now,
		Activity: []ticket.Activity{
			s.newActivity(actor, ticket.ActivityCreated, "ticket created", "", ""),
		},
	}

	id, err := s.api.CreateTicket(ctx, t)
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	t.ID = id

	s.mu.Lock()
	s.tickets = append(s.tickets, t)
	s.persistLocked()
	s.mu.Unlock()

	s.record(journal.EntryTicketMutation, "ticket created: "+t.Subject, id)
	return t, nil
}

// ChangeStatus moves the ticket to a new lifecycle state. Any state may
// transition to any other; closing stamps ClosedAt and reopening clears
// it. The transition and its activity record land in one update.
func (s *Service) ChangeStatus(ctx context.Context, ticketID string, next ticket.Status) (ticket.Ticket, error) {
	if !ticket.ValidStatus(next) {
		return ticket.Ticket{}, fmt.Errorf("unknown status %q", next)
	}

	return s.mutate(ctx, ticketID, requireModify, func(t *ticket.Ticket, actor directory.Actor) remote.TicketPatch {
		prev := t.Status
		t.Status = next

		patch := remote.TicketPatch{Status: &next}
		now := time.Now().UTC()

		switch {
		case next == ticket.StatusClosed:
			t.ClosedAt = &now
			patch.ClosedAt = &now
		case prev == ticket.StatusClosed:
			t.ClosedAt = nil
			patch.ClearClosedAt = true
		}

		act := s.newActivity(actor, ticket.ActivityStatusChange,
			fmt.Sprintf("status changed from %s to %s", prev, next), string(prev), string(next))
		t.Activity = append(t.Activity, act)
		patch.Activity = []ticket.Activity{act}

		s.touch(t, now)
		return patch
	})
}

// ChangePriority updates the urgency tier with its coupled activity record.
func (s *Service) ChangePriority(ctx context.Context, ticketID string, next ticket.Priority) (ticket.Ticket, error) {
	if !ticket.ValidPriority(next) {
		return ticket.Ticket{}, fmt.Errorf("unknown priority %q", next)
	}

	return s.mutate(ctx, ticketID, requireModify, func(t *ticket.Ticket, actor directory.Actor) remote.TicketPatch {
		prev := t.Priority
		t.Priority = next

		act := s.newActivity(actor, ticket.ActivityPriorityChange,
			fmt.Sprintf("priority changed from %s to %s", prev, next), string(prev), string(next))
		t.Activity = append(t.Activity, act)
		s.touch(t, time.Now().UTC())

		return remote.TicketPatch{Priority: &next, Activity: []ticket.Activity{act}}
	})
}

// Assign hands the ticket to another actor. The assignee must be in the
// directory; an empty assignee unassigns.
func (s *Service) Assign(ctx context.Context, ticketID, assigneeID string) (ticket.Ticket, error) {
	if assigneeID != "" {
		if _, ok := s.dir.Get(assigneeID); !ok {
			return ticket.Ticket{}, fmt.Errorf("unknown assignee %q", assigneeID)
		}
	}
	return s.assign(ctx, ticketID, assigneeID, requireModify)
}

// Claim assigns the ticket to the acting actor. Claiming needs only view
// access, so an unassigned public ticket can be picked up by anyone who
// can see it.
func (s *Service) Claim(ctx context.Context, ticketID string) (ticket.Ticket, error) {
	return s.assign(ctx, ticketID, s.actorID, requireSee)
}

func (s *Service) assign(ctx context.Context, ticketID, assigneeID string, gate gateFunc) (ticket.Ticket, error) {
	return s.mutate(ctx, ticketID, gate, func(t *ticket.Ticket, actor directory.Actor) remote.TicketPatch {
		prev := t.AssignedTo
		t.AssignedTo = assigneeID

		description := "unassigned"
		if assigneeID != "" {
			description = "assigned to " + s.dir.DisplayName(assigneeID)
		}
		act := s.newActivity(actor, ticket.ActivityAssigned, description, prev, assigneeID)
		t.Activity = append(t.Activity, act)
		s.touch(t, time.Now().UTC())

		return remote.TicketPatch{AssignedTo: &assigneeID, Activity: []ticket.Activity{act}}
	})
}

// EditInput carries optional field rewrites. Nil fields are left untouched.
type EditInput struct {
	Subject     *string
	Description *string
}

// Edit rewrites the ticket's subject and/or description. Only the
// submitter or an admin may edit, and only while the ticket is open.
// Edits do not generate activity records; only lifecycle mutations do.
func (s *Service) Edit(ctx context.Context, ticketID string, in EditInput) (ticket.Ticket, error) {
	if in.Subject != nil && strings.TrimSpace(*in.Subject) == "" {
		return ticket.Ticket{}, criterio.NewFieldErrors("subject", errors.New("subject cannot be empty"))
	}

	return s.mutate(ctx, ticketID, requireOpenAndEdit, func(t *ticket.Ticket, actor directory.Actor) remote.TicketPatch {
		patch := remote.TicketPatch{Subject: in.Subject, Description: in.Description}
		if in.Subject != nil {
			t.Subject = strings.TrimSpace(*in.Subject)
		}
		if in.Description != nil {
			t.Description = *in.Description
		}
		s.touch(t, time.Now().UTC())
		return patch
	})
}

type gateFunc func(t ticket.Ticket, actor directory.Actor) error

// requireModify admits the submitter, assignee, and admins.
func requireModify(t ticket.Ticket, actor directory.Actor) error {
	if !ticket.CanModify(t, actor) {
		return ticket.ErrAccessDenied
	}
	return nil
}

// requireOpenAndEdit admits the submitter and admins while the ticket is
// still open.
func requireOpenAndEdit(t ticket.Ticket, actor directory.Actor) error {
	if !ticket.CanEdit(t, actor) {
		return ticket.ErrAccessDenied
	}
	if t.Status == ticket.StatusClosed {
		return ticket.ErrClosed
	}
	return nil
}

// requireSee admits anyone with view access.
func requireSee(t ticket.Ticket, actor directory.Actor) error {
	if !ticket.CanSee(t, actor) {
		return ticket.ErrAccessDenied
	}
	return nil
}

// requireOpenAndSee admits anyone with view access to an open ticket.
func requireOpenAndSee(t ticket.Ticket, actor directory.Actor) error {
	if err := requireSee(t, actor); err != nil {
		return err
	}
	if t.Status == ticket.StatusClosed {
		return ticket.ErrClosed
	}
	return nil
}

// mutate runs one gated, optimistic mutation: gate, snapshot, apply
// locally, write remotely, and restore the snapshot if the write fails.
// The gate runs before anything else, so a denied actor causes no remote
// traffic and no local change.
func (s *Service) mutate(ctx context.Context, ticketID string, gate gateFunc, apply func(t *ticket.Ticket, actor directory.Actor) remote.TicketPatch) (ticket.Ticket, error) {
	actor := s.actor()

	s.mu.Lock()
	idx := s.indexLocked(ticketID)
	if idx < 0 {
		s.mu.Unlock()
		return ticket.Ticket{}, ticket.ErrNotFound
	}

	if err := gate(s.tickets[idx], actor); err != nil {
		s.mu.Unlock()
		return ticket.Ticket{}, fmt.Errorf("ticket %s: %w", ticketID, err)
	}

	snapshot := s.tickets[idx].Clone()
	patch := apply(&s.tickets[idx], actor)
	updated := s.tickets[idx].Clone()
	s.persistLocked()
	s.mu.Unlock()

	if err := s.api.UpdateTicket(ctx, ticketID, patch); err != nil {
		s.restore(snapshot)
		s.record(journal.EntryTicketRollback, "update failed, rolled back: "+err.Error(), ticketID)
		return ticket.Ticket{}, fmt.Errorf("update ticket %s: %w", ticketID, err)
	}

	s.record(journal.EntryTicketMutation, "ticket updated", ticketID)
	return updated, nil
}

// restore puts the pre-mutation snapshot back in place.
func (s *Service) restore(snapshot ticket.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexLocked(snapshot.ID); idx >= 0 {
		s.tickets[idx] = snapshot
	}
	s.persistLocked()

	s.log.Warn().Str("ticket_id", snapshot.ID).Msg("remote update failed, local state rolled back")
}

func (s *Service) indexLocked(ticketID string) int {
	for i := range s.tickets {
		if s.tickets[i].ID == ticketID {
			return i
		}
	}
	return -1
}

// touch stamps UpdatedAt.
func (s *Service) touch(t *ticket.Ticket, now time.Time) {
	t.UpdatedAt = &now
}

func (s *Service) newActivity(actor directory.Actor, typ ticket.ActivityType, description, oldValue, newValue string) ticket.Activity {
	return ticket.Activity{
		ID:              uuid.NewString(),
		Type:            typ,
		Description:     description,
		PerformedBy:     actor.ID,
		PerformedByName: actor.Name,
		Timestamp:       time.Now().UTC(),
		OldValue:        oldValue,
		NewValue:        newValue,
	}
}

func (s *Service) persistLocked() {
	if s.store == nil {
		return
	}

	snapshot := make([]ticket.Ticket, len(s.tickets))
	for i, t := range s.tickets {
		snapshot[i] = t.Clone()
	}
	if err := s.store.Replace(snapshot); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist ticket snapshot")
	}
}

func (s *Service) record(typ journal.EntryType, description, entityID string) {
	if s.journal == nil {
		return
	}

	err := s.journal.Record(journal.Entry{
		ID:          uuid.NewString(),
		Type:        typ,
		Description: description,
		EntityID:    entityID,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("failed to record journal entry")
	}
}
