package ticket

import "github.com/musterhq/muster/internal/core/directory"

// CanSee reports whether the actor may view the ticket. Admins, the
// submitter, and the assignee always can; otherwise visibility decides:
// public tickets are open to everyone, team tickets to coordinator/lead
// roles, private tickets to nobody else.
func CanSee(t Ticket, actor directory.Actor) bool {
	if actor.IsAdmin || t.SubmittedBy == actor.ID || (t.AssignedTo != "" && t.AssignedTo == actor.ID) {
		return true
	}

	switch t.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityTeam:
		return actor.IsCoordinator()
	default:
		return false
	}
}

// CanModify reports whether the actor may mutate the ticket: admin,
// submitter, or assignee.
func CanModify(t Ticket, actor directory.Actor) bool {
	return actor.IsAdmin || t.SubmittedBy == actor.ID || (t.AssignedTo != "" && t.AssignedTo == actor.ID)
}

// CanEdit reports whether the actor may rewrite the ticket's subject or
// description: submitter or admin only. An assignee drives the lifecycle
// but does not get to reword what was reported.
func CanEdit(t Ticket, actor directory.Actor) bool {
	return actor.IsAdmin || t.SubmittedBy == actor.ID
}

// CanSeeNote reports whether the actor may view the note. Internal notes
// are admin-only.
func CanSeeNote(n Note, actor directory.Actor) bool {
	return !n.Internal || actor.IsAdmin
}

// VisibleNotes filters the ticket's notes down to those the actor may see.
func VisibleNotes(t Ticket, actor directory.Actor) []Note {
	out := make([]Note, 0, len(t.Notes))
	for _, n := range t.Notes {
		if CanSeeNote(n, actor) {
			out = append(out, n)
		}
	}
	return out
}

// FilterVisible returns the tickets the actor may see, preserving order.
func FilterVisible(tickets []Ticket, actor directory.Actor) []Ticket {
	out := make([]Ticket, 0, len(tickets))
	for _, t := range tickets {
		if CanSee(t, actor) {
			out = append(out, t)
		}
	}
	return out
}
