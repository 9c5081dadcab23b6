// Package directory holds the read-only snapshot of known actors used for
// name resolution, mention matching, and assignment eligibility.
package directory

import (
	"sort"
	"strings"
	"sync"
)

// Role classifies an actor within the organization.
type Role string

const (
	RoleVolunteer   Role = "volunteer"
	RoleCoordinator Role = "coordinator"
	RoleLead        Role = "lead"
	RoleStaff       Role = "staff"
)

// Actor is a single known person in the portal.
type Actor struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
	IsAdmin bool   `json:"is_admin"`
}

// IsCoordinator reports whether the actor holds a coordinator or lead role.
// These roles grant access to team-visibility tickets.
func (a Actor) IsCoordinator() bool {
	return a.Role == RoleCoordinator || a.Role == RoleLead
}

// Directory is a snapshot of all known actors plus a presence annotation
// layer. The actor set is replaced wholesale on refresh; the online set is
// updated independently by the presence poller.
type Directory struct {
	mu     sync.RWMutex
	actors []Actor
	byID   map[string]Actor
	online map[string]struct{}
}

// New creates a directory from an actor snapshot.
func New(actors []Actor) *Directory {
	d := &Directory{online: map[string]struct{}{}}
	d.Replace(actors)
	return d
}

// Replace swaps the actor snapshot. The online set is preserved.
func (d *Directory) Replace(actors []Actor) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.actors = make([]Actor, len(actors))
	copy(d.actors, actors)
	d.byID = make(map[string]Actor, len(actors))
	for _, a := range actors {
		d.byID[a.ID] = a
	}
}

// Get returns the actor with the given ID.
func (d *Directory) Get(id string) (Actor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.byID[id]
	return a, ok
}

// ByName returns the actor whose display name matches exactly,
// case-insensitively.
func (d *Directory) ByName(name string) (Actor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, a := range d.actors {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Actor{}, false
}

// DisplayName resolves an actor ID to a display name, falling back to the
// ID itself when the actor is unknown.
func (d *Directory) DisplayName(id string) string {
	if a, ok := d.Get(id); ok {
		return a.Name
	}
	return id
}

// Actors returns a copy of the actor snapshot sorted by display name.
func (d *Directory) Actors() []Actor {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Actor, len(d.actors))
	copy(out, d.actors)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetOnline replaces the set of actors currently online.
func (d *Directory) SetOnline(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.online = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		d.online[id] = struct{}{}
	}
}

// IsOnline reports whether the actor was online as of the last presence
// poll. Staleness up to one poll interval is expected.
func (d *Directory) IsOnline(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.online[id]
	return ok
}
