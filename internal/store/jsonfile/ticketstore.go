package jsonfile

import (
	"sync"
	"syscall"

	"github.com/musterhq/muster/internal/core/ticket"
)

// ticketFile is the root JSON structure stored on disk.
type ticketFile struct {
	Tickets []ticket.Ticket `json:"tickets"`
}

// TicketStore persists the ticket collection snapshot in a single JSON
// file. It implements ticket.Store.
type TicketStore struct {
	path string
	mu   sync.RWMutex
}

// NewTicketStore creates a ticket store at the given file path.
func NewTicketStore(path string) *TicketStore {
	return &TicketStore{path: path}
}

// Load returns the persisted ticket collection.
func (s *TicketStore) Load() ([]ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var file ticketFile
	err := withFileLock(s.path, syscall.LOCK_SH, func() error {
		return readJSON(s.path, &file)
	})
	if err != nil {
		return nil, err
	}

	return file.Tickets, nil
}

// Replace overwrites the persisted collection wholesale.
func (s *TicketStore) Replace(tickets []ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return withFileLock(s.path, syscall.LOCK_EX, func() error {
		return writeJSON(s.path, ticketFile{Tickets: tickets})
	})
}
