package jsonfile

import (
	"sync"
	"syscall"

	"github.com/musterhq/muster/internal/core/message"
)

const defaultMaxMessages = 500

// messageFile is the root JSON structure stored on disk.
type messageFile struct {
	Messages []message.Message `json:"messages"`
}

// MessageStore persists the message log snapshot in a single JSON file.
// It implements engine.Store.
type MessageStore struct {
	path        string
	maxMessages int
	mu          sync.RWMutex
}

// NewMessageStore creates a message store at the given file path.
func NewMessageStore(path string) *MessageStore {
	return &MessageStore{path: path, maxMessages: defaultMaxMessages}
}

// WithMaxMessages sets the number of messages retained on disk. Older
// messages are dropped first.
func (s *MessageStore) WithMaxMessages(maxMessages int) *MessageStore {
	s.maxMessages = maxMessages
	return s
}

// Load returns the persisted message log.
func (s *MessageStore) Load() ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var file messageFile
	err := withFileLock(s.path, syscall.LOCK_SH, func() error {
		return readJSON(s.path, &file)
	})
	if err != nil {
		return nil, err
	}

	return file.Messages, nil
}

// Replace overwrites the persisted log. The snapshot arrives in timestamp
// order, so the retention cap keeps the newest tail.
func (s *MessageStore) Replace(msgs []message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxMessages > 0 && len(msgs) > s.maxMessages {
		msgs = msgs[len(msgs)-s.maxMessages:]
	}

	return withFileLock(s.path, syscall.LOCK_EX, func() error {
		return writeJSON(s.path, messageFile{Messages: msgs})
	})
}
