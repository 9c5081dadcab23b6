package jsonfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/musterhq/muster/internal/core/journal"
)

const (
	defaultMaxEntries = 1000
	journalFilename   = "journal.jsonl"
)

// JournalStore implements journal.Store using a JSONL file: one entry per
// line, append-friendly and greppable.
type JournalStore struct {
	dir        string
	maxEntries int
	mu         sync.Mutex
}

// NewJournalStore creates a journal store in the given directory.
func NewJournalStore(dir string) *JournalStore {
	return &JournalStore{dir: dir, maxEntries: defaultMaxEntries}
}

// WithMaxEntries sets the number of entries retained.
func (s *JournalStore) WithMaxEntries(maxEntries int) *JournalStore {
	s.maxEntries = maxEntries
	return s
}

func (s *JournalStore) filePath() string {
	return filepath.Join(s.dir, journalFilename)
}

// Record appends an entry, filling in ID and timestamp when absent.
func (s *JournalStore) Record(e journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return withFileLock(s.filePath(), syscall.LOCK_EX, func() error {
		if e.ID == "" {
			e.ID = generateID()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}

		entries, err := s.readEntriesUnsafe()
		if err != nil {
			return err
		}

		entries = append(entries, e)
		if len(entries) > s.maxEntries {
			entries = entries[len(entries)-s.maxEntries:]
		}

		return s.writeEntriesUnsafe(entries)
	})
}

// List returns recent entries, newest first. A limit of 0 returns all.
func (s *JournalStore) List(limit int) ([]journal.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []journal.Entry
	err := withFileLock(s.filePath(), syscall.LOCK_SH, func() error {
		entries, err := s.readEntriesUnsafe()
		if err != nil {
			return err
		}

		for i := len(entries) - 1; i >= 0; i-- {
			result = append(result, entries[i])
			if limit > 0 && len(result) >= limit {
				break
			}
		}
		return nil
	})
	return result, err
}

// readEntriesUnsafe reads all entries from the file. Caller must hold the
// lock. Malformed lines are skipped.
func (s *JournalStore) readEntriesUnsafe() ([]journal.Entry, error) {
	f, err := os.Open(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var entries []journal.Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e journal.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal file: %w", err)
	}

	return entries, nil
}

// writeEntriesUnsafe writes all entries to the file atomically. Caller
// must hold the lock.
func (s *JournalStore) writeEntriesUnsafe(entries []journal.Entry) error {
	tmp := s.filePath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			f.Close() //nolint:errcheck
			_ = os.Remove(tmp)
			return fmt.Errorf("write journal entry: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp, s.filePath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
