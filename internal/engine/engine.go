// Package engine implements the message sync engine: the single owner of
// the local message log, reconciling optimistic sends, push deliveries,
// and poll snapshots into one consistent view.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/musterhq/muster/internal/core/directory"
	"github.com/musterhq/muster/internal/core/journal"
	"github.com/musterhq/muster/internal/core/message"
	"github.com/musterhq/muster/internal/remote"
)

var (
	// ErrEmptyMessage is returned when a send carries no content.
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrUnknownRecipient is returned when the recipient is neither the
	// broadcast channel nor a known actor.
	ErrUnknownRecipient = errors.New("unknown recipient")
)

// Store defines snapshot persistence for the message log.
type Store interface {
	// Load returns the persisted message log.
	Load() ([]message.Message, error)
	// Replace overwrites the persisted log with the given snapshot.
	Replace(msgs []message.Message) error
}

// Config wires an Engine's collaborators. Store and Journal are optional.
type Config struct {
	ActorID   string
	ActorName string
	API       remote.API
	Directory *directory.Directory
	Store     Store
	Journal   journal.Store
	Logger    zerolog.Logger
}

// Engine owns the message log. All log mutations funnel through it so the
// optimistic-send bookkeeping and the push/poll reconciliation can never
// race each other.
type Engine struct {
	actorID   string
	actorName string
	api       remote.API
	dir       *directory.Directory
	store     Store
	journal   journal.Store
	log       zerolog.Logger

	mu      sync.Mutex
	msgs    []message.Message
	pending map[string]struct{}
	subs    []chan struct{}
}

// New creates an engine, seeding the log from the store when one is
// configured.
func New(cfg Config) (*Engine, error) {
	if cfg.API == nil {
		return nil, errors.New("engine requires a remote API")
	}
	if cfg.Directory == nil {
		return nil, errors.New("engine requires an actor directory")
	}

	e := &Engine{
		actorID:   cfg.ActorID,
		actorName: cfg.ActorName,
		api:       cfg.API,
		dir:       cfg.Directory,
		store:     cfg.Store,
		journal:   cfg.Journal,
		log:       cfg.Logger.With().Str("component", "engine").Logger(),
		pending:   map[string]struct{}{},
	}

	if e.store != nil {
		msgs, err := e.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load message snapshot: %w", err)
		}
		message.Sort(msgs)
		e.msgs = msgs
	}

	return e, nil
}

// Send submits a message. The message appears in the log immediately under
// a temporary ID; on acknowledgment the ID is swapped in place, and on
// failure the message is removed and the error returned. The returned
// message carries the final (server-assigned) ID.
func (e *Engine) Send(ctx context.Context, recipientID, content string) (message.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return message.Message{}, ErrEmptyMessage
	}
	if recipientID != message.BroadcastRecipient {
		if _, ok := e.dir.Get(recipientID); !ok {
			return message.Message{}, fmt.Errorf("%w: %s", ErrUnknownRecipient, recipientID)
		}
	}

	senderName := e.actorName
	if senderName == "" {
		senderName = e.dir.DisplayName(e.actorID)
	}

	msg := message.Message{
		ID:          message.TempIDPrefix + uuid.NewString(),
		SenderID:    e.actorID,
		SenderName:  senderName,
		RecipientID: recipientID,
		Content:     content,
		Timestamp:   time.Now().UTC(),
	}

	e.mu.Lock()
	e.msgs = append(e.msgs, msg)
	e.pending[msg.ID] = struct{}{}
	e.persistLocked()
	e.mu.Unlock()
	e.notify()

	serverID, err := e.api.SendMessage(ctx, msg)
	if err != nil {
		e.rollback(msg.ID)
		e.record(journal.EntrySendRollback, "send failed: "+err.Error(), msg.ID)
		return message.Message{}, fmt.Errorf("send message: %w", err)
	}

	final := e.confirm(msg.ID, serverID)
	e.record(journal.EntryMessageSent, "message delivered to "+recipientID, serverID)
	return final, nil
}

// confirm resolves an acknowledged send. Normally the temporary ID is
// swapped for the server's in place. If a push delivery carrying the
// server ID arrived before the acknowledgment, the temporary copy is
// dropped instead and the pushed copy wins.
func (e *Engine) confirm(tempID, serverID string) message.Message {
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		e.notify()
	}()

	delete(e.pending, tempID)

	var final message.Message
	pushed := false
	for _, m := range e.msgs {
		if m.ID == serverID {
			final = m
			pushed = true
			break
		}
	}

	if pushed {
		e.msgs = removeByID(e.msgs, tempID)
		e.persistLocked()
		return final
	}

	for i := range e.msgs {
		if e.msgs[i].ID == tempID {
			e.msgs[i].ID = serverID
			final = e.msgs[i]
			break
		}
	}
	e.persistLocked()
	return final
}

// rollback removes a failed optimistic send from the log.
func (e *Engine) rollback(tempID string) {
	e.mu.Lock()
	delete(e.pending, tempID)
	e.msgs = removeByID(e.msgs, tempID)
	e.persistLocked()
	e.mu.Unlock()
	e.notify()

	e.log.Warn().Str("message_id", tempID).Msg("send failed, message rolled back")
}

// IngestPush merges messages delivered by the push stream. Ingestion is
// idempotent: IDs already present are skipped, so a push that raced a poll
// (or an acknowledgment) cannot duplicate a message.
func (e *Engine) IngestPush(msgs []message.Message) {
	if len(msgs) == 0 {
		return
	}

	e.mu.Lock()
	seen := make(map[string]struct{}, len(e.msgs))
	for _, m := range e.msgs {
		seen[m.ID] = struct{}{}
	}

	added := 0
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		e.msgs = append(e.msgs, m)
		added++
	}

	if added > 0 {
		message.Sort(e.msgs)
		e.persistLocked()
	}
	e.mu.Unlock()

	if added > 0 {
		e.log.Debug().Int("count", added).Msg("push messages ingested")
		e.notify()
	}
}

// IngestPoll replaces the log with an authoritative poll snapshot.
// Optimistic messages still awaiting acknowledgment are carried over, since
// the server cannot know about them yet.
func (e *Engine) IngestPoll(snapshot []message.Message) {
	e.mu.Lock()
	next := make([]message.Message, len(snapshot))
	copy(next, snapshot)

	for _, m := range e.msgs {
		if _, inflight := e.pending[m.ID]; inflight {
			next = append(next, m)
		}
	}

	message.Sort(next)
	e.msgs = next
	e.persistLocked()
	e.mu.Unlock()
	e.notify()
}

// MarkRead issues read receipts for the given messages in parallel. Only
// messages addressed to the acting actor and not yet read produce a
// receipt; IDs that are unknown, sent by the actor, or already read are
// skipped. Each receipt is independent: successes are applied locally
// even when others fail, and failures are journaled and returned joined.
func (e *Engine) MarkRead(ctx context.Context, messageIDs []string) error {
	e.mu.Lock()
	byID := make(map[string]message.Message, len(e.msgs))
	for _, m := range e.msgs {
		byID[m.ID] = m
	}

	var ids []string
	for _, id := range messageIDs {
		m, ok := byID[id]
		if !ok || !m.UnreadBy(e.actorID) {
			continue
		}
		delete(byID, id)
		ids = append(ids, id)
	}
	e.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()

			if err := e.api.MarkMessageRead(ctx, id); err != nil {
				errs[i] = fmt.Errorf("mark read %s: %w", id, err)
				e.record(journal.EntryReadFailed, "read receipt failed: "+err.Error(), id)
				return
			}
			e.applyRead(id)
		}(i, id)
	}

	wg.Wait()
	return errors.Join(errs...)
}

// MarkConversationRead issues receipts for every unread message in the
// given conversation.
func (e *Engine) MarkConversationRead(ctx context.Context, partnerID string) error {
	e.mu.Lock()
	var ids []string
	for _, m := range e.msgs {
		if m.ConversationKey(e.actorID) == partnerID && m.UnreadBy(e.actorID) {
			ids = append(ids, m.ID)
		}
	}
	e.mu.Unlock()

	return e.MarkRead(ctx, ids)
}

func (e *Engine) applyRead(id string) {
	now := time.Now().UTC()

	e.mu.Lock()
	for i := range e.msgs {
		if e.msgs[i].ID == id {
			e.msgs[i].Read = true
			e.msgs[i].ReadAt = &now
			break
		}
	}
	e.persistLocked()
	e.mu.Unlock()
	e.notify()
}

// Messages returns a copy of the log in timestamp order.
func (e *Engine) Messages() []message.Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]message.Message, len(e.msgs))
	copy(out, e.msgs)
	return out
}

// Conversation returns the messages of one conversation in timestamp order.
func (e *Engine) Conversation(partnerID string) []message.Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []message.Message
	for _, m := range e.msgs {
		if m.ConversationKey(e.actorID) == partnerID {
			out = append(out, m)
		}
	}
	return out
}

// Conversations projects the current log into the conversation list.
func (e *Engine) Conversations() []message.Conversation {
	return message.Project(e.Messages(), e.actorID, e.dir)
}

// Subscribe returns a channel that receives a signal after every log
// change. The channel is never closed; signals coalesce when the consumer
// lags.
func (e *Engine) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)

	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()

	return ch
}

func (e *Engine) notify() {
	e.mu.Lock()
	subs := e.subs
	e.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// persistLocked writes the current log to the store. Persistence failures
// are logged, not fatal: the in-memory log stays authoritative.
func (e *Engine) persistLocked() {
	if e.store == nil {
		return
	}

	snapshot := make([]message.Message, len(e.msgs))
	copy(snapshot, e.msgs)

	if err := e.store.Replace(snapshot); err != nil {
		e.log.Warn().Err(err).Msg("failed to persist message snapshot")
	}
}

func (e *Engine) record(t journal.EntryType, description, entityID string) {
	if e.journal == nil {
		return
	}

	err := e.journal.Record(journal.Entry{
		ID:          uuid.NewString(),
		Type:        t,
		Description: description,
		EntityID:    entityID,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		e.log.Debug().Err(err).Msg("failed to record journal entry")
	}
}

func removeByID(msgs []message.Message, id string) []message.Message {
	out := msgs[:0]
	for _, m := range msgs {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
