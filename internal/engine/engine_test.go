package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musterhq/muster/internal/core/directory"
	"github.com/musterhq/muster/internal/core/journal"
	"github.com/musterhq/muster/internal/core/message"
	"github.com/musterhq/muster/internal/core/ticket"
	"github.com/musterhq/muster/internal/remote"
)

// fakeAPI implements remote.API with overridable behavior per call.
type fakeAPI struct {
	sendFn     func(ctx context.Context, msg message.Message) (string, error)
	markReadFn func(ctx context.Context, id string) error
	listFn     func(ctx context.Context, actorID string) ([]message.Message, error)
}

func (f *fakeAPI) SendMessage(ctx context.Context, msg message.Message) (string, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return "srv-" + msg.ID, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, actorID string) ([]message.Message, error) {
	if f.listFn != nil {
		return f.listFn(ctx, actorID)
	}
	return nil, nil
}

func (f *fakeAPI) MarkMessageRead(ctx context.Context, id string) error {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, id)
	}
	return nil
}

func (f *fakeAPI) ListActors(context.Context) ([]directory.Actor, error) { return nil, nil }
func (f *fakeAPI) ListOnlinePresence(context.Context) ([]string, error)  { return nil, nil }

func (f *fakeAPI) ListTickets(context.Context, string) ([]ticket.Ticket, error) { return nil, nil }
func (f *fakeAPI) CreateTicket(context.Context, ticket.Ticket) (string, error)  { return "", nil }
func (f *fakeAPI) UpdateTicket(context.Context, string, remote.TicketPatch) error {
	return nil
}

func (f *fakeAPI) UploadAttachment(context.Context, string, ticket.FileMeta, io.Reader) (ticket.Attachment, error) {
	return ticket.Attachment{}, nil
}

func (f *fakeAPI) DownloadAttachment(context.Context, string, string, io.Writer) error { return nil }
func (f *fakeAPI) NotifyMentions(context.Context, []string, string) error              { return nil }

func (f *fakeAPI) StreamTicket(context.Context) (string, error)           { return "", nil }
func (f *fakeAPI) StreamConnect(context.Context, string) (string, error)  { return "", nil }
func (f *fakeAPI) StreamEvents(context.Context, string, string, int) (remote.StreamBatch, error) {
	return remote.StreamBatch{}, nil
}

// memJournal collects journal entries in memory.
type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *memJournal) Record(e journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) List(limit int) ([]journal.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]journal.Entry, len(j.entries))
	copy(out, j.entries)
	return out, nil
}

func (j *memJournal) typesRecorded() []journal.EntryType {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []journal.EntryType
	for _, e := range j.entries {
		out = append(out, e.Type)
	}
	return out
}

func testDirectory() *directory.Directory {
	return directory.New([]directory.Actor{
		{ID: "me", Name: "Mara Voss", Role: directory.RoleVolunteer},
		{ID: "bob", Name: "Bob Tran", Role: directory.RoleCoordinator},
	})
}

func newTestEngine(t *testing.T, api *fakeAPI, jrnl journal.Store) *Engine {
	t.Helper()

	e, err := New(Config{
		ActorID:   "me",
		ActorName: "Mara Voss",
		API:       api,
		Directory: testDirectory(),
		Journal:   jrnl,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return e
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSend_AcknowledgmentSwapsID(t *testing.T) {
	api := &fakeAPI{
		sendFn: func(_ context.Context, msg message.Message) (string, error) {
			assert.True(t, msg.IsLocal(), "submitted message should carry a temporary ID")
			return "srv-1", nil
		},
	}
	e := newTestEngine(t, api, nil)

	sent, err := e.Send(context.Background(), "bob", "shift swap?")
	require.NoError(t, err)

	assert.Equal(t, "srv-1", sent.ID)
	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID)
	assert.False(t, msgs[0].IsLocal())
}

func TestSend_VisibleWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		sendFn: func(_ context.Context, msg message.Message) (string, error) {
			<-release
			return "srv-1", nil
		},
	}
	e := newTestEngine(t, api, nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.Send(context.Background(), "bob", "on my way")
		done <- err
	}()

	waitFor(t, func() bool {
		msgs := e.Messages()
		return len(msgs) == 1 && msgs[0].IsLocal()
	}, "optimistic message to appear")

	close(release)
	require.NoError(t, <-done)

	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID)
}

func TestSend_FailureRollsBack(t *testing.T) {
	api := &fakeAPI{
		sendFn: func(context.Context, message.Message) (string, error) {
			return "", errors.New("gateway timeout")
		},
	}
	jrnl := &memJournal{}
	e := newTestEngine(t, api, jrnl)

	_, err := e.Send(context.Background(), "bob", "hello?")
	require.Error(t, err)

	assert.Empty(t, e.Messages(), "failed send must leave the log as it was")
	assert.Contains(t, jrnl.typesRecorded(), journal.EntrySendRollback)
}

func TestSend_RejectsEmptyAndUnknown(t *testing.T) {
	e := newTestEngine(t, &fakeAPI{}, nil)

	_, err := e.Send(context.Background(), "bob", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = e.Send(context.Background(), "nobody", "hi")
	assert.ErrorIs(t, err, ErrUnknownRecipient)

	assert.Empty(t, e.Messages())
}

func TestSend_PushArrivesBeforeAcknowledgment(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		sendFn: func(_ context.Context, msg message.Message) (string, error) {
			<-release
			return "srv-9", nil
		},
	}
	e := newTestEngine(t, api, nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.Send(context.Background(), "bob", "copy that")
		done <- err
	}()

	waitFor(t, func() bool { return len(e.Messages()) == 1 }, "optimistic message")

	// The server's push delivery of our own message lands before the send
	// call returns.
	e.IngestPush([]message.Message{{
		ID:          "srv-9",
		SenderID:    "me",
		RecipientID: "bob",
		Content:     "copy that",
		Timestamp:   time.Now().UTC(),
	}})

	close(release)
	require.NoError(t, <-done)

	msgs := e.Messages()
	require.Len(t, msgs, 1, "pushed copy and acknowledged send must collapse into one")
	assert.Equal(t, "srv-9", msgs[0].ID)
}

func TestIngestPush_Idempotent(t *testing.T) {
	e := newTestEngine(t, &fakeAPI{}, nil)

	m := message.Message{ID: "srv-1", SenderID: "bob", RecipientID: "me", Timestamp: time.Now().UTC()}
	e.IngestPush([]message.Message{m})
	e.IngestPush([]message.Message{m})

	assert.Len(t, e.Messages(), 1)
}

func TestIngestPoll_PreservesInFlightSends(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		sendFn: func(context.Context, message.Message) (string, error) {
			<-release
			return "srv-2", nil
		},
	}
	e := newTestEngine(t, api, nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.Send(context.Background(), "bob", "still here")
		done <- err
	}()
	waitFor(t, func() bool { return len(e.Messages()) == 1 }, "optimistic message")

	// Authoritative snapshot knows nothing about the in-flight send.
	e.IngestPoll([]message.Message{
		{ID: "srv-1", SenderID: "bob", RecipientID: "me", Content: "hi", Timestamp: time.Now().UTC().Add(-time.Minute)},
	})

	msgs := e.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "srv-1", msgs[0].ID)
	assert.True(t, msgs[1].IsLocal(), "pending optimistic message must survive the poll merge")

	close(release)
	require.NoError(t, <-done)

	// A later poll that includes the acknowledged message replaces cleanly.
	e.IngestPoll([]message.Message{
		{ID: "srv-1", SenderID: "bob", RecipientID: "me", Content: "hi", Timestamp: time.Now().UTC().Add(-time.Minute)},
		{ID: "srv-2", SenderID: "me", RecipientID: "bob", Content: "still here", Timestamp: time.Now().UTC()},
	})
	assert.Len(t, e.Messages(), 2)
}

func TestMarkRead_IndependentReceipts(t *testing.T) {
	api := &fakeAPI{
		markReadFn: func(_ context.Context, id string) error {
			if id == "srv-2" {
				return errors.New("receipt rejected")
			}
			return nil
		},
	}
	jrnl := &memJournal{}
	e := newTestEngine(t, api, jrnl)

	now := time.Now().UTC()
	e.IngestPush([]message.Message{
		{ID: "srv-1", SenderID: "bob", RecipientID: "me", Timestamp: now},
		{ID: "srv-2", SenderID: "bob", RecipientID: "me", Timestamp: now.Add(time.Second)},
	})

	err := e.MarkRead(context.Background(), []string{"srv-1", "srv-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "srv-2")

	byID := map[string]message.Message{}
	for _, m := range e.Messages() {
		byID[m.ID] = m
	}
	assert.True(t, byID["srv-1"].Read, "successful receipt applies even when a sibling fails")
	require.NotNil(t, byID["srv-1"].ReadAt)
	assert.False(t, byID["srv-2"].Read)
	assert.Contains(t, jrnl.typesRecorded(), journal.EntryReadFailed)
}

func TestMarkRead_SkipsOwnReadAndUnknownMessages(t *testing.T) {
	var marked []string
	var mu sync.Mutex
	api := &fakeAPI{
		markReadFn: func(_ context.Context, id string) error {
			mu.Lock()
			marked = append(marked, id)
			mu.Unlock()
			return nil
		},
	}
	e := newTestEngine(t, api, nil)

	now := time.Now().UTC()
	e.IngestPush([]message.Message{
		{ID: "fresh", SenderID: "bob", RecipientID: "me", Timestamp: now},
		{ID: "mine", SenderID: "me", RecipientID: "bob", Timestamp: now.Add(time.Second)},
		{ID: "seen", SenderID: "bob", RecipientID: "me", Read: true, Timestamp: now.Add(2 * time.Second)},
	})

	err := e.MarkRead(context.Background(), []string{"fresh", "mine", "seen", "ghost", "fresh"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, marked, "own, already-read, unknown, and duplicate IDs produce no receipt")

	for _, m := range e.Messages() {
		if m.ID == "mine" {
			assert.False(t, m.Read, "messages the actor sent keep their read state")
		}
	}
}

func TestMarkConversationRead(t *testing.T) {
	var marked []string
	var mu sync.Mutex
	api := &fakeAPI{
		markReadFn: func(_ context.Context, id string) error {
			mu.Lock()
			marked = append(marked, id)
			mu.Unlock()
			return nil
		},
	}
	e := newTestEngine(t, api, nil)

	now := time.Now().UTC()
	e.IngestPush([]message.Message{
		{ID: "a1", SenderID: "bob", RecipientID: "me", Timestamp: now},
		{ID: "a2", SenderID: "me", RecipientID: "bob", Timestamp: now.Add(time.Second)},
		{ID: "a3", SenderID: "bob", RecipientID: message.BroadcastRecipient, Timestamp: now.Add(2 * time.Second)},
		{ID: "a4", SenderID: "bob", RecipientID: "me", Read: true, Timestamp: now.Add(3 * time.Second)},
	})

	require.NoError(t, e.MarkConversationRead(context.Background(), "bob"))
	assert.ElementsMatch(t, []string{"a1"}, marked, "own, broadcast, and already-read messages get no receipt")
}

func TestConversation_OrderedByTimestamp(t *testing.T) {
	e := newTestEngine(t, &fakeAPI{}, nil)

	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	// Delivered out of order on purpose.
	e.IngestPush([]message.Message{
		{ID: "m3", SenderID: "bob", RecipientID: "me", Timestamp: base.Add(2 * time.Minute)},
		{ID: "m1", SenderID: "me", RecipientID: "bob", Timestamp: base},
		{ID: "m2", SenderID: "bob", RecipientID: "me", Timestamp: base.Add(time.Minute)},
	})

	conv := e.Conversation("bob")
	require.Len(t, conv, 3)
	for i, want := range []string{"m1", "m2", "m3"} {
		assert.Equal(t, want, conv[i].ID)
	}
}

func TestSubscribe_SignalsOnChange(t *testing.T) {
	e := newTestEngine(t, &fakeAPI{}, nil)
	ch := e.Subscribe()

	e.IngestPush([]message.Message{{ID: "m1", SenderID: "bob", RecipientID: "me", Timestamp: time.Now().UTC()}})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal after ingesting a push")
	}
}

func TestEngine_SeedsFromStore(t *testing.T) {
	store := &memStore{msgs: []message.Message{
		{ID: "m1", SenderID: "bob", RecipientID: "me", Timestamp: time.Now().UTC()},
	}}

	e, err := New(Config{
		ActorID:   "me",
		API:       &fakeAPI{},
		Directory: testDirectory(),
		Store:     store,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.Len(t, e.Messages(), 1)

	e.IngestPush([]message.Message{{ID: "m2", SenderID: "bob", RecipientID: "me", Timestamp: time.Now().UTC()}})
	assert.Len(t, store.snapshot(), 2, "changes persist back to the store")
}

type memStore struct {
	mu   sync.Mutex
	msgs []message.Message
}

func (s *memStore) Load() ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Message, len(s.msgs))
	copy(out, s.msgs)
	return out, nil
}

func (s *memStore) Replace(msgs []message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = make([]message.Message, len(msgs))
	copy(s.msgs, msgs)
	return nil
}

func (s *memStore) snapshot() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}
