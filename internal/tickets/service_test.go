package tickets

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musterhq/muster/internal/core/directory"
	"github.com/musterhq/muster/internal/core/journal"
	"github.com/musterhq/muster/internal/core/message"
	"github.com/musterhq/muster/internal/core/ticket"
	"github.com/musterhq/muster/internal/remote"
)

// fakeRemote records ticket traffic and lets tests script failures.
type fakeRemote struct {
	mu        sync.Mutex
	patches   []remote.TicketPatch
	updateErr error
	createErr error
	uploads   int
	uploadErr error
	notified  chan []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{notified: make(chan []string, 4)}
}

func (f *fakeRemote) recordedPatches() []remote.TicketPatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.TicketPatch, len(f.patches))
	copy(out, f.patches)
	return out
}

func (f *fakeRemote) UpdateTicket(_ context.Context, _ string, patch remote.TicketPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.patches = append(f.patches, patch)
	return nil
}

func (f *fakeRemote) CreateTicket(_ context.Context, _ ticket.Ticket) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return "tk-100", nil
}

func (f *fakeRemote) ListTickets(context.Context, string) ([]ticket.Ticket, error) { return nil, nil }

func (f *fakeRemote) UploadAttachment(_ context.Context, _ string, meta ticket.FileMeta, _ io.Reader) (ticket.Attachment, error) {
	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()
	if f.uploadErr != nil {
		return ticket.Attachment{}, f.uploadErr
	}
	return ticket.Attachment{
		ID:          "att-1",
		FileName:    meta.FileName,
		FileSize:    meta.FileSize,
		ContentType: meta.ContentType,
		UploadedAt:  time.Now().UTC(),
		StorageRef:  "blob/att-1",
	}, nil
}

func (f *fakeRemote) DownloadAttachment(context.Context, string, string, io.Writer) error {
	return nil
}

func (f *fakeRemote) NotifyMentions(_ context.Context, ids []string, _ string) error {
	f.notified <- ids
	return nil
}

func (f *fakeRemote) SendMessage(context.Context, message.Message) (string, error) { return "", nil }
func (f *fakeRemote) ListMessages(context.Context, string) ([]message.Message, error) {
	return nil, nil
}
func (f *fakeRemote) MarkMessageRead(context.Context, string) error               { return nil }
func (f *fakeRemote) ListActors(context.Context) ([]directory.Actor, error)       { return nil, nil }
func (f *fakeRemote) ListOnlinePresence(context.Context) ([]string, error)        { return nil, nil }
func (f *fakeRemote) StreamTicket(context.Context) (string, error)                { return "", nil }
func (f *fakeRemote) StreamConnect(context.Context, string) (string, error)       { return "", nil }
func (f *fakeRemote) StreamEvents(context.Context, string, string, int) (remote.StreamBatch, error) {
	return remote.StreamBatch{}, nil
}

func testDirectory() *directory.Directory {
	return directory.New([]directory.Actor{
		{ID: "me", Name: "Mara Voss", Role: directory.RoleVolunteer},
		{ID: "bob", Name: "Bob Tran", Role: directory.RoleCoordinator},
		{ID: "root", Name: "Dana Ortiz", Role: directory.RoleStaff, IsAdmin: true},
	})
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

func (j *memJournal) List(int) ([]journal.Entry, error) {
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

func newTestService(t *testing.T, actorID string, api *fakeRemote, jrnl journal.Store, seed ...ticket.Ticket) *Service {
	t.Helper()

	s, err := NewService(Config{
		ActorID:   actorID,
		API:       api,
		Directory: testDirectory(),
		Journal:   jrnl,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	s.tickets = seed
	return s
}

func openTicket(id, submitter string, vis ticket.Visibility) ticket.Ticket {
	return ticket.Ticket{
		ID:          id,
		Subject:     "projector bulb burnt out",
		Status:      ticket.StatusOpen,
		Priority:    ticket.PriorityMedium,
		Visibility:  vis,
		SubmittedBy: submitter,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
		Activity:    []ticket.Activity{{ID: "a0", Type: ticket.ActivityCreated}},
	}
}

func TestCreate_ValidatesInput(t *testing.T) {
	api := newFakeRemote()
	s := newTestService(t, "me", api, nil)

	_, err := s.Create(context.Background(), CreateInput{Subject: "  "})

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "subject", fieldErrs[0].Field)
}

func TestCreate_SeedsCreationActivity(t *testing.T) {
	api := newFakeRemote()
	s := newTestService(t, "me", api, nil)

	created, err := s.Create(context.Background(), CreateInput{Subject: "need more chairs"})
	require.NoError(t, err)

	assert.Equal(t, "tk-100", created.ID, "server assigns the ID")
	assert.Equal(t, ticket.StatusOpen, created.Status)
	assert.Equal(t, ticket.PriorityMedium, created.Priority)
	require.Len(t, created.Activity, 1)
	assert.Equal(t, ticket.ActivityCreated, created.Activity[0].Type)
	assert.Equal(t, "me", created.Activity[0].PerformedBy)

	got, err := s.Get("tk-100")
	require.NoError(t, err)
	assert.Equal(t, "need more chairs", got.Subject)
}

func TestChangeStatus_CloseAndReopen(t *testing.T) {
	api := newFakeRemote()
	s := newTestService(t, "me", api, nil, openTicket("tk-1", "me", ticket.VisibilityPublic))

	closed, err := s.ChangeStatus(context.Background(), "tk-1", ticket.StatusClosed)
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt, "closing stamps ClosedAt")

	last, ok := closed.LastActivity()
	require.True(t, ok)
	assert.Equal(t, ticket.ActivityStatusChange, last.Type)
	assert.Equal(t, "open", last.OldValue)
	assert.Equal(t, "closed", last.NewValue)

	reopened, err := s.ChangeStatus(context.Background(), "tk-1", ticket.StatusOpen)
	require.NoError(t, err)
	assert.Nil(t, reopened.ClosedAt, "reopening clears ClosedAt")

	patches := api.recordedPatches()
	require.Len(t, patches, 2)
	assert.NotNil(t, patches[0].ClosedAt)
	assert.True(t, patches[1].ClearClosedAt)
	require.Len(t, patches[0].Activity, 1, "activity rides in the same update as the transition")
}

func TestMutation_RemoteFailureRollsBack(t *testing.T) {
	api := newFakeRemote()
	api.updateErr = errors.New("portal unavailable")
	jrnl := &memJournal{}
	s := newTestService(t, "me", api, jrnl, openTicket("tk-1", "me", ticket.VisibilityPublic))

	_, err := s.ChangePriority(context.Background(), "tk-1", ticket.PriorityUrgent)
	require.Error(t, err)

	got, getErr := s.Get("tk-1")
	require.NoError(t, getErr)
	assert.Equal(t, ticket.PriorityMedium, got.Priority, "failed write restores the snapshot")
	assert.Len(t, got.Activity, 1, "rolled-back activity must not linger")
	assert.Contains(t, jrnl.typesRecorded(), journal.EntryTicketRollback)
}

func TestMutation_AccessDeniedCausesNoRemoteCall(t *testing.T) {
	api := newFakeRemote()
	s := newTestService(t, "me", api, nil, openTicket("tk-1", "bob", ticket.VisibilityPrivate))

	_, err := s.ChangePriority(context.Background(), "tk-1", ticket.PriorityHigh)
	require.ErrorIs(t, err, ticket.ErrAccessDenied)
	assert.Empty(t, api.recordedPatches(), "denied mutations never reach the remote system")
}

func TestClaim_NeedsOnlyViewAccess(t *testing.T) {
	api := newFakeRemote()
	s := newTestService(t, "me", api, nil,
		openTicket("tk-pub", "bob", ticket.VisibilityPublic),
		openTicket("tk-priv", "bob", ticket.VisibilityPrivate),
	)

	claimed, err := s.Claim(context.Background(), "tk-pub")
	require.NoError(t, err)
	assert.Equal(t, "me", claimed.AssignedTo)

	last, ok := claimed.LastActivity()
	require.True(t, ok)
	assert.Equal(t, ticket.ActivityAssigned, last.Type)
	assert.Equal(t, "me", last.NewValue)

	_, err = s.Claim(context.Background(), "tk-priv")
	assert.ErrorIs(t, err, ticket.ErrAccessDenied)
}

func TestAssign_RejectsUnknownAssignee(t *testing.T) {
	api := newFakeRemote()
	s := newTestService(t, "me", api, nil, openTicket("tk-1", "me", ticket.VisibilityPublic))

	_, err := s.Assign(context.Background(), "tk-1", "ghost")
	require.Error(t, err)
	assert.Empty(t, api.recordedPatches())
}

func TestClosedTicket_LifecycleMutationsStillAllowed(t *testing.T) {
	closed := openTicket("tk-1", "me", ticket.VisibilityPublic)
	closed.Status = ticket.StatusClosed
	now := time.Now().UTC()
	closed.ClosedAt = &now

	api := newFakeRemote()
	s := newTestService(t, "me", api, nil, closed)

	reprioritized, err := s.ChangePriority(context.Background(), "tk-1", ticket.PriorityHigh)
	require.NoError(t, err, "priority changes are not blocked by closure")
	assert.Equal(t, ticket.PriorityHigh, reprioritized.Priority)

	assigned, err := s.Assign(context.Background(), "tk-1", "bob")
	require.NoError(t, err, "assignment is not blocked by closure")
	assert.Equal(t, "bob", assigned.AssignedTo)

	reopened, err := s.ChangeStatus(context.Background(), "tk-1", ticket.StatusOpen)
	require.NoError(t, err)
	assert.Nil(t, reopened.ClosedAt)
}

func TestEdit_DeniedToAssignee(t *testing.T) {
	assigned := openTicket("tk-1", "bob", ticket.VisibilityPublic)
	assigned.AssignedTo = "me"

	api := newFakeRemote()
	s := newTestService(t, "me", api, nil, assigned)

	subject := "rewritten by the assignee"
	_, err := s.Edit(context.Background(), "tk-1", EditInput{Subject: &subject})
	assert.ErrorIs(t, err, ticket.ErrAccessDenied, "editing is reserved for the submitter and admins")
	assert.Empty(t, api.recordedPatches())

	_, err = s.ChangePriority(context.Background(), "tk-1", ticket.PriorityHigh)
	assert.NoError(t, err, "the assignee still drives the lifecycle")
}

func TestEdit_AdminMayEditOthersTickets(t *testing.T) {
	api := newFakeRemote()
	s := newTestService(t, "root", api, nil, openTicket("tk-1", "bob", ticket.VisibilityPublic))

	subject := "clarified subject"
	updated, err := s.Edit(context.Background(), "tk-1", EditInput{Subject: &subject})
	require.NoError(t, err)
	assert.Equal(t, subject, updated.Subject)
}

func TestEdit_ClosedTicketRejected(t *testing.T) {
	closed := openTicket("tk-1", "me", ticket.VisibilityPublic)
	closed.Status = ticket.StatusClosed
	now := time.Now().UTC()
	closed.ClosedAt = &now

	api := newFakeRemote()
	s := newTestService(t, "me", api, nil, closed)

	subject := "new subject"
	_, err := s.Edit(context.Background(), "tk-1", EditInput{Subject: &subject})
	assert.ErrorIs(t, err, ticket.ErrClosed)
	assert.Empty(t, api.recordedPatches())
}

func TestEdit_RewritesFieldsWithoutActivity(t *testing.T) {
	api := newFakeRemote()
	s := newTestService(t, "me", api, nil, openTicket("tk-1", "me", ticket.VisibilityPublic))

	subject := "projector bulb replaced wrong"
	updated, err := s.Edit(context.Background(), "tk-1", EditInput{Subject: &subject})
	require.NoError(t, err)

	assert.Equal(t, subject, updated.Subject)
	assert.Len(t, updated.Activity, 1, "edits are not lifecycle mutations")
	require.NotNil(t, updated.UpdatedAt)
}

func TestGet_InvisibleTicketReportsNotFound(t *testing.T) {
	api := newFakeRemote()
	s := newTestService(t, "me", api, nil, openTicket("tk-1", "bob", ticket.VisibilityPrivate))

	_, err := s.Get("tk-1")
	assert.ErrorIs(t, err, ticket.ErrNotFound, "existence of hidden tickets is not leaked")
}

func TestList_FiltersByVisibility(t *testing.T) {
	api := newFakeRemote()
	s := newTestService(t, "me", api, nil,
		openTicket("tk-pub", "bob", ticket.VisibilityPublic),
		openTicket("tk-team", "bob", ticket.VisibilityTeam),
		openTicket("tk-mine", "me", ticket.VisibilityPrivate),
	)

	var ids []string
	for _, tk := range s.List() {
		ids = append(ids, tk.ID)
	}
	assert.ElementsMatch(t, []string{"tk-pub", "tk-mine"}, ids)
}
