package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musterhq/muster/internal/core/message"
	"github.com/musterhq/muster/internal/remote"
)

// runnerAPI layers stream and presence behavior over the base fake.
type runnerAPI struct {
	*fakeAPI
	streamed atomic.Bool
}

func (a *runnerAPI) ListOnlinePresence(context.Context) ([]string, error) {
	return []string{"bob"}, nil
}

func (a *runnerAPI) StreamTicket(context.Context) (string, error) { return "ticket-1", nil }

func (a *runnerAPI) StreamConnect(context.Context, string) (string, error) { return "cred-1", nil }

func (a *runnerAPI) StreamEvents(ctx context.Context, _, _ string, _ int) (remote.StreamBatch, error) {
	if a.streamed.CompareAndSwap(false, true) {
		return remote.StreamBatch{
			Cursor: "c1",
			Messages: []message.Message{
				{ID: "pushed-1", SenderID: "bob", RecipientID: "me", Timestamp: time.Now().UTC()},
			},
		}, nil
	}
	<-ctx.Done()
	return remote.StreamBatch{}, ctx.Err()
}

func TestRunner_RoutesAllThreeInputs(t *testing.T) {
	polled := message.Message{ID: "polled-1", SenderID: "bob", RecipientID: "me", Timestamp: time.Now().UTC()}
	api := &runnerAPI{fakeAPI: &fakeAPI{
		listFn: func(context.Context, string) ([]message.Message, error) {
			return []message.Message{polled}, nil
		},
	}}

	dir := testDirectory()
	e, err := New(Config{
		ActorID:   "me",
		API:       api,
		Directory: dir,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	runner := NewRunner(RunnerConfig{
		Engine:           e,
		API:              api,
		Directory:        dir,
		Stream:           remote.NewStream(api, zerolog.Nop()),
		Logger:           zerolog.Nop(),
		PollInterval:     10 * time.Millisecond,
		PresenceInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	waitFor(t, func() bool {
		ids := map[string]bool{}
		for _, m := range e.Messages() {
			ids[m.ID] = true
		}
		return ids["pushed-1"] && ids["polled-1"] && dir.IsOnline("bob")
	}, "push, poll, and presence to all land")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunner_DefaultsIntervals(t *testing.T) {
	r := NewRunner(RunnerConfig{Logger: zerolog.Nop()})
	assert.Equal(t, 30*time.Second, r.pollInterval)
	assert.Equal(t, 15*time.Second, r.presenceInterval)
}
