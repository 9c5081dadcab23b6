package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/musterhq/muster/internal/core/directory"
	"github.com/musterhq/muster/internal/core/journal"
	"github.com/musterhq/muster/internal/remote"
)

// streamRestartDelay is how long the runner waits before restarting the
// push stream after it gives up.
const streamRestartDelay = 5 * time.Second

// RunnerConfig wires the sync runner's collaborators and cadence.
type RunnerConfig struct {
	Engine           *Engine
	API              remote.API
	Directory        *directory.Directory
	Stream           *remote.Stream
	Journal          journal.Store
	Logger           zerolog.Logger
	PollInterval     time.Duration
	PresenceInterval time.Duration
}

// Runner drives the engine's three recurring inputs: the push stream, the
// reconciliation poll, and the presence poll. All three are scoped to the
// context passed to Run.
type Runner struct {
	engine  *Engine
	api     remote.API
	dir     *directory.Directory
	stream  *remote.Stream
	journal journal.Store
	log     zerolog.Logger

	pollInterval     time.Duration
	presenceInterval time.Duration
}

// NewRunner creates a runner. Intervals of zero fall back to 30s (poll)
// and 15s (presence).
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.PresenceInterval <= 0 {
		cfg.PresenceInterval = 15 * time.Second
	}

	return &Runner{
		engine:           cfg.Engine,
		api:              cfg.API,
		dir:              cfg.Directory,
		stream:           cfg.Stream,
		journal:          cfg.Journal,
		log:              cfg.Logger.With().Str("component", "runner").Logger(),
		pollInterval:     cfg.PollInterval,
		presenceInterval: cfg.PresenceInterval,
	}
}

// Run performs an initial sync, then blocks pumping the stream and tickers
// until the context is cancelled. It always returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	r.poll(ctx)
	r.presence(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.pumpStream(ctx)
	}()

	pollTick := time.NewTicker(r.pollInterval)
	defer pollTick.Stop()
	presenceTick := time.NewTicker(r.presenceInterval)
	defer presenceTick.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-pollTick.C:
			r.poll(ctx)
		case <-presenceTick.C:
			r.presence(ctx)
		}
	}
}

// pumpStream routes push deliveries into the engine. When the stream gives
// up after repeated failures it is restarted after a short delay; the poll
// cycle covers any gap in the meantime.
func (r *Runner) pumpStream(ctx context.Context) {
	for {
		msgs, err := r.stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			r.log.Warn().Err(err).Msg("push stream stopped, restarting")
			r.record("push stream restarted after failure: " + err.Error())

			select {
			case <-ctx.Done():
				return
			case <-time.After(streamRestartDelay):
			}
			continue
		}

		r.engine.IngestPush(msgs)
	}
}

// poll fetches the authoritative message snapshot and the actor roster.
// Either failure is logged and skipped; the next tick retries.
func (r *Runner) poll(ctx context.Context) {
	msgs, err := r.api.ListMessages(ctx, r.engine.actorID)
	if err != nil {
		r.log.Warn().Err(err).Msg("message poll failed")
	} else {
		r.engine.IngestPoll(msgs)
	}

	actors, err := r.api.ListActors(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("actor roster refresh failed")
		return
	}
	r.dir.Replace(actors)
}

// presence refreshes the online set. Presence is advisory: failure leaves
// the previous set in place and never blocks messaging.
func (r *Runner) presence(ctx context.Context) {
	ids, err := r.api.ListOnlinePresence(ctx)
	if err != nil {
		r.log.Debug().Err(err).Msg("presence poll failed")
		return
	}
	r.dir.SetOnline(ids)
}

func (r *Runner) record(description string) {
	if r.journal == nil {
		return
	}
	_ = r.journal.Record(journal.Entry{
		ID:          uuid.NewString(),
		Type:        journal.EntryStreamReconnect,
		Description: description,
		Timestamp:   time.Now().UTC(),
	})
}
