package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/musterhq/muster/internal/core/message"
)

// holdMillis is the server-side long-poll hold time for normal stream
// calls. The server holds the connection until new messages arrive, then
// returns immediately.
const holdMillis = 30000

// retryHoldMillis is the short hold used after a stream error so the HTTP
// round trip itself provides backoff before the next attempt.
const retryHoldMillis = 1000

// maxStreamRetries is the number of consecutive failures allowed before
// Next returns an error.
const maxStreamRetries = 5

// Stream is the push-stream subscription. It lazily performs the
// ticket-for-credential exchange, long-polls with a since-cursor, and
// reconnects transparently when the credential is rejected. Intended to be
// driven by a single goroutine; teardown is the caller's context.
type Stream struct {
	api        API
	log        zerolog.Logger
	credential string
	cursor     string
}

// NewStream creates a stream over the given API.
func NewStream(api API, log zerolog.Logger) *Stream {
	return &Stream{api: api, log: log}
}

// connect exchanges a fresh single-use stream ticket for a long-lived
// credential.
func (s *Stream) connect(ctx context.Context) error {
	streamTicket, err := s.api.StreamTicket(ctx)
	if err != nil {
		return fmt.Errorf("obtain stream ticket: %w", err)
	}

	credential, err := s.api.StreamConnect(ctx, streamTicket)
	if err != nil {
		return fmt.Errorf("exchange stream ticket: %w", err)
	}

	s.credential = credential
	return nil
}

// Next blocks until the stream delivers at least one new message, the
// context is cancelled, or too many consecutive failures accumulate.
// Empty long-poll responses (server hold elapsed with no news) loop
// silently. A rejected credential triggers a fresh ticket exchange rather
// than an error.
func (s *Stream) Next(ctx context.Context) ([]message.Message, error) {
	var retries int

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if s.credential == "" {
			if err := s.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				retries++
				if retries > maxStreamRetries {
					return nil, fmt.Errorf("stream connect failed %d consecutive times: %w", retries, err)
				}
				s.log.Debug().Err(err).Int("attempt", retries).Msg("stream connect failed, retrying")
				continue
			}
			s.log.Debug().Msg("stream connected")
		}

		hold := holdMillis
		if retries > 0 {
			hold = retryHoldMillis
		}

		batch, err := s.api.StreamEvents(ctx, s.credential, s.cursor, hold)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, ErrStreamCredential) {
				// Credential aged out. Reconnect with a fresh ticket; the
				// cursor survives so no messages are skipped.
				s.log.Debug().Msg("stream credential rejected, reconnecting")
				s.credential = ""
				continue
			}

			retries++
			// Transport-level failures often leave a poisoned pooled
			// connection behind; drop idle connections so the next attempt
			// opens a fresh socket.
			if closer, ok := s.api.(interface{ CloseIdleConnections() }); ok {
				closer.CloseIdleConnections()
			}
			if retries > maxStreamRetries {
				return nil, fmt.Errorf("stream failed %d consecutive times: %w", retries, err)
			}
			s.log.Debug().Err(err).Int("attempt", retries).Int("max_attempts", maxStreamRetries).Msg("stream error, retrying")
			continue
		}

		retries = 0
		s.cursor = batch.Cursor

		if len(batch.Messages) > 0 {
			return batch.Messages, nil
		}
	}
}
