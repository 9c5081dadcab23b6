package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/musterhq/muster/internal/core/config"
	"github.com/musterhq/muster/internal/core/directory"
	"github.com/musterhq/muster/internal/core/journal"
	"github.com/musterhq/muster/internal/core/message"
	"github.com/musterhq/muster/internal/engine"
	"github.com/musterhq/muster/internal/remote"
	"github.com/musterhq/muster/internal/tickets"
)

// Flags carries global flag values plus the services wired in the Before
// hook, shared by every command.
type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string
	Token      string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	Session   *remote.Session
	Client    *remote.Client
	Directory *directory.Directory
	Engine    *engine.Engine
	Tickets   *tickets.Service
	Journal   journal.Store
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "muster", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "muster")
}

// SyncDirectory refreshes the actor roster and, best-effort, the online
// set. Presence failure is tolerated; a stale roster is not.
func (f *Flags) SyncDirectory(ctx context.Context) error {
	actors, err := f.Client.ListActors(ctx)
	if err != nil {
		return fmt.Errorf("fetch actor roster: %w", err)
	}
	f.Directory.Replace(actors)

	if online, err := f.Client.ListOnlinePresence(ctx); err == nil {
		f.Directory.SetOnline(online)
	}
	return nil
}

// SyncMessages pulls the authoritative message snapshot into the engine.
func (f *Flags) SyncMessages(ctx context.Context) error {
	msgs, err := f.Client.ListMessages(ctx, f.Config.ActorID)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}
	f.Engine.IngestPoll(msgs)
	return nil
}

// ResolveRecipient turns a user-supplied recipient (actor ID, display
// name, or the broadcast channel) into an actor ID.
func (f *Flags) ResolveRecipient(raw string) (string, error) {
	if raw == message.BroadcastRecipient {
		return message.BroadcastRecipient, nil
	}
	if _, ok := f.Directory.Get(raw); ok {
		return raw, nil
	}
	if a, ok := f.Directory.ByName(raw); ok {
		return a.ID, nil
	}
	return "", fmt.Errorf("unknown recipient %q: not an actor ID, display name, or %q", raw, message.BroadcastRecipient)
}
