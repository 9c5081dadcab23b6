// Package config handles configuration loading and validation for muster.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so interval settings can be written as
// human-readable strings ("30s", "1m") in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the application configuration.
type Config struct {
	// ServerURL is the base URL of the portal API.
	ServerURL string `yaml:"server_url"`
	// ActorID identifies the signed-in actor. Session lifecycle itself is
	// handled outside this client; the token arrives via flag or env.
	ActorID string `yaml:"actor_id"`
	// Token is an optional stored session token. A --token flag or
	// MUSTER_TOKEN env var takes precedence.
	Token string `yaml:"token"`

	// PollInterval is how often the poll fallback fetches the full message
	// snapshot.
	PollInterval Duration `yaml:"poll_interval"`
	// PresenceInterval is how often online presence is refreshed.
	PresenceInterval Duration `yaml:"presence_interval"`
	// RequestTimeout bounds remote mutation calls.
	RequestTimeout Duration `yaml:"request_timeout"`

	Attachments AttachmentRules `yaml:"attachments"`

	DataDir string `yaml:"-"` // set by caller, not from config file
}

// AttachmentRules adds local upload restrictions on top of the built-in
// size and MIME policy.
type AttachmentRules struct {
	// BlockedPatterns are doublestar globs matched against file names.
	// A matching file is rejected before any upload attempt.
	BlockedPatterns []string `yaml:"blocked_patterns"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:     Duration(30 * time.Second),
		PresenceInterval: Duration(15 * time.Second),
		RequestTimeout:   Duration(30 * time.Second),
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the
// provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.PresenceInterval <= 0 {
		c.PresenceInterval = defaults.PresenceInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
}

// Validate checks required fields and pattern syntax.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.ServerURL == "" {
		errs = errs.Append("server_url", fmt.Errorf("is required"))
	} else if u, err := url.Parse(c.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = errs.Append("server_url", fmt.Errorf("must be an absolute URL"))
	}

	if c.ActorID == "" {
		errs = errs.Append("actor_id", fmt.Errorf("is required"))
	}

	if c.DataDir == "" {
		errs = errs.Append("data_dir", fmt.Errorf("cannot be empty"))
	}

	for i, pattern := range c.Attachments.BlockedPatterns {
		if !doublestar.ValidatePattern(pattern) {
			errs = errs.Append(fmt.Sprintf("attachments.blocked_patterns[%d]", i), fmt.Errorf("invalid glob %q", pattern))
		}
	}

	return errs.ToError()
}

// MessagesFile returns the path to the local message log snapshot.
func (c *Config) MessagesFile() string {
	return filepath.Join(c.DataDir, "messages.json")
}

// TicketsFile returns the path to the local ticket collection snapshot.
func (c *Config) TicketsFile() string {
	return filepath.Join(c.DataDir, "tickets.json")
}

// JournalDir returns the directory holding the engine event journal.
func (c *Config) JournalDir() string {
	return filepath.Join(c.DataDir, "journal")
}
