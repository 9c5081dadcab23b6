package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/musterhq/muster/internal/commands"
	"github.com/musterhq/muster/internal/core/config"
	"github.com/musterhq/muster/internal/core/directory"
	"github.com/musterhq/muster/internal/engine"
	"github.com/musterhq/muster/internal/printer"
	"github.com/musterhq/muster/internal/remote"
	"github.com/musterhq/muster/internal/store/jsonfile"
	"github.com/musterhq/muster/internal/tickets"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func main() {
	if err := setupLogger("info", ""); err != nil {
		panic(err)
	}

	var (
		p     = printer.New(os.Stderr)
		ctx   = printer.NewContext(context.Background(), p)
		flags = &commands.Flags{}
	)

	app := &cli.Command{
		Name:      "muster",
		Usage:     "Coordinate volunteers: messages, mentions, and support tickets",
		UsageText: "muster [global options] command [command options]",
		Description: `Muster is the command-line client for the volunteer coordination portal.

It keeps a local snapshot of your conversations and tickets, sends messages
optimistically, and reconciles with the portal over a push stream backed by
a polling fallback.

Run 'muster' with no arguments to see your inbox.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("MUSTER_LOG_LEVEL"),
				Value:       "warn",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (optional)",
				Sources:     cli.EnvVars("MUSTER_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("MUSTER_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("MUSTER_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
			&cli.StringFlag{
				Name:        "token",
				Usage:       "portal session token (overrides config)",
				Sources:     cli.EnvVars("MUSTER_TOKEN"),
				Destination: &flags.Token,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := setupLogger(flags.LogLevel, flags.LogFile); err != nil {
				return ctx, err
			}

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			token := flags.Token
			if token == "" {
				token = cfg.Token
			}

			flags.Session = remote.NewSession(token, func() {
				p.Errorf("Session expired. Sign in to the portal and update your token.")
			})

			flags.Client, err = remote.NewClient(remote.ClientConfig{
				BaseURL:    cfg.ServerURL,
				Session:    flags.Session,
				HTTPClient: &http.Client{Timeout: cfg.RequestTimeout.Std()},
				Logger:     log.With().Str("component", "remote").Logger(),
			})
			if err != nil {
				return ctx, err
			}

			flags.Directory = directory.New(nil)
			flags.Journal = jsonfile.NewJournalStore(cfg.JournalDir())

			flags.Engine, err = engine.New(engine.Config{
				ActorID:   cfg.ActorID,
				API:       flags.Client,
				Directory: flags.Directory,
				Store:     jsonfile.NewMessageStore(cfg.MessagesFile()),
				Journal:   flags.Journal,
				Logger:    log.Logger,
			})
			if err != nil {
				return ctx, fmt.Errorf("init engine: %w", err)
			}

			flags.Tickets, err = tickets.NewService(tickets.Config{
				ActorID:         cfg.ActorID,
				API:             flags.Client,
				Directory:       flags.Directory,
				Store:           jsonfile.NewTicketStore(cfg.TicketsFile()),
				Journal:         flags.Journal,
				Logger:          log.Logger,
				BlockedPatterns: cfg.Attachments.BlockedPatterns,
			})
			if err != nil {
				return ctx, fmt.Errorf("init ticket service: %w", err)
			}

			return ctx, nil
		},
	}

	inboxCmd := commands.NewInboxCmd(flags)

	app = inboxCmd.Register(app)
	app = commands.NewMsgCmd(flags).Register(app)
	app = commands.NewTicketsCmd(flags).Register(app)
	app = commands.NewJournalCmd(flags).Register(app)
	app = commands.NewConfigValidateCmd(flags).Register(app)

	// Bare 'muster' shows the inbox.
	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'muster --help' for usage", c.Args().First())
		}
		return inboxCmd.Run(ctx, c)
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Println()
		printer.Ctx(ctx).FatalError(err)
		os.Exit(1)
	}
}

func setupLogger(level string, logFile string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}

	if logFile != "" {
		logDir := filepath.Dir(logFile)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		output = io.MultiWriter(
			zerolog.ConsoleWriter{Out: os.Stderr},
			file,
		)
	}

	log.Logger = log.Output(output).Level(parsedLevel)

	return nil
}
