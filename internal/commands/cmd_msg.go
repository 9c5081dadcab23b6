package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/musterhq/muster/internal/core/mention"
	"github.com/musterhq/muster/internal/core/message"
	"github.com/musterhq/muster/internal/engine"
	"github.com/musterhq/muster/internal/printer"
	"github.com/musterhq/muster/internal/remote"
	"github.com/musterhq/muster/internal/styles"
)

type MsgCmd struct {
	flags *Flags
}

// NewMsgCmd creates a new msg command
func NewMsgCmd(flags *Flags) *MsgCmd {
	return &MsgCmd{flags: flags}
}

// Register adds the msg command tree to the application
func (cmd *MsgCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "msg",
		Usage: "Send and read messages",
		Commands: []*cli.Command{
			{
				Name:        "send",
				Usage:       "Send a message to an actor or the broadcast channel",
				UsageText:   "muster msg send <recipient> <message>",
				Description: "Recipient may be an actor ID, a display name, or 'general' for the broadcast channel.",
				Action:      cmd.runSend,
			},
			{
				Name:      "read",
				Usage:     "Show a conversation and mark it read",
				UsageText: "muster msg read <recipient>",
				Action:    cmd.runRead,
			},
			{
				Name:        "watch",
				Usage:       "Stream the broadcast channel and direct messages live",
				UsageText:   "muster msg watch",
				Description: "Holds the push stream open and prints messages as they arrive. Ctrl-C to stop.",
				Action:      cmd.runWatch,
			},
			{
				Name:      "complete",
				Usage:     "Complete the @mention under the caret (editor integration)",
				UsageText: "muster msg complete <text> <caret> <actor>",
				Hidden:    true,
				Action:    cmd.runComplete,
			},
		},
	})

	return app
}

func (cmd *MsgCmd) runSend(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: muster msg send <recipient> <message>")
	}

	if err := cmd.flags.SyncDirectory(ctx); err != nil {
		return err
	}

	recipientID, err := cmd.flags.ResolveRecipient(c.Args().First())
	if err != nil {
		return err
	}

	content := strings.Join(c.Args().Slice()[1:], " ")

	sent, err := cmd.flags.Engine.Send(ctx, recipientID, content)
	if err != nil {
		return err
	}

	target := "General"
	if !sent.IsBroadcast() {
		target = cmd.flags.Directory.DisplayName(recipientID)
	}
	p.Successf("Sent to %s", target)
	return nil
}

func (cmd *MsgCmd) runRead(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if c.Args().Len() < 1 {
		return fmt.Errorf("usage: muster msg read <recipient>")
	}

	if err := cmd.flags.SyncDirectory(ctx); err != nil {
		return err
	}
	if err := cmd.flags.SyncMessages(ctx); err != nil {
		p.Warnf("Sync failed, showing last known messages: %v", err)
	}

	partnerID, err := cmd.flags.ResolveRecipient(c.Args().First())
	if err != nil {
		return err
	}

	msgs := cmd.flags.Engine.Conversation(partnerID)
	if len(msgs) == 0 {
		p.Infof("No messages with %s", cmd.flags.Directory.DisplayName(partnerID))
		return nil
	}

	out := c.Root().Writer
	for _, m := range msgs {
		printMessage(out, m)
	}

	if err := cmd.flags.Engine.MarkConversationRead(ctx, partnerID); err != nil {
		p.Warnf("Some read receipts failed: %v", err)
	}
	return nil
}

func (cmd *MsgCmd) runWatch(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)
	flags := cmd.flags

	if err := flags.SyncDirectory(ctx); err != nil {
		return err
	}

	runner := engine.NewRunner(engine.RunnerConfig{
		Engine:           flags.Engine,
		API:              flags.Client,
		Directory:        flags.Directory,
		Stream:           remote.NewStream(flags.Client, log.With().Str("component", "stream").Logger()),
		Journal:          flags.Journal,
		Logger:           log.Logger,
		PollInterval:     flags.Config.PollInterval.Std(),
		PresenceInterval: flags.Config.PresenceInterval.Std(),
	})

	updates := flags.Engine.Subscribe()
	seen := map[string]struct{}{}
	for _, m := range flags.Engine.Messages() {
		seen[m.ID] = struct{}{}
	}

	p.Infof("Watching for messages. Ctrl-C to stop.")

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	out := c.Root().Writer
	for {
		select {
		case err := <-done:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case <-updates:
			for _, m := range flags.Engine.Messages() {
				if _, ok := seen[m.ID]; ok || m.IsLocal() {
					continue
				}
				seen[m.ID] = struct{}{}
				printMessage(out, m)
			}
		}
	}
}

func (cmd *MsgCmd) runComplete(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() < 3 {
		return fmt.Errorf("usage: muster msg complete <text> <caret> <actor>")
	}

	caret, err := strconv.Atoi(c.Args().Get(1))
	if err != nil || caret < 0 {
		return fmt.Errorf("caret must be a non-negative integer")
	}

	if err := cmd.flags.SyncDirectory(ctx); err != nil {
		return err
	}

	actorID, err := cmd.flags.ResolveRecipient(c.Args().Get(2))
	if err != nil {
		return err
	}
	actor, ok := cmd.flags.Directory.Get(actorID)
	if !ok {
		return fmt.Errorf("unknown actor %q", c.Args().Get(2))
	}

	text, newCaret := mention.Complete(c.Args().First(), caret, actor)
	_, _ = fmt.Fprintf(c.Root().Writer, "%d\t%s\n", newCaret, text)
	return nil
}

func printMessage(out io.Writer, m message.Message) {
	channel := ""
	if m.IsBroadcast() {
		channel = styles.SubtleStyle.Render("[general] ")
	}

	sender := m.SenderName
	if sender == "" {
		sender = m.SenderID
	}

	_, _ = fmt.Fprintf(out, "%s %s%s: %s\n",
		styles.SubtleStyle.Render(m.Timestamp.Local().Format(time.Kitchen)),
		channel,
		styles.HeaderStyle.Render(sender),
		m.Content,
	)
}
