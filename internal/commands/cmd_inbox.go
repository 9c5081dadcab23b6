package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/musterhq/muster/internal/printer"
	"github.com/musterhq/muster/internal/styles"
)

type InboxCmd struct {
	flags *Flags
}

// NewInboxCmd creates a new inbox command
func NewInboxCmd(flags *Flags) *InboxCmd {
	return &InboxCmd{flags: flags}
}

// Register adds the inbox command to the application
func (cmd *InboxCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "inbox",
		Usage:       "List conversations with unread counts",
		UsageText:   "muster inbox",
		Description: "Displays every conversation, most recently active first, with unread counts and online presence.",
		Action:      cmd.Run,
	})

	return app
}

func (cmd *InboxCmd) Run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if err := cmd.flags.SyncDirectory(ctx); err != nil {
		p.Warnf("Roster refresh failed, using cached names: %v", err)
	}
	if err := cmd.flags.SyncMessages(ctx); err != nil {
		p.Warnf("Sync failed, showing last known messages: %v", err)
	}

	conversations := cmd.flags.Engine.Conversations()
	if len(conversations) == 0 {
		p.Infof("No conversations yet. Try 'muster msg send general \"hello\"'")
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CONVERSATION\tUNREAD\tLAST MESSAGE\tWHEN")

	for _, conv := range conversations {
		name := conv.PartnerName
		if conv.Online {
			name += " " + styles.OnlineMarker
		}

		unread := ""
		if conv.Unread > 0 {
			unread = styles.UnreadStyle.Render(fmt.Sprintf("%d", conv.Unread))
		}

		preview := conv.Last.Content
		if len(preview) > 48 {
			preview = preview[:45] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			name, unread, preview, styles.SubtleStyle.Render(relativeTime(conv.Last.Timestamp)))
	}

	return w.Flush()
}

// relativeTime renders a timestamp as a short "2m ago" style string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}
