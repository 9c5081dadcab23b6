package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/musterhq/muster/internal/printer"
	"github.com/musterhq/muster/internal/styles"
)

type JournalCmd struct {
	flags *Flags
	limit int
}

// NewJournalCmd creates a new journal command
func NewJournalCmd(flags *Flags) *JournalCmd {
	return &JournalCmd{flags: flags}
}

// Register adds the journal command to the application
func (cmd *JournalCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "journal",
		Usage:       "Show recent engine events",
		UsageText:   "muster journal [--limit N]",
		Description: "Lists recent sends, rollbacks, ticket mutations, and stream reconnects, newest first.",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "number of entries to show (0 for all)",
				Value:       25,
				Destination: &cmd.limit,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *JournalCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	entries, err := cmd.flags.Journal.List(cmd.limit)
	if err != nil {
		return fmt.Errorf("list journal: %w", err)
	}

	if len(entries) == 0 {
		p.Infof("Journal is empty")
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WHEN\tTYPE\tDESCRIPTION\tENTITY")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("Jan 2 15:04:05"),
			e.Type,
			e.Description,
			styles.SubtleStyle.Render(e.EntityID),
		)
	}

	return w.Flush()
}
