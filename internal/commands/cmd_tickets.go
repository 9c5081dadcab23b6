package commands

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/musterhq/muster/internal/core/ticket"
	"github.com/musterhq/muster/internal/printer"
	"github.com/musterhq/muster/internal/styles"
	"github.com/musterhq/muster/internal/tickets"
)

// showMaxWidth caps the rendered ticket width in wide terminals.
const showMaxWidth = 100

type TicketsCmd struct {
	flags *Flags

	subject     string
	description string
	category    string
	priority    string
	visibility  string
	internal    bool
	output      string
}

// NewTicketsCmd creates a new tickets command
func NewTicketsCmd(flags *Flags) *TicketsCmd {
	return &TicketsCmd{flags: flags}
}

// Register adds the tickets command tree to the application
func (cmd *TicketsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "tickets",
		Usage: "Manage support tickets",
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List tickets you can see",
				UsageText: "muster tickets ls",
				Action:    cmd.runLs,
			},
			{
				Name:      "show",
				Usage:     "Show one ticket with notes and history",
				UsageText: "muster tickets show <id>",
				Action:    cmd.runShow,
			},
			{
				Name:      "new",
				Usage:     "Create a ticket",
				UsageText: "muster tickets new [options]",
				Description: `Creates a ticket. With --subject the ticket is created directly;
without it an interactive form collects the fields.`,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Usage: "ticket subject", Destination: &cmd.subject},
					&cli.StringFlag{Name: "description", Usage: "ticket description (markdown)", Destination: &cmd.description},
					&cli.StringFlag{Name: "category", Usage: "free-form category", Destination: &cmd.category},
					&cli.StringFlag{Name: "priority", Usage: "low, medium, high, urgent", Destination: &cmd.priority},
					&cli.StringFlag{Name: "visibility", Usage: "public, team, private", Destination: &cmd.visibility},
				},
				Action: cmd.runNew,
			},
			{
				Name:      "status",
				Usage:     "Change a ticket's status",
				UsageText: "muster tickets status <id> <open|in_progress|closed>",
				Action:    cmd.runStatus,
			},
			{
				Name:      "priority",
				Usage:     "Change a ticket's priority",
				UsageText: "muster tickets priority <id> <low|medium|high|urgent>",
				Action:    cmd.runPriority,
			},
			{
				Name:      "assign",
				Usage:     "Assign a ticket to an actor (empty actor unassigns)",
				UsageText: "muster tickets assign <id> [actor]",
				Action:    cmd.runAssign,
			},
			{
				Name:      "claim",
				Usage:     "Assign a ticket to yourself",
				UsageText: "muster tickets claim <id>",
				Action:    cmd.runClaim,
			},
			{
				Name:      "edit",
				Usage:     "Edit a ticket's subject or description",
				UsageText: "muster tickets edit <id> [options]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Usage: "new subject", Destination: &cmd.subject},
					&cli.StringFlag{Name: "description", Usage: "new description", Destination: &cmd.description},
				},
				Action: cmd.runEdit,
			},
			{
				Name:      "note",
				Usage:     "Add a note to a ticket",
				UsageText: "muster tickets note <id> <text> [--internal]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "internal", Usage: "admin-only note", Destination: &cmd.internal},
				},
				Action: cmd.runNote,
			},
			{
				Name:      "attach",
				Usage:     "Upload a file attachment",
				UsageText: "muster tickets attach <id> <file>",
				Action:    cmd.runAttach,
			},
			{
				Name:      "download",
				Usage:     "Download an attachment",
				UsageText: "muster tickets download <id> <attachment-id> [-o file]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file (default: original name)", Destination: &cmd.output},
				},
				Action: cmd.runDownload,
			},
		},
	})

	return app
}

// sync refreshes the roster and ticket collection before a subcommand.
func (cmd *TicketsCmd) sync(ctx context.Context) error {
	if err := cmd.flags.SyncDirectory(ctx); err != nil {
		return err
	}
	return cmd.flags.Tickets.Refresh(ctx)
}

func (cmd *TicketsCmd) runLs(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if err := cmd.sync(ctx); err != nil {
		p.Warnf("Sync failed, showing last known tickets: %v", err)
	}

	list := cmd.flags.Tickets.List()
	if len(list) == 0 {
		p.Infof("No tickets. Create one with 'muster tickets new'")
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSUBJECT\tSTATUS\tPRIORITY\tASSIGNEE\tUPDATED")

	for _, t := range list {
		assignee := ""
		if t.AssignedTo != "" {
			assignee = cmd.flags.Directory.DisplayName(t.AssignedTo)
		}

		updated := t.CreatedAt
		if t.UpdatedAt != nil {
			updated = *t.UpdatedAt
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Subject, styles.Status(t.Status), styles.Priority(t.Priority),
			assignee, relativeTime(updated))
	}

	return w.Flush()
}

func (cmd *TicketsCmd) runShow(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if c.Args().Len() < 1 {
		return fmt.Errorf("usage: muster tickets show <id>")
	}

	if err := cmd.sync(ctx); err != nil {
		p.Warnf("Sync failed, showing last known state: %v", err)
	}

	t, err := cmd.flags.Tickets.Get(c.Args().First())
	if err != nil {
		return err
	}

	actor, _ := cmd.flags.Directory.Get(cmd.flags.Config.ActorID)
	doc := cmd.renderTicketMarkdown(t, ticket.VisibleNotes(t, actor))

	width := showMaxWidth
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && w < width {
		width = w
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("tokyo-night"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		// Degraded output beats no output.
		_, _ = fmt.Fprintln(c.Root().Writer, doc)
		return nil
	}

	rendered, err := renderer.Render(doc)
	if err != nil {
		_, _ = fmt.Fprintln(c.Root().Writer, doc)
		return nil
	}

	_, _ = fmt.Fprint(c.Root().Writer, rendered)
	return nil
}

// renderTicketMarkdown builds the markdown document for tickets show.
func (cmd *TicketsCmd) renderTicketMarkdown(t ticket.Ticket, notes []ticket.Note) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t.Subject)
	fmt.Fprintf(&b, "`%s` · **%s** · %s priority · %s visibility\n\n", t.ID, t.Status, t.Priority, t.Visibility)

	fmt.Fprintf(&b, "- Submitted by %s on %s\n", cmd.flags.Directory.DisplayName(t.SubmittedBy), t.CreatedAt.Local().Format("Jan 2, 2006"))
	if t.AssignedTo != "" {
		fmt.Fprintf(&b, "- Assigned to %s\n", cmd.flags.Directory.DisplayName(t.AssignedTo))
	}
	if t.ClosedAt != nil {
		fmt.Fprintf(&b, "- Closed on %s\n", t.ClosedAt.Local().Format("Jan 2, 2006"))
	}

	if t.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", t.Description)
	}

	if len(t.Attachments) > 0 {
		b.WriteString("\n## Attachments\n\n")
		for _, a := range t.Attachments {
			fmt.Fprintf(&b, "- `%s` %s (%d bytes, %s)\n", a.ID, a.FileName, a.FileSize, a.ContentType)
		}
	}

	if len(notes) > 0 {
		b.WriteString("\n## Notes\n")
		for _, n := range notes {
			marker := ""
			if n.Internal {
				marker = " _(internal)_"
			}
			fmt.Fprintf(&b, "\n**%s**%s · %s\n\n%s\n", n.AuthorName, marker, n.CreatedAt.Local().Format("Jan 2 15:04"), n.Content)
		}
	}

	if len(t.Activity) > 0 {
		b.WriteString("\n## History\n\n")
		for _, a := range t.Activity {
			fmt.Fprintf(&b, "- %s — %s (%s)\n", a.Timestamp.Local().Format("Jan 2 15:04"), a.Description, a.PerformedByName)
		}
	}

	return b.String()
}

func (cmd *TicketsCmd) runNew(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if err := cmd.flags.SyncDirectory(ctx); err != nil {
		p.Warnf("Roster refresh failed: %v", err)
	}

	in := tickets.CreateInput{
		Subject:     cmd.subject,
		Description: cmd.description,
		Category:    cmd.category,
		Priority:    ticket.Priority(cmd.priority),
		Visibility:  ticket.Visibility(cmd.visibility),
	}

	if in.Subject == "" {
		if err := cmd.runNewForm(&in); err != nil {
			return err
		}
	}

	created, err := cmd.flags.Tickets.Create(ctx, in)
	if err != nil {
		return err
	}

	p.Successf("Created ticket %s", created.ID)
	return nil
}

// runNewForm collects ticket fields interactively.
func (cmd *TicketsCmd) runNewForm(in *tickets.CreateInput) error {
	priority := string(ticket.PriorityMedium)
	visibility := string(ticket.VisibilityPublic)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Subject").
				Value(&in.Subject).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("subject is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Description("Markdown is rendered in 'tickets show'").
				Value(&in.Description),
			huh.NewInput().
				Title("Category").
				Value(&in.Category),
			huh.NewSelect[string]().
				Title("Priority").
				Options(
					huh.NewOption("Low", string(ticket.PriorityLow)),
					huh.NewOption("Medium", string(ticket.PriorityMedium)),
					huh.NewOption("High", string(ticket.PriorityHigh)),
					huh.NewOption("Urgent", string(ticket.PriorityUrgent)),
				).
				Value(&priority),
			huh.NewSelect[string]().
				Title("Visibility").
				Options(
					huh.NewOption("Public", string(ticket.VisibilityPublic)),
					huh.NewOption("Team", string(ticket.VisibilityTeam)),
					huh.NewOption("Private", string(ticket.VisibilityPrivate)),
				).
				Value(&visibility),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	in.Priority = ticket.Priority(priority)
	in.Visibility = ticket.Visibility(visibility)
	return nil
}

func (cmd *TicketsCmd) runStatus(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: muster tickets status <id> <open|in_progress|closed>")
	}

	if err := cmd.sync(ctx); err != nil {
		return err
	}

	updated, err := cmd.flags.Tickets.ChangeStatus(ctx, c.Args().First(), ticket.Status(c.Args().Get(1)))
	if err != nil {
		return err
	}

	printer.Ctx(ctx).Successf("Ticket %s is now %s", updated.ID, updated.Status)
	return nil
}

func (cmd *TicketsCmd) runPriority(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: muster tickets priority <id> <low|medium|high|urgent>")
	}

	if err := cmd.sync(ctx); err != nil {
		return err
	}

	updated, err := cmd.flags.Tickets.ChangePriority(ctx, c.Args().First(), ticket.Priority(c.Args().Get(1)))
	if err != nil {
		return err
	}

	printer.Ctx(ctx).Successf("Ticket %s priority set to %s", updated.ID, updated.Priority)
	return nil
}

func (cmd *TicketsCmd) runAssign(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("usage: muster tickets assign <id> [actor]")
	}

	if err := cmd.sync(ctx); err != nil {
		return err
	}

	assigneeID := ""
	if c.Args().Len() > 1 {
		id, err := cmd.flags.ResolveRecipient(c.Args().Get(1))
		if err != nil {
			return err
		}
		assigneeID = id
	}

	updated, err := cmd.flags.Tickets.Assign(ctx, c.Args().First(), assigneeID)
	if err != nil {
		return err
	}

	p := printer.Ctx(ctx)
	if updated.AssignedTo == "" {
		p.Successf("Ticket %s unassigned", updated.ID)
	} else {
		p.Successf("Ticket %s assigned to %s", updated.ID, cmd.flags.Directory.DisplayName(updated.AssignedTo))
	}
	return nil
}

func (cmd *TicketsCmd) runClaim(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("usage: muster tickets claim <id>")
	}

	if err := cmd.sync(ctx); err != nil {
		return err
	}

	updated, err := cmd.flags.Tickets.Claim(ctx, c.Args().First())
	if err != nil {
		return err
	}

	printer.Ctx(ctx).Successf("Ticket %s is yours", updated.ID)
	return nil
}

func (cmd *TicketsCmd) runEdit(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("usage: muster tickets edit <id> [--subject ...] [--description ...]")
	}

	var in tickets.EditInput
	if c.IsSet("subject") {
		in.Subject = &cmd.subject
	}
	if c.IsSet("description") {
		in.Description = &cmd.description
	}
	if in.Subject == nil && in.Description == nil {
		return fmt.Errorf("nothing to edit: pass --subject and/or --description")
	}

	if err := cmd.sync(ctx); err != nil {
		return err
	}

	updated, err := cmd.flags.Tickets.Edit(ctx, c.Args().First(), in)
	if err != nil {
		return err
	}

	printer.Ctx(ctx).Successf("Ticket %s updated", updated.ID)
	return nil
}

func (cmd *TicketsCmd) runNote(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: muster tickets note <id> <text>")
	}

	if err := cmd.sync(ctx); err != nil {
		return err
	}

	content := strings.Join(c.Args().Slice()[1:], " ")
	note, err := cmd.flags.Tickets.AddNote(ctx, c.Args().First(), content, cmd.internal)
	if err != nil {
		return err
	}

	p := printer.Ctx(ctx)
	if note.Internal {
		p.Successf("Internal note added")
	} else {
		p.Successf("Note added")
	}
	return nil
}

func (cmd *TicketsCmd) runAttach(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: muster tickets attach <id> <file>")
	}

	if err := cmd.sync(ctx); err != nil {
		return err
	}

	path := c.Args().Get(1)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	meta := ticket.FileMeta{
		FileName:    filepath.Base(path),
		FileSize:    info.Size(),
		ContentType: contentTypeFor(path),
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	att, err := cmd.flags.Tickets.AddAttachment(ctx, c.Args().First(), meta, f)
	if err != nil {
		return err
	}

	printer.Ctx(ctx).Successf("Uploaded %s (%d bytes)", att.FileName, att.FileSize)
	return nil
}

func (cmd *TicketsCmd) runDownload(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: muster tickets download <id> <attachment-id>")
	}

	if err := cmd.sync(ctx); err != nil {
		return err
	}

	ticketID, attachmentID := c.Args().First(), c.Args().Get(1)

	t, err := cmd.flags.Tickets.Get(ticketID)
	if err != nil {
		return err
	}

	target := cmd.output
	if target == "" {
		for _, a := range t.Attachments {
			if a.ID == attachmentID {
				target = a.FileName
				break
			}
		}
	}
	if target == "" {
		return fmt.Errorf("attachment %s not found on ticket %s", attachmentID, ticketID)
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer f.Close() //nolint:errcheck

	if err := cmd.flags.Tickets.DownloadAttachment(ctx, ticketID, attachmentID, f); err != nil {
		_ = os.Remove(target)
		return err
	}

	printer.Ctx(ctx).Successf("Saved %s", target)
	return nil
}

// contentTypeFor guesses a MIME type from the file extension, stripping
// any charset parameter.
func contentTypeFor(path string) string {
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		return "application/octet-stream"
	}
	if idx := strings.IndexByte(ct, ';'); idx > 0 {
		ct = ct[:idx]
	}
	return ct
}
