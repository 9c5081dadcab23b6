// Package styles provides shared lipgloss styles for CLI output.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/musterhq/muster/internal/core/ticket"
)

// Tokyo Night color palette.
var (
	ColorRed    = lipgloss.Color("#d75f6b")
	ColorGreen  = lipgloss.Color("#9ece6a")
	ColorYellow = lipgloss.Color("#e0af68")
	ColorBlue   = lipgloss.Color("#7aa2f7")
	ColorGray   = lipgloss.Color("#565f89")
	ColorWhite  = lipgloss.Color("#c0caf5")
)

// HeaderStyle styles table and section headers.
var HeaderStyle = lipgloss.NewStyle().
	Foreground(ColorBlue).
	Bold(true)

// SubtleStyle styles secondary text like timestamps and IDs.
var SubtleStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// UnreadStyle styles unread counts in the inbox.
var UnreadStyle = lipgloss.NewStyle().
	Foreground(ColorYellow).
	Bold(true)

// OnlineMarker is rendered next to actors currently online.
var OnlineMarker = lipgloss.NewStyle().
	Foreground(ColorGreen).
	Render("●")

var statusStyles = map[ticket.Status]lipgloss.Style{
	ticket.StatusOpen:       lipgloss.NewStyle().Foreground(ColorGreen),
	ticket.StatusInProgress: lipgloss.NewStyle().Foreground(ColorYellow),
	ticket.StatusClosed:     lipgloss.NewStyle().Foreground(ColorGray),
}

// Status renders a ticket status in its lifecycle color.
func Status(s ticket.Status) string {
	if style, ok := statusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

var priorityStyles = map[ticket.Priority]lipgloss.Style{
	ticket.PriorityLow:    lipgloss.NewStyle().Foreground(ColorGray),
	ticket.PriorityMedium: lipgloss.NewStyle().Foreground(ColorWhite),
	ticket.PriorityHigh:   lipgloss.NewStyle().Foreground(ColorYellow),
	ticket.PriorityUrgent: lipgloss.NewStyle().Foreground(ColorRed).Bold(true),
}

// Priority renders a ticket priority in its urgency color.
func Priority(p ticket.Priority) string {
	if style, ok := priorityStyles[p]; ok {
		return style.Render(string(p))
	}
	return string(p)
}
