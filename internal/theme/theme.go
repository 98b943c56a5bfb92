// Package theme holds the terminal styles used by the command line output.
package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for section titles.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// PanelStyle frames a block of output.
var PanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// HelpStyle is used for hints and secondary text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// ErrorStyle renders failures.
var ErrorStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)

// OKStyle renders confirmations.
var OKStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorGreen)

// MailboxStyle colors a mailbox line by its role in triage: "processed",
// "escalate", "sent", "noselect" or anything else for a plain mailbox.
func MailboxStyle(role string) lipgloss.Style {
	base := lipgloss.NewStyle().PaddingLeft(2)

	switch role {
	case "processed":
		return base.Bold(true).Foreground(ColorGreen)
	case "escalate":
		return base.Bold(true).Foreground(ColorYellow)
	case "sent":
		return base.Foreground(ColorBlue)
	case "noselect":
		return base.Foreground(ColorGray).Italic(true)
	default:
		return base.Foreground(ColorWhite)
	}
}
