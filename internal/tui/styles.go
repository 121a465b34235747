package tui

import "github.com/charmbracelet/lipgloss"

// Palette shared with the command-line tables in internal/view.
var (
	colorPrimary   = lipgloss.Color("#F28C28") // tabs, focused panels
	colorMuted     = lipgloss.Color("#7A7A7A")
	colorSuccess   = lipgloss.Color("#4CAF50")
	colorError     = lipgloss.Color("#E5484D")
	colorFg        = lipgloss.Color("#E6E1CF")
	colorSubtle    = lipgloss.Color("#3B4252")
	colorHighlight = lipgloss.Color("#5FB3B3") // selected activity, record values
)

var (
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(colorPrimary).
			Padding(0, 1)
	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Padding(0, 1)

	// panelStyle frames the report chart and totals; activePanelStyle the
	// activity details.
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle).
			Padding(0, 1)
	activePanelStyle = panelStyle.
				BorderForeground(colorPrimary)

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorFg)
	successStyle   = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle     = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	highlightStyle = lipgloss.NewStyle().Foreground(colorHighlight)

	headerStyle = lipgloss.NewStyle().Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)
)
