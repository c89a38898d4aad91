// ABOUTME: Defines lipgloss styles for the board columns, cards, dialogs and status bar.
// ABOUTME: Provides AccentForCard to map a card's palette color onto a terminal color.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/retroboard/board/core"
)

var (
	// Column borders
	ColumnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	FocusedColumnStyle = ColumnStyle.
				BorderForeground(lipgloss.Color("62"))

	// Title styling
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	// Cards
	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			PaddingLeft(1)
	SelectedCardStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	CardNumberStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	PlaceholderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	VoteStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	MyVoteStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	RunningStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	OvertimeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)
	ExpiredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	HelpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	// Activity log
	ActivityBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("238")).
				Padding(0, 1)
	ActivityTimeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	ActivityInfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	ActivityJoinStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	ActivityLeaveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	// Card detail labels
	LabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(10)

	// Username and edit dialogs
	DialogStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(1, 2)
)

// paletteAccents pairs each core.Palette entry with a terminal color of the
// same hue.
var paletteAccents = map[string]lipgloss.Color{
	core.Palette[0]: lipgloss.Color("97"),
	core.Palette[1]: lipgloss.Color("67"),
	core.Palette[2]: lipgloss.Color("72"),
	core.Palette[3]: lipgloss.Color("137"),
	core.Palette[4]: lipgloss.Color("132"),
	core.Palette[5]: lipgloss.Color("107"),
}

// AccentForCard returns the border color for a card, grey when the card's
// color is not from the palette.
func AccentForCard(c core.Card) lipgloss.Color {
	if accent, ok := paletteAccents[c.BackgroundColor]; ok {
		return accent
	}
	return lipgloss.Color("245")
}
