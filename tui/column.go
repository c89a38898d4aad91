// ABOUTME: Renders one board column and its cards as a bordered lipgloss box.
// ABOUTME: Cards show number, text, vote totals with the viewer's own share, and the stopwatch.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/retroboard/board/core"
)

// renderColumn draws a column of the given outer width and height. selected
// is ignored when the column is not focused.
func renderColumn(col core.ColumnName, cards []core.Card, selected int, focused bool, me string, width, height int) string {
	style := ColumnStyle
	if focused {
		style = FocusedColumnStyle
	}
	inner := width - style.GetHorizontalFrameSize()
	if inner < 8 {
		inner = 8
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("%s (%d)", col.Title(), len(cards))))
	b.WriteString("\n")
	if len(cards) == 0 {
		b.WriteString(PlaceholderStyle.Render("no cards, press a to add"))
	}
	for i, c := range cards {
		b.WriteString("\n")
		b.WriteString(renderCard(c, focused && i == selected, me, inner))
	}

	body := b.String()
	if height > 0 {
		innerHeight := height - style.GetVerticalFrameSize()
		if innerHeight < 1 {
			innerHeight = 1
		}
		body = clipLines(body, innerHeight)
		style = style.Height(innerHeight)
	}
	return style.Width(inner).Render(body)
}

func renderCard(c core.Card, selected bool, me string, width int) string {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		text = PlaceholderStyle.Render("(empty)")
	} else if selected {
		text = SelectedCardStyle.Render(text)
	}

	marker := "  "
	if selected {
		marker = "> "
	}
	header := marker + CardNumberStyle.Render(fmt.Sprintf("#%d", c.CardNumber)) + " " + text

	meta := VoteStyle.Render(fmt.Sprintf("votes %d", c.Votes))
	if mine := c.VotesBy(me); mine > 0 {
		meta += " " + MyVoteStyle.Render(fmt.Sprintf("(you %d/%d)", mine, core.MaxVotesPerUser))
	}
	if c.Seconds > 0 || c.IsTimerRunning {
		timer := core.FormatSeconds(c.Seconds)
		switch {
		case c.Overtime():
			timer = OvertimeStyle.Render(timer + " over")
		case c.IsTimerRunning:
			timer = RunningStyle.Render(timer)
		}
		meta += "  " + timer
	}

	return CardStyle.
		BorderForeground(AccentForCard(c)).
		Width(width - 1).
		Render(header + "\n  " + meta)
}

// clipLines keeps the first n lines, replacing the last kept line with an
// ellipsis when anything was cut.
func clipLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	lines = lines[:n]
	lines[n-1] = HelpStyle.Render("...")
	return strings.Join(lines, "\n")
}

// columnWidths splits total evenly across the three columns.
func columnWidths(total int) []int {
	n := len(core.Columns)
	widths := make([]int, n)
	for i := range widths {
		widths[i] = total / n
	}
	widths[n-1] += total % n
	return widths
}

func joinColumns(cols []string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}
