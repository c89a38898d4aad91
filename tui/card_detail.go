// ABOUTME: Side panel with the full details of the selected card.
// ABOUTME: Shows the untruncated text, who voted how often, the stopwatch and the last change time.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/retroboard/board/core"
)

// CardDetailModel renders one card in full.
type CardDetailModel struct {
	card   *core.Card
	column core.ColumnName
	width  int
	height int
}

// SetCard shows card, found in col.
func (m *CardDetailModel) SetCard(card core.Card, col core.ColumnName) {
	c := card.Clone()
	m.card = &c
	m.column = col
}

// Clear removes the card.
func (m *CardDetailModel) Clear() {
	m.card = nil
	m.column = ""
}

// SetSize sets the outer dimensions.
func (m *CardDetailModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// View renders the panel.
func (m CardDetailModel) View() string {
	var lines []string
	if m.card == nil {
		lines = append(lines, TitleStyle.Render("Card"), "", PlaceholderStyle.Render("No card selected"))
	} else {
		c := m.card
		lines = append(lines,
			TitleStyle.Render(fmt.Sprintf("Card #%d", c.CardNumber)),
			row("Column:", m.column.Title()),
			row("Votes:", fmt.Sprintf("%d", c.Votes)),
			row("Timer:", detailTimer(*c)),
		)
		if c.LastModified > 0 {
			lines = append(lines, row("Changed:", time.UnixMilli(c.LastModified).Format("15:04:05")))
		}
		lines = append(lines, "", LabelStyle.Render("Text:"))
		text := strings.TrimSpace(c.Text)
		if text == "" {
			lines = append(lines, PlaceholderStyle.Render("(empty)"))
		} else {
			wrap := lipgloss.NewStyle()
			if m.width > 4 {
				wrap = wrap.Width(m.width - 4)
			}
			lines = append(lines, wrap.Render(text))
		}
		if voters := votersOf(*c); len(voters) > 0 {
			lines = append(lines, "", LabelStyle.Render("Voters:"))
			lines = append(lines, voters...)
		}
	}

	style := ActivityBorderStyle
	if m.width > 2 {
		style = style.Width(m.width - 2)
	}
	if m.height > 2 {
		style = style.Height(m.height - 2)
	}
	return style.Render(strings.Join(lines, "\n"))
}

func detailTimer(c core.Card) string {
	d := (time.Duration(c.Seconds) * time.Second).String()
	switch {
	case c.IsTimerRunning && c.Overtime():
		return OvertimeStyle.Render(d + " running, over")
	case c.IsTimerRunning:
		return RunningStyle.Render(d + " running")
	case c.Seconds == 0:
		return "not started"
	}
	return d
}

// votersOf lists voters with the most votes first, then by name.
func votersOf(c core.Card) []string {
	names := make([]string, 0, len(c.UserVotes))
	for name, n := range c.UserVotes {
		if n > 0 {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := c.UserVotes[names[i]], c.UserVotes[names[j]]
		if a != b {
			return a > b
		}
		return names[i] < names[j]
	})
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fmt.Sprintf("  %s %s", name, VoteStyle.Render(strings.Repeat("+", c.UserVotes[name]))))
	}
	return out
}

// row renders a label and value pair.
func row(label, value string) string {
	return LabelStyle.Render(label) + value
}
