// ABOUTME: Scrollable activity log built on the bubbles viewport component.
// ABOUTME: Records participants joining and leaving, cards appearing and vanishing, and failed operations.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/retroboard/board/core"
	"github.com/2389-research/retroboard/board/replica"
)

// ActivityKind selects how an entry is colored.
type ActivityKind int

const (
	ActivityInfo ActivityKind = iota
	ActivityJoin
	ActivityLeave
	ActivityError
)

// ActivityEntry is one line of the activity log.
type ActivityEntry struct {
	Time time.Time
	Kind ActivityKind
	Text string
}

// ActivityPanelModel keeps the most recent entries and renders them in a
// viewport pinned to the newest line.
type ActivityPanelModel struct {
	entries  []ActivityEntry
	max      int
	viewport viewport.Model
	width    int
	height   int
}

// NewActivityPanelModel creates an empty panel holding up to maxEntries
// lines. maxEntries <= 0 means 200.
func NewActivityPanelModel(maxEntries int) ActivityPanelModel {
	if maxEntries <= 0 {
		maxEntries = 200
	}
	return ActivityPanelModel{
		entries:  make([]ActivityEntry, 0, maxEntries),
		max:      maxEntries,
		viewport: viewport.New(80, 4),
	}
}

// Append adds an entry, evicting the oldest when full.
func (m *ActivityPanelModel) Append(e ActivityEntry) {
	if len(m.entries) >= m.max {
		m.entries = m.entries[1:]
	}
	m.entries = append(m.entries, e)
	m.syncViewport()
}

// Len returns the number of entries held.
func (m ActivityPanelModel) Len() int {
	return len(m.entries)
}

// Entries returns a copy of the held entries, oldest first.
func (m ActivityPanelModel) Entries() []ActivityEntry {
	return append([]ActivityEntry(nil), m.entries...)
}

// SetSize sets the outer size of the panel, border included.
func (m *ActivityPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-4, 1)
	m.viewport.Height = max(h-3, 1)
	m.syncViewport()
}

// PageUp scrolls back through older entries.
func (m *ActivityPanelModel) PageUp() {
	m.viewport, _ = m.viewport.Update(tea.KeyMsg{Type: tea.KeyPgUp})
}

// PageDown scrolls toward the newest entry.
func (m *ActivityPanelModel) PageDown() {
	m.viewport, _ = m.viewport.Update(tea.KeyMsg{Type: tea.KeyPgDown})
}

// View renders the panel.
func (m ActivityPanelModel) View() string {
	content := PlaceholderStyle.Render("Nothing yet")
	if len(m.entries) > 0 {
		content = m.viewport.View()
	}
	return ActivityBorderStyle.
		Width(max(m.width-2, 1)).
		Height(max(m.height-2, 1)).
		Render(TitleStyle.Render("Activity") + "\n" + content)
}

func (m *ActivityPanelModel) syncViewport() {
	lines := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		lines = append(lines, formatActivity(e))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func formatActivity(e ActivityEntry) string {
	ts := ActivityTimeStyle.Render(e.Time.Format("15:04:05"))
	return ts + " " + activityStyle(e.Kind).Render(e.Text)
}

func activityStyle(kind ActivityKind) lipgloss.Style {
	switch kind {
	case ActivityJoin:
		return ActivityJoinStyle
	case ActivityLeave:
		return ActivityLeaveStyle
	case ActivityError:
		return ErrorStyle
	default:
		return ActivityInfoStyle
	}
}

// diffActivity describes what changed between two views of the board.
// Nothing is reported across a phase change, where the whole view is
// replaced.
func diffActivity(prev, next replica.View) []ActivityEntry {
	if prev.Phase != next.Phase {
		return nil
	}
	var out []ActivityEntry
	had := make(map[string]bool, len(prev.ActiveUsers))
	for _, u := range prev.ActiveUsers {
		had[u] = true
	}
	has := make(map[string]bool, len(next.ActiveUsers))
	for _, u := range next.ActiveUsers {
		has[u] = true
		if !had[u] {
			out = append(out, ActivityEntry{Kind: ActivityJoin, Text: u + " joined"})
		}
	}
	for _, u := range prev.ActiveUsers {
		if !has[u] {
			out = append(out, ActivityEntry{Kind: ActivityLeave, Text: u + " left"})
		}
	}

	for _, col := range core.Columns {
		for _, c := range next.Board.Column(col) {
			if _, _, ok := prev.Board.Find(c.ID); !ok {
				out = append(out, ActivityEntry{Kind: ActivityInfo, Text: fmt.Sprintf("card #%d added to %s", c.CardNumber, col.Title())})
			}
		}
		for _, c := range prev.Board.Column(col) {
			if _, _, ok := next.Board.Find(c.ID); !ok {
				out = append(out, ActivityEntry{Kind: ActivityLeave, Text: fmt.Sprintf("card #%d deleted", c.CardNumber)})
			}
		}
	}
	return out
}
