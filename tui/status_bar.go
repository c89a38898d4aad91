// ABOUTME: Implements a single-line status bar for the bottom of the TUI showing session state.
// ABOUTME: Displays board name, username, participants, the session countdown and the last error.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/retroboard/board/replica"
)

// StatusBarModel displays board status in a single line.
type StatusBarModel struct {
	board     string
	username  string
	users     []string
	countdown replica.Countdown
	now       time.Time
	message   string
	width     int
}

// NewStatusBarModel creates a status bar for board with a countdown.
func NewStatusBarModel(board string, countdown replica.Countdown) StatusBarModel {
	return StatusBarModel{board: board, countdown: countdown, now: countdown.Start}
}

// SetView updates the identity and participant list.
func (m *StatusBarModel) SetView(v replica.View) {
	m.username = v.Username
	m.users = v.ActiveUsers
}

// SetNow moves the countdown clock forward. Older times are ignored.
func (m *StatusBarModel) SetNow(now time.Time) {
	if now.After(m.now) {
		m.now = now
	}
}

// SetMessage shows a transient message, typically an error.
func (m *StatusBarModel) SetMessage(msg string) {
	m.message = msg
}

// SetWidth sets the bar width for rendering.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// Remaining returns the countdown's time left.
func (m StatusBarModel) Remaining() time.Duration {
	return m.countdown.Remaining(m.now)
}

// View renders the status bar as a single styled line.
func (m StatusBarModel) View() string {
	who := m.username
	if who == "" {
		who = "not joined"
	}

	clock := m.countdown.Format(m.now)
	if m.countdown.Expired(m.now) {
		clock = ExpiredStyle.Render("time's up")
	}

	content := fmt.Sprintf("Board: %s | You: %s | Online: %d | Session: %s",
		m.board, who, len(m.users), clock)
	if m.message != "" {
		content += " | " + ErrorStyle.Render(m.message)
	}

	if m.width <= 0 {
		return StatusBarStyle.Render(content)
	}
	style := StatusBarStyle.Width(m.width)
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, style.Render(content))
}
