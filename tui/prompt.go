// ABOUTME: PromptModel is a single-line text dialog used for the username screen and card editing.
// ABOUTME: Renders a styled box with a title, the input and an optional error line.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// PromptModel wraps a textinput with a title and an error message.
type PromptModel struct {
	textInput textinput.Model
	title     string
	hint      string
	err       string
	active    bool
}

// NewPromptModel creates an inactive prompt.
func NewPromptModel(placeholder string, limit int) PromptModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = placeholder
	ti.CharLimit = limit
	return PromptModel{textInput: ti}
}

// Open shows the prompt with title and an initial value.
func (m *PromptModel) Open(title, hint, value string) {
	m.title = title
	m.hint = hint
	m.err = ""
	m.active = true
	m.textInput.SetValue(value)
	m.textInput.CursorEnd()
	m.textInput.Focus()
}

// Close hides the prompt and clears it.
func (m *PromptModel) Close() {
	m.active = false
	m.err = ""
	m.textInput.Reset()
	m.textInput.Blur()
}

// SetError shows msg under the input and keeps the prompt open.
func (m *PromptModel) SetError(msg string) {
	m.err = msg
}

// Value returns the current input.
func (m PromptModel) Value() string {
	return m.textInput.Value()
}

// IsActive returns whether the prompt is visible.
func (m PromptModel) IsActive() bool {
	return m.active
}

// Update forwards key events to the embedded textinput.
func (m PromptModel) Update(msg tea.Msg) (PromptModel, tea.Cmd) {
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// View renders the dialog box, or nothing when inactive.
func (m PromptModel) View() string {
	if !m.active {
		return ""
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.err))
	}
	if m.hint != "" {
		b.WriteString("\n\n")
		b.WriteString(HelpStyle.Render(m.hint))
	}
	return DialogStyle.Render(b.String())
}
