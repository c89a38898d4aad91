// ABOUTME: Top-level Bubble Tea AppModel: username dialog, three board columns, card editor and status bar.
// ABOUTME: Key presses become replica mutations run as tea.Cmds; replica views flow back in as ViewMsgs.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/retroboard/board/core"
	"github.com/2389-research/retroboard/board/replica"
)

const (
	usernameLimit = 32
	cardTextLimit = 280
	activityLines = 6
	detailWidth   = 34
	helpLine      = "a add  e edit  +/- vote  d delete  </> move  s sort  t timer  i details  L activity  o logout  q quit"
)

// AppModel is the top-level Bubble Tea model for one board session.
type AppModel struct {
	board  Board
	view   replica.View
	focus  core.ColumnName
	cursor map[core.ColumnName]int

	login     PromptModel
	editor    PromptModel
	editingID string
	statusBar StatusBarModel

	activity     ActivityPanelModel
	showActivity bool
	detail       CardDetailModel
	showDetail   bool
	viewed       bool
	now          func() time.Time

	// pendingID is a card to select once it shows up in a view, in
	// pendingCol when that is set.
	pendingID   string
	pendingCol  core.ColumnName
	pendingEdit bool

	width  int
	height int
}

// NewAppModel creates an AppModel over board. initial is the replica's view
// at startup; an unjoined view opens the username dialog.
func NewAppModel(board Board, title string, initial replica.View, countdown replica.Countdown) AppModel {
	m := AppModel{
		board:     board,
		focus:     core.ColumnDiscuss,
		cursor:    map[core.ColumnName]int{},
		login:     NewPromptModel("your name", usernameLimit),
		editor:    NewPromptModel("what's on your mind?", cardTextLimit),
		statusBar: NewStatusBarModel(title, countdown),
		activity:  NewActivityPanelModel(0),
		now:       time.Now,
	}
	m.applyView(initial)
	return m
}

// Init implements tea.Model.
func (m AppModel) Init() tea.Cmd {
	if m.login.IsActive() {
		return textinput.Blink
	}
	return nil
}

// Update implements tea.Model.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.activity.SetSize(msg.Width, activityLines)
		return m, nil

	case ViewMsg:
		m.applyView(msg.View)
		return m, nil

	case TickMsg:
		m.statusBar.SetNow(msg.Time)
		return m, nil

	case JoinResultMsg:
		if msg.Err != nil {
			m.login.SetError(msg.Err.Error())
			return m, nil
		}
		m.login.Close()
		m.statusBar.SetMessage("")
		m.logActivity(ActivityJoin, "joined as "+msg.Username)
		return m, nil

	case LeftMsg:
		if msg.Err != nil {
			m.statusBar.SetMessage(msg.Err.Error())
		}
		return m, nil

	case CardAddedMsg:
		if msg.Err != nil {
			m.statusBar.SetMessage(msg.Err.Error())
			return m, nil
		}
		m.pendingID = msg.Card.ID
		m.pendingCol = ""
		m.pendingEdit = true
		m.selectPending()
		return m, nil

	case OpResultMsg:
		m.handleOpResult(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, nil
}

// View implements tea.Model.
func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.width < 40 || m.height < 10 {
		return fmt.Sprintf("Terminal too small (%dx%d). Minimum: 40x10.", m.width, m.height)
	}

	m.statusBar.SetWidth(m.width)
	if m.login.IsActive() {
		dialog := m.login.View()
		body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, dialog)
		return body + "\n" + m.statusBar.View()
	}

	boardHeight := m.height - 2
	if m.editor.IsActive() {
		boardHeight -= lipgloss.Height(m.editor.View())
	}
	if m.showActivity {
		boardHeight -= activityLines
	}
	boardWidth := m.width
	if m.showDetail {
		boardWidth -= detailWidth
	}
	widths := columnWidths(boardWidth)
	cols := make([]string, 0, len(core.Columns))
	for i, col := range core.Columns {
		cols = append(cols, renderColumn(col, m.view.Board.Column(col), m.cursor[col],
			col == m.focus, m.view.Username, widths[i], boardHeight))
	}
	columns := joinColumns(cols)
	if m.showDetail {
		if card, ok := m.selected(); ok {
			m.detail.SetCard(card, m.focus)
		} else {
			m.detail.Clear()
		}
		m.detail.SetSize(detailWidth, lipgloss.Height(columns))
		columns = lipgloss.JoinHorizontal(lipgloss.Top, columns, m.detail.View())
	}

	var b strings.Builder
	b.WriteString(columns)
	b.WriteString("\n")
	if m.showActivity {
		b.WriteString(m.activity.View())
		b.WriteString("\n")
	}
	if m.editor.IsActive() {
		b.WriteString(m.editor.View())
		b.WriteString("\n")
	} else {
		b.WriteString(HelpStyle.Render(helpLine))
		b.WriteString("\n")
	}
	b.WriteString(m.statusBar.View())
	return b.String()
}

// applyView replaces the rendered board and switches between the username
// dialog and the board when the phase changes.
func (m *AppModel) applyView(v replica.View) {
	if m.viewed {
		for _, e := range diffActivity(m.view, v) {
			m.logActivity(e.Kind, e.Text)
		}
	}
	m.viewed = true
	m.view = v
	m.statusBar.SetView(v)

	joined := v.Phase == replica.PhaseJoined
	switch {
	case !joined && !m.login.IsActive():
		m.editor.Close()
		m.editingID = ""
		m.login.Open("Join the retro", "enter to join, esc to quit", "")
	case joined && m.login.IsActive():
		m.login.Close()
	}

	if m.editingID != "" {
		if _, _, ok := v.Board.Find(m.editingID); !ok {
			m.editor.Close()
			m.editingID = ""
			m.statusBar.SetMessage("the card you were editing was deleted")
		}
	}
	m.selectPending()
	m.clampCursors()
}

// selectPending focuses the pending card once it is on the board.
func (m *AppModel) selectPending() {
	if m.pendingID == "" {
		return
	}
	col, idx, ok := m.view.Board.Find(m.pendingID)
	if !ok || (m.pendingCol != "" && col != m.pendingCol) {
		return
	}
	m.focus = col
	m.cursor[col] = idx
	if m.pendingEdit {
		card := m.view.Board.Column(col)[idx]
		m.openEditor(card)
	}
	m.pendingID = ""
	m.pendingCol = ""
	m.pendingEdit = false
}

func (m *AppModel) clampCursors() {
	for _, col := range core.Columns {
		n := len(m.view.Board.Column(col))
		switch {
		case n == 0:
			m.cursor[col] = 0
		case m.cursor[col] >= n:
			m.cursor[col] = n - 1
		case m.cursor[col] < 0:
			m.cursor[col] = 0
		}
	}
}

// selected returns the focused card.
func (m AppModel) selected() (core.Card, bool) {
	cards := m.view.Board.Column(m.focus)
	i := m.cursor[m.focus]
	if i < 0 || i >= len(cards) {
		return core.Card{}, false
	}
	return cards[i], true
}

func (m *AppModel) openEditor(card core.Card) {
	m.editingID = card.ID
	m.editor.Open(fmt.Sprintf("Card #%d", card.CardNumber), "enter to save, esc to cancel", card.Text)
}

func (m *AppModel) logActivity(kind ActivityKind, text string) {
	m.activity.Append(ActivityEntry{Time: m.now(), Kind: kind, Text: text})
}

func (m *AppModel) handleOpResult(msg OpResultMsg) {
	switch {
	case msg.Err != nil:
		m.statusBar.SetMessage(fmt.Sprintf("%s failed: %v", msg.Op, msg.Err))
		m.logActivity(ActivityError, fmt.Sprintf("%s failed: %v", msg.Op, msg.Err))
	case !msg.OK && msg.Op == "vote":
		m.statusBar.SetMessage(fmt.Sprintf("votes stay between 0 and %d per card", core.MaxVotesPerUser))
	case !msg.OK:
		m.statusBar.SetMessage(msg.Op + ": card is gone")
	default:
		m.statusBar.SetMessage("")
	}
}

// handleKeyMsg routes keys to the active dialog or the board.
func (m AppModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.login.IsActive() {
		return m.handleLoginKey(msg)
	}
	if m.editor.IsActive() {
		return m.handleEditorKey(msg)
	}
	return m.handleBoardKey(msg)
}

func (m AppModel) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		return m, JoinCmd(m.board, m.login.Value())
	case tea.KeyEsc:
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.login, cmd = m.login.Update(msg)
	return m, cmd
}

func (m AppModel) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		id, text := m.editingID, m.editor.Value()
		m.editor.Close()
		m.editingID = ""
		col, _, ok := m.view.Board.Find(id)
		if !ok {
			return m, nil
		}
		board := m.board
		return m, OpCmd("edit", func(ctx context.Context) (bool, error) {
			return board.UpdateText(ctx, col, id, text)
		})
	case tea.KeyEsc:
		m.editor.Close()
		m.editingID = ""
		return m, nil
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m AppModel) handleBoardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	board := m.board
	col := m.focus

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "left", "h":
		m.focus = m.focus.Prev()
		return m, nil
	case "right", "l", "tab":
		m.focus = m.focus.Next()
		return m, nil
	case "up", "k":
		if m.cursor[col] > 0 {
			m.cursor[col]--
		}
		return m, nil
	case "down", "j":
		if m.cursor[col] < len(m.view.Board.Column(col))-1 {
			m.cursor[col]++
		}
		return m, nil
	case "a", "n":
		return m, AddCardCmd(board, col)
	case "s":
		return m, OpCmd("sort", func(ctx context.Context) (bool, error) {
			return board.SortColumn(ctx, col, nil)
		})
	case "o":
		return m, LeaveCmd(board)
	case "L":
		m.showActivity = !m.showActivity
		return m, nil
	case "i":
		m.showDetail = !m.showDetail
		return m, nil
	case "pgup":
		m.activity.PageUp()
		return m, nil
	case "pgdown":
		m.activity.PageDown()
		return m, nil
	}

	card, ok := m.selected()
	if !ok {
		return m, nil
	}
	id := card.ID

	switch msg.String() {
	case "e", "enter":
		m.openEditor(card)
		return m, textinput.Blink
	case "+", "=":
		return m, OpCmd("vote", func(ctx context.Context) (bool, error) {
			return board.Vote(ctx, col, id, true)
		})
	case "-", "_":
		return m, OpCmd("vote", func(ctx context.Context) (bool, error) {
			return board.Vote(ctx, col, id, false)
		})
	case "d", "x", "delete":
		return m, OpCmd("delete", func(ctx context.Context) (bool, error) {
			return board.DeleteCard(ctx, col, id)
		})
	case "t":
		return m, OpCmd("timer", func(ctx context.Context) (bool, error) {
			return board.ToggleTimer(ctx, col, id)
		})
	case "<", ",", "shift+left":
		return m.moveSelected(id, col, col.Prev())
	case ">", ".", "shift+right":
		return m.moveSelected(id, col, col.Next())
	}
	return m, nil
}

// moveSelected moves a card to the head of another column and keeps it
// selected there.
func (m AppModel) moveSelected(id string, from, to core.ColumnName) (tea.Model, tea.Cmd) {
	board := m.board
	m.pendingID = id
	m.pendingCol = to
	m.pendingEdit = false
	return m, OpCmd("move", func(ctx context.Context) (bool, error) {
		return board.MoveCard(ctx, id, from, to, 0)
	})
}
