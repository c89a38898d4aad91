// ABOUTME: Tests for the top-level AppModel that drives a board session.
// ABOUTME: Covers the username dialog, key bindings issuing mutations, editing, moving and view rendering.
package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/retroboard/board/core"
	"github.com/2389-research/retroboard/board/replica"
)

// fakeBoard records calls instead of touching a replica.
type fakeBoard struct {
	mu      sync.Mutex
	calls   []string
	joinErr error
	added   core.Card
	ok      bool
}

func (f *fakeBoard) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBoard) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeBoard) Join(_ context.Context, name string) error {
	f.record("join " + name)
	return f.joinErr
}

func (f *fakeBoard) Leave(context.Context) error {
	f.record("leave")
	return nil
}

func (f *fakeBoard) AddCard(_ context.Context, col core.ColumnName) (core.Card, bool, error) {
	f.record("add " + string(col))
	return f.added, true, nil
}

func (f *fakeBoard) UpdateText(_ context.Context, col core.ColumnName, id, text string) (bool, error) {
	f.record("text " + string(col) + " " + id + " " + text)
	return f.ok, nil
}

func (f *fakeBoard) Vote(_ context.Context, col core.ColumnName, id string, inc bool) (bool, error) {
	dir := "down"
	if inc {
		dir = "up"
	}
	f.record("vote " + dir + " " + id)
	return f.ok, nil
}

func (f *fakeBoard) DeleteCard(_ context.Context, col core.ColumnName, id string) (bool, error) {
	f.record("delete " + id)
	return f.ok, nil
}

func (f *fakeBoard) MoveCard(_ context.Context, id string, from, to core.ColumnName, _ int) (bool, error) {
	f.record("move " + id + " " + string(from) + "->" + string(to))
	return f.ok, nil
}

func (f *fakeBoard) SortColumn(_ context.Context, col core.ColumnName, _ func(a, b core.Card) int) (bool, error) {
	f.record("sort " + string(col))
	return f.ok, nil
}

func (f *fakeBoard) ToggleTimer(_ context.Context, col core.ColumnName, id string) (bool, error) {
	f.record("timer " + id)
	return f.ok, nil
}

func joinedView(cards ...core.Card) replica.View {
	b := core.NewBoard()
	b.SetColumn(core.ColumnDiscuss, cards)
	return replica.View{Board: b, ActiveUsers: []string{"alice"}, Username: "alice", Phase: replica.PhaseJoined}
}

func testCard(id string, n int) core.Card {
	return core.Card{ID: id, CardNumber: n, Text: "card " + id, UserVotes: map[string]int{}}
}

func newTestApp(board Board, v replica.View) AppModel {
	m := NewAppModel(board, "retro-board", v, replica.NewCountdown(time.Unix(0, 0), 45*time.Minute))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return next.(AppModel)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command, feeding its message back.
func press(t *testing.T, m AppModel, k string) AppModel {
	t.Helper()
	next, cmd := m.Update(key(k))
	m = next.(AppModel)
	if cmd != nil {
		if msg := cmd(); msg != nil {
			if _, quit := msg.(tea.QuitMsg); !quit {
				next, _ = m.Update(msg)
				m = next.(AppModel)
			}
		}
	}
	return m
}

func typeText(t *testing.T, m AppModel, s string) AppModel {
	t.Helper()
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(AppModel)
	}
	return m
}

func TestNewAppModelUnjoinedOpensLogin(t *testing.T) {
	m := newTestApp(&fakeBoard{}, replica.View{Board: core.NewBoard()})
	if !m.login.IsActive() {
		t.Fatal("expected username dialog for an unjoined replica")
	}
	if !strings.Contains(m.View(), "Join the retro") {
		t.Errorf("expected dialog in view, got:\n%s", m.View())
	}
}

func TestNewAppModelJoinedShowsBoard(t *testing.T) {
	m := newTestApp(&fakeBoard{}, joinedView(testCard("a", 1)))
	if m.login.IsActive() {
		t.Fatal("expected no username dialog when already joined")
	}
	view := m.View()
	for _, want := range []string{"To Discuss (1)", "Done (0)", "Action Items (0)", "#1", "You: alice"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view:\n%s", want, view)
		}
	}
}

func TestLoginSubmitsAndShowsErrors(t *testing.T) {
	fb := &fakeBoard{joinErr: core.ErrUsernameTaken}
	m := newTestApp(fb, replica.View{Board: core.NewBoard()})

	m = typeText(t, m, "bob")
	m = press(t, m, "enter")
	if fb.last() != "join bob" {
		t.Fatalf("expected join bob, got %q", fb.last())
	}
	if !m.login.IsActive() {
		t.Fatal("expected dialog to stay open after a rejected name")
	}
	if !strings.Contains(m.View(), "Username is already taken") {
		t.Errorf("expected validation message in view:\n%s", m.View())
	}

	fb.joinErr = nil
	m = press(t, m, "enter")
	if m.login.IsActive() {
		t.Error("expected dialog to close after a successful join")
	}
}

func TestViewPhaseTogglesLogin(t *testing.T) {
	m := newTestApp(&fakeBoard{}, joinedView())
	next, _ := m.Update(ViewMsg{View: replica.View{Board: core.NewBoard(), Phase: replica.PhaseUnjoined}})
	m = next.(AppModel)
	if !m.login.IsActive() {
		t.Fatal("expected dialog after logout")
	}
	next, _ = m.Update(ViewMsg{View: joinedView()})
	m = next.(AppModel)
	if m.login.IsActive() {
		t.Error("expected dialog to close once joined")
	}
}

func TestBoardKeysIssueMutations(t *testing.T) {
	fb := &fakeBoard{ok: true}
	m := newTestApp(fb, joinedView(testCard("a", 1), testCard("b", 2)))

	tests := []struct {
		key  string
		want string
	}{
		{"+", "vote up a"},
		{"-", "vote down a"},
		{"t", "timer a"},
		{"s", "sort discuss"},
		{">", "move a discuss->done"},
		{"d", "delete a"},
		{"o", "leave"},
	}
	for _, tt := range tests {
		m = press(t, m, tt.key)
		if got := fb.last(); got != tt.want {
			t.Errorf("key %q: expected %q, got %q", tt.key, tt.want, got)
		}
	}

	m = press(t, m, "down")
	m = press(t, m, "<")
	if got := fb.last(); got != "move b discuss->action" {
		t.Errorf("expected cyclic move of the second card, got %q", got)
	}
}

func TestVoteLimitMessage(t *testing.T) {
	fb := &fakeBoard{ok: false}
	m := newTestApp(fb, joinedView(testCard("a", 1)))
	m = press(t, m, "+")
	if !strings.Contains(m.View(), "votes stay between 0 and 3") {
		t.Errorf("expected vote bound message:\n%s", m.View())
	}
}

func TestAddCardOpensEditor(t *testing.T) {
	added := testCard("new", 3)
	added.Text = ""
	fb := &fakeBoard{added: added, ok: true}
	m := newTestApp(fb, joinedView(testCard("a", 1)))

	m = press(t, m, "a")
	if fb.last() != "add discuss" {
		t.Fatalf("expected add discuss, got %q", fb.last())
	}
	if m.editor.IsActive() {
		t.Fatal("expected editor to wait until the card is on the board")
	}

	next, _ := m.Update(ViewMsg{View: joinedView(testCard("a", 1), added)})
	m = next.(AppModel)
	if !m.editor.IsActive() || m.editingID != "new" {
		t.Fatalf("expected editor on the new card, got active=%t id=%q", m.editor.IsActive(), m.editingID)
	}

	m = typeText(t, m, "Retro notes")
	m = press(t, m, "enter")
	if got := fb.last(); got != "text discuss new Retro notes" {
		t.Errorf("expected text update, got %q", got)
	}
	if m.editor.IsActive() {
		t.Error("expected editor closed after saving")
	}
}

func TestEditorClosesWhenCardDeleted(t *testing.T) {
	m := newTestApp(&fakeBoard{}, joinedView(testCard("a", 1)))
	m = press(t, m, "e")
	if !m.editor.IsActive() {
		t.Fatal("expected editor open")
	}
	next, _ := m.Update(ViewMsg{View: joinedView()})
	m = next.(AppModel)
	if m.editor.IsActive() {
		t.Error("expected editor to close when its card disappears")
	}
}

func TestMovedCardStaysSelected(t *testing.T) {
	fb := &fakeBoard{ok: true}
	card := testCard("a", 1)
	m := newTestApp(fb, joinedView(testCard("z", 9), card))
	m = press(t, m, "down")
	m = press(t, m, ">")

	v := joinedView(testCard("z", 9))
	v.Board.SetColumn(core.ColumnDone, []core.Card{card})
	next, _ := m.Update(ViewMsg{View: v})
	m = next.(AppModel)
	if m.focus != core.ColumnDone || m.cursor[core.ColumnDone] != 0 {
		t.Errorf("expected focus on the moved card in done, got %s/%d", m.focus, m.cursor[core.ColumnDone])
	}
}

func TestFocusWrapsAround(t *testing.T) {
	m := newTestApp(&fakeBoard{}, joinedView())
	m = press(t, m, "left")
	if m.focus != core.ColumnAction {
		t.Errorf("expected focus to wrap to action, got %s", m.focus)
	}
}

func TestQuitKeys(t *testing.T) {
	m := newTestApp(&fakeBoard{}, joinedView())
	for _, k := range []string{"q", "ctrl+c"} {
		_, cmd := m.Update(key(k))
		if cmd == nil {
			t.Fatalf("%s: expected quit command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: expected tea.QuitMsg", k)
		}
	}
}

func TestTickUpdatesCountdown(t *testing.T) {
	m := newTestApp(&fakeBoard{}, joinedView())
	next, _ := m.Update(TickMsg{Time: time.Unix(0, 0).Add(44*time.Minute + 30*time.Second)})
	m = next.(AppModel)
	if !strings.Contains(m.View(), "Session: 00:30") {
		t.Errorf("expected 00:30 remaining:\n%s", m.View())
	}
}

func TestViewTooSmall(t *testing.T) {
	m := NewAppModel(&fakeBoard{}, "b", joinedView(), replica.NewCountdown(time.Now(), time.Minute))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 20, Height: 5})
	if got := next.(AppModel).View(); !strings.Contains(got, "Terminal too small") {
		t.Errorf("expected size warning, got %q", got)
	}
}
