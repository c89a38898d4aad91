// ABOUTME: Tests for card rendering helpers: palette accents, card lines, clipping and column widths.
// ABOUTME: Rendering is checked by content, not by escape codes.
package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/retroboard/board/core"
)

func TestAccentForCard(t *testing.T) {
	for _, color := range core.Palette {
		if got := AccentForCard(core.Card{BackgroundColor: color}); got == lipgloss.Color("245") {
			t.Errorf("expected a palette accent for %q", color)
		}
	}
	if got := AccentForCard(core.Card{BackgroundColor: "#fff"}); got != lipgloss.Color("245") {
		t.Errorf("expected grey fallback, got %v", got)
	}
}

func TestRenderCard(t *testing.T) {
	c := core.Card{
		CardNumber:     5,
		Text:           "Too many meetings",
		Votes:          3,
		UserVotes:      map[string]int{"alice": 2, "bob": 1},
		Seconds:        301,
		IsTimerRunning: true,
	}
	got := renderCard(c, true, "alice", 60)
	for _, want := range []string{"> ", "#5", "Too many meetings", "votes 3", "(you 2/3)", "5:01 over"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in:\n%s", want, got)
		}
	}

	empty := renderCard(core.Card{CardNumber: 1}, false, "alice", 60)
	if !strings.Contains(empty, "(empty)") {
		t.Errorf("expected placeholder for empty card:\n%s", empty)
	}
	if strings.Contains(empty, "you") {
		t.Errorf("expected no own-vote marker:\n%s", empty)
	}
}

func TestClipLines(t *testing.T) {
	got := clipLines("a\nb\nc\nd", 3)
	lines := strings.Split(got, "\n")
	if len(lines) != 3 || lines[0] != "a" || !strings.Contains(lines[2], "...") {
		t.Errorf("unexpected clip %q", got)
	}
	if clipLines("a\nb", 3) != "a\nb" {
		t.Error("expected short input untouched")
	}
}

func TestColumnWidths(t *testing.T) {
	got := columnWidths(100)
	if len(got) != 3 || got[0]+got[1]+got[2] != 100 || got[2] != 34 {
		t.Errorf("unexpected widths %v", got)
	}
}
