// ABOUTME: Bubble Tea message types used in the TUI message loop.
// ABOUTME: Views and ticks come from the replica; result messages come back from commands.
package tui

import (
	"time"

	"github.com/2389-research/retroboard/board/core"
	"github.com/2389-research/retroboard/board/replica"
)

// ViewMsg carries the replica's latest board view.
type ViewMsg struct {
	View replica.View
}

// TickMsg is sent once per scheduler tick to refresh the countdown.
type TickMsg struct {
	Time time.Time
}

// JoinResultMsg reports the outcome of a join attempt from the username dialog.
type JoinResultMsg struct {
	Username string
	Err      error
}

// LeftMsg reports that logout finished.
type LeftMsg struct {
	Err error
}

// CardAddedMsg reports a locally added card so it can be selected for editing.
type CardAddedMsg struct {
	Card core.Card
	Err  error
}

// OpResultMsg reports the outcome of any other board mutation.
type OpResultMsg struct {
	Op  string
	OK  bool
	Err error
}
