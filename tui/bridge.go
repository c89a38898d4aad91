// ABOUTME: Bridge connecting a replica to the Bubble Tea message loop.
// ABOUTME: Provides Bridge for observer and tick injection, and tea.Cmd factories for board mutations.
package tui

import (
	"context"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/retroboard/board/core"
	"github.com/2389-research/retroboard/board/replica"
)

// opTimeout bounds how long a command waits on the replica loop.
const opTimeout = 5 * time.Second

// Board is the replica surface the TUI drives. *replica.Replica satisfies it.
type Board interface {
	Join(ctx context.Context, username string) error
	Leave(ctx context.Context) error
	AddCard(ctx context.Context, column core.ColumnName) (core.Card, bool, error)
	UpdateText(ctx context.Context, column core.ColumnName, id, text string) (bool, error)
	Vote(ctx context.Context, column core.ColumnName, id string, increment bool) (bool, error)
	DeleteCard(ctx context.Context, column core.ColumnName, id string) (bool, error)
	MoveCard(ctx context.Context, id string, from, to core.ColumnName, atIndex int) (bool, error)
	SortColumn(ctx context.Context, column core.ColumnName, compare func(a, b core.Card) int) (bool, error)
	ToggleTimer(ctx context.Context, column core.ColumnName, id string) (bool, error)
}

var _ Board = (*replica.Replica)(nil)

// Bridge wraps a tea.Program's Send method for injecting replica views and
// ticks into the Bubble Tea message loop.
type Bridge struct {
	send        atomic.Pointer[func(msg tea.Msg)]
	tickPending atomic.Bool
}

// NewBridge creates a Bridge that sends messages via the given function.
// Typically called with program.Send as the argument; nil leaves the bridge
// dropping messages until Attach.
func NewBridge(send func(msg tea.Msg)) *Bridge {
	b := &Bridge{}
	if send != nil {
		b.Attach(send)
	}
	return b
}

// Attach sets the send function. The replica usually exists before the
// program does, so the bridge is created first and attached later.
func (b *Bridge) Attach(send func(msg tea.Msg)) {
	b.send.Store(&send)
}

func (b *Bridge) deliver(msg tea.Msg) {
	if send := b.send.Load(); send != nil {
		(*send)(msg)
	}
}

// Observe matches replica.Observer. Views already arrive off the replica
// loop, so sending may block.
func (b *Bridge) Observe(v replica.View) {
	b.deliver(ViewMsg{View: v})
}

// Tick is registered with replica.WithTickObserver. It runs on the replica
// loop, so the send happens elsewhere and overlapping ticks are dropped.
func (b *Bridge) Tick(now time.Time) {
	if !b.tickPending.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer b.tickPending.Store(false)
		b.deliver(TickMsg{Time: now})
	}()
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// JoinCmd validates and joins with username.
func JoinCmd(board Board, username string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		return JoinResultMsg{Username: username, Err: board.Join(ctx, username)}
	}
}

// LeaveCmd logs out and forgets the stored username.
func LeaveCmd(board Board) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		return LeftMsg{Err: board.Leave(ctx)}
	}
}

// AddCardCmd appends an empty card to column.
func AddCardCmd(board Board, column core.ColumnName) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		card, _, err := board.AddCard(ctx, column)
		return CardAddedMsg{Card: card, Err: err}
	}
}

// OpCmd runs one board mutation and reports it as an OpResultMsg.
func OpCmd(op string, fn func(ctx context.Context) (bool, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		ok, err := fn(ctx)
		return OpResultMsg{Op: op, OK: ok, Err: err}
	}
}
