// ABOUTME: Board holds the three ordered card columns; State adds the active participant set.
// ABOUTME: Column helpers locate, insert and remove cards by id across the whole board.
package core

import (
	"fmt"
	"slices"
)

// ColumnName identifies one of the three board columns.
type ColumnName string

const (
	ColumnDiscuss ColumnName = "discuss"
	ColumnDone    ColumnName = "done"
	ColumnAction  ColumnName = "action"
)

// Columns lists the board columns in display order.
var Columns = []ColumnName{ColumnDiscuss, ColumnDone, ColumnAction}

// Valid reports whether the name is a known column.
func (c ColumnName) Valid() bool {
	return c == ColumnDiscuss || c == ColumnDone || c == ColumnAction
}

// Title is the human heading of a column.
func (c ColumnName) Title() string {
	switch c {
	case ColumnDiscuss:
		return "To Discuss"
	case ColumnDone:
		return "Done"
	case ColumnAction:
		return "Action Items"
	default:
		return string(c)
	}
}

// Next is the column to the right, wrapping around.
func (c ColumnName) Next() ColumnName {
	i := slices.Index(Columns, c)
	if i < 0 {
		return c
	}
	return Columns[(i+1)%len(Columns)]
}

// Prev is the column to the left, wrapping around.
func (c ColumnName) Prev() ColumnName {
	i := slices.Index(Columns, c)
	if i < 0 {
		return c
	}
	return Columns[(i+len(Columns)-1)%len(Columns)]
}

// ParseColumn converts a user supplied column name.
func ParseColumn(s string) (ColumnName, error) {
	c := ColumnName(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, s)
	}
	return c, nil
}

// Board is the three ordered columns of cards.
type Board struct {
	Discuss []Card `json:"discuss"`
	Done    []Card `json:"done"`
	Action  []Card `json:"action"`
}

// NewBoard returns a board with three empty columns.
func NewBoard() Board {
	return Board{Discuss: []Card{}, Done: []Card{}, Action: []Card{}}
}

// Column returns the cards of a column. Unknown names yield nil.
func (b *Board) Column(name ColumnName) []Card {
	switch name {
	case ColumnDiscuss:
		return b.Discuss
	case ColumnDone:
		return b.Done
	case ColumnAction:
		return b.Action
	}
	return nil
}

// SetColumn replaces the cards of a column. Unknown names are ignored.
func (b *Board) SetColumn(name ColumnName, cards []Card) {
	if cards == nil {
		cards = []Card{}
	}
	switch name {
	case ColumnDiscuss:
		b.Discuss = cards
	case ColumnDone:
		b.Done = cards
	case ColumnAction:
		b.Action = cards
	}
}

// Find locates a card by id anywhere on the board.
func (b *Board) Find(id string) (ColumnName, int, bool) {
	for _, col := range Columns {
		for i, c := range b.Column(col) {
			if c.ID == id {
				return col, i, true
			}
		}
	}
	return "", -1, false
}

// Card returns a copy of the card with the given id.
func (b *Board) Card(id string) (Card, ColumnName, bool) {
	col, i, ok := b.Find(id)
	if !ok {
		return Card{}, "", false
	}
	return b.Column(col)[i].Clone(), col, true
}

// Len is the number of cards on the board.
func (b *Board) Len() int {
	return len(b.Discuss) + len(b.Done) + len(b.Action)
}

// Clone returns a deep copy of the board.
func (b Board) Clone() Board {
	out := NewBoard()
	for _, col := range Columns {
		src := b.Column(col)
		dst := make([]Card, len(src))
		for i, c := range src {
			dst[i] = c.Clone()
		}
		out.SetColumn(col, dst)
	}
	return out
}

// indexIn returns the position of id within one column, or -1.
func (b *Board) indexIn(col ColumnName, id string) int {
	for i, c := range b.Column(col) {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// removeFrom drops id from one column and returns the removed card.
func (b *Board) removeFrom(col ColumnName, id string) (Card, bool) {
	i := b.indexIn(col, id)
	if i < 0 {
		return Card{}, false
	}
	cards := b.Column(col)
	card := cards[i]
	b.SetColumn(col, slices.Delete(slices.Clone(cards), i, i+1))
	return card, true
}

// insertAt places a card at index within a column, clamped to its bounds.
func (b *Board) insertAt(col ColumnName, index int, card Card) {
	cards := b.Column(col)
	if index < 0 || index > len(cards) {
		index = len(cards)
	}
	b.SetColumn(col, slices.Insert(slices.Clone(cards), index, card))
}

// State is everything a replica replicates: the board and who is present.
type State struct {
	Cards       Board    `json:"cards"`
	ActiveUsers []string `json:"activeUsers"`
}

// NewState returns an empty board with nobody present.
func NewState() *State {
	return &State{Cards: NewBoard(), ActiveUsers: []string{}}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	return &State{Cards: s.Cards.Clone(), ActiveUsers: slices.Clone(s.ActiveUsers)}
}

// HasUser reports whether the username is in the active set.
func (s *State) HasUser(name string) bool {
	return slices.Contains(s.ActiveUsers, name)
}

// addUser inserts into the active set and reports whether it changed.
func (s *State) addUser(name string) bool {
	if name == "" || s.HasUser(name) {
		return false
	}
	s.ActiveUsers = append(slices.Clone(s.ActiveUsers), name)
	return true
}

// removeUser deletes from the active set and reports whether it changed.
func (s *State) removeUser(name string) bool {
	i := slices.Index(s.ActiveUsers, name)
	if i < 0 {
		return false
	}
	s.ActiveUsers = slices.Delete(slices.Clone(s.ActiveUsers), i, i+1)
	return true
}

// dedupeUsers keeps the first occurrence of each non-empty name.
func dedupeUsers(users []string) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u != "" && !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	return out
}
