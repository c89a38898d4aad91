// ABOUTME: Merge applies a remote envelope to a replica's state using per-kind conflict rules.
// ABOUTME: Text edits are last-writer-wins; votes, timers and sorts overwrite; adds and removes are idempotent.
package core

import (
	"log"
	"slices"
	"time"
)

// Merge applies env to s and reports whether the state changed. It never
// fails: malformed payloads and dangling references are no-ops. The caller
// is responsible for dropping envelopes it originated itself.
func Merge(s *State, env Envelope, receivedAt time.Time) bool {
	if env.Payload == nil {
		return false
	}
	if err := env.Payload.validate(); err != nil {
		log.Printf("component=board.core action=merge_reject kind=%s from=%s err=%v", env.Kind, env.OriginatingUser, err)
		return false
	}
	now := receivedAt.UnixMilli()

	switch p := env.Payload.(type) {
	case CardAddedPayload:
		if _, _, exists := s.Cards.Find(p.Card.ID); exists {
			return false
		}
		s.Cards.insertAt(p.Column, 0, p.Card.normalized())
		return true

	case CardUpdatedPayload:
		col, i, ok := s.Cards.Find(p.CardID)
		if !ok {
			return false
		}
		incoming := now
		if p.Updates.LastModified != nil {
			incoming = *p.Updates.LastModified
		}
		card := s.Cards.Column(col)[i]
		if incoming <= card.LastModified {
			return false
		}
		if p.Updates.Text != nil {
			card.Text = *p.Updates.Text
		}
		if p.Updates.LastModified != nil {
			card.LastModified = *p.Updates.LastModified
		}
		s.replaceCard(col, i, card)
		return true

	case CardDeletedPayload:
		col, _, ok := s.Cards.Find(p.CardID)
		if !ok {
			return false
		}
		s.Cards.removeFrom(col, p.CardID)
		return true

	case CardMovedPayload:
		changed := false
		if _, ok := s.Cards.removeFrom(p.FromColumn, p.CardID); ok {
			changed = true
		}
		// A card lives in one column; drop strays left by concurrent moves.
		for _, col := range Columns {
			if col == p.ToColumn {
				continue
			}
			if _, ok := s.Cards.removeFrom(col, p.CardID); ok {
				changed = true
			}
		}
		if s.Cards.indexIn(p.ToColumn, p.CardID) < 0 {
			s.Cards.insertAt(p.ToColumn, 0, p.Card.normalized())
			changed = true
		}
		return changed

	case CardVotedPayload:
		col, i, ok := s.Cards.Find(p.CardID)
		if !ok {
			return false
		}
		card := s.Cards.Column(col)[i]
		card.UserVotes = cloneVotes(p.UserVotes)
		card.Votes = sumVotes(card.UserVotes)
		card.LastModified = now
		s.replaceCard(col, i, card)
		return true

	case CardsSortedPayload:
		cards := make([]Card, 0, len(p.Cards))
		seen := make(map[string]bool, len(p.Cards))
		for _, c := range p.Cards {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			cards = append(cards, c.normalized())
		}
		for _, col := range Columns {
			if col == p.Column {
				continue
			}
			kept := slices.DeleteFunc(slices.Clone(s.Cards.Column(col)), func(c Card) bool { return seen[c.ID] })
			s.Cards.SetColumn(col, kept)
		}
		s.Cards.SetColumn(p.Column, cards)
		return true

	case TimerUpdatedPayload:
		col, i, ok := s.Cards.Find(p.CardID)
		if !ok {
			return false
		}
		card := s.Cards.Column(col)[i]
		card.Seconds = p.Seconds
		card.IsTimerRunning = p.IsTimerRunning
		card.LastModified = now
		s.replaceCard(col, i, card)
		return true

	case UserJoinedPayload:
		return s.addUser(p.Username)

	case UserLeftPayload:
		return s.removeUser(p.Username)

	case FullStateSyncPayload:
		if p.Cards == nil || p.ActiveUsers == nil {
			return false
		}
		s.Cards = dedupeBoard(*p.Cards)
		s.ActiveUsers = dedupeUsers(*p.ActiveUsers)
		return true
	}
	return false
}

// Resolve is the pure form of Merge: it returns a merged copy and leaves
// state untouched.
func Resolve(state *State, env Envelope, receivedAt time.Time) (*State, bool) {
	next := state.Clone()
	if !Merge(next, env, receivedAt) {
		return state, false
	}
	return next, true
}

// replaceCard swaps the card at index i of col without aliasing the old slice.
func (s *State) replaceCard(col ColumnName, i int, card Card) {
	cards := slices.Clone(s.Cards.Column(col))
	cards[i] = card
	s.Cards.SetColumn(col, cards)
}

// dedupeBoard copies a board, keeping only the first occurrence of every card id.
func dedupeBoard(b Board) Board {
	out := NewBoard()
	seen := map[string]bool{}
	for _, col := range Columns {
		cards := make([]Card, 0, len(b.Column(col)))
		for _, c := range b.Column(col) {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			cards = append(cards, c.normalized())
		}
		out.SetColumn(col, cards)
	}
	return out
}
