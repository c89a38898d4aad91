// ABOUTME: Store owns a replica's state and applies local mutations optimistically.
// ABOUTME: Each operation returns the payload to broadcast, or ok=false when it referred to nothing.
package core

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Store is the replica-local copy of the board plus the card number
// counter. It is not safe for concurrent use; the owning replica serializes
// access on its event loop.
type Store struct {
	state      *State
	nextNumber int
	now        func() time.Time
}

// NewStore wraps state. A nil state starts empty; nextNumber below 1 starts at 1.
func NewStore(state *State, nextNumber int, now func() time.Time) *Store {
	if state == nil {
		state = NewState()
	}
	if nextNumber < 1 {
		nextNumber = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Store{state: state, nextNumber: nextNumber, now: now}
}

// State returns a deep copy of the current state.
func (s *Store) State() *State {
	return s.state.Clone()
}

// NextCardNumber is the number the next added card will get.
func (s *Store) NextCardNumber() int {
	return s.nextNumber
}

// Now reads the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Merge applies a remote envelope received now.
func (s *Store) Merge(env Envelope) bool {
	return Merge(s.state, env, s.now())
}

// locate finds a card, preferring the named column.
func (s *Store) locate(column ColumnName, id string) (ColumnName, int, bool) {
	if i := s.state.Cards.indexIn(column, id); i >= 0 {
		return column, i, true
	}
	return s.state.Cards.Find(id)
}

// AddCard appends a fresh empty card to column.
func (s *Store) AddCard(column ColumnName) (CardAddedPayload, bool) {
	if !column.Valid() {
		return CardAddedPayload{}, false
	}
	card := NewCard(s.nextNumber, s.now())
	s.nextNumber++
	s.state.Cards.insertAt(column, -1, card)
	return CardAddedPayload{Column: column, Card: card.Clone()}, true
}

// UpdateText replaces the text of a card and stamps it with the local clock.
func (s *Store) UpdateText(column ColumnName, id, text string) (CardUpdatedPayload, bool) {
	col, i, ok := s.locate(column, id)
	if !ok {
		return CardUpdatedPayload{}, false
	}
	card := s.state.Cards.Column(col)[i]
	card.Text = text
	// Stamps must strictly increase or peers would reject the edit as stale.
	card.LastModified = max(s.now().UnixMilli(), card.LastModified+1)
	s.state.replaceCard(col, i, card)

	stamp := card.LastModified
	return CardUpdatedPayload{
		Column:  col,
		CardID:  id,
		Updates: CardUpdates{Text: &text, LastModified: &stamp},
	}, true
}

// UpdateTimer sets a card's stopwatch value and running flag.
func (s *Store) UpdateTimer(column ColumnName, id string, seconds int, running bool) (TimerUpdatedPayload, bool) {
	col, i, ok := s.locate(column, id)
	if !ok {
		return TimerUpdatedPayload{}, false
	}
	if seconds < 0 {
		seconds = 0
	}
	card := s.state.Cards.Column(col)[i]
	card.Seconds = seconds
	card.IsTimerRunning = running
	card.LastModified = s.now().UnixMilli()
	s.state.replaceCard(col, i, card)

	return TimerUpdatedPayload{Column: col, CardID: id, Seconds: seconds, IsTimerRunning: running}, true
}

// Vote adds or withdraws one of user's votes on a card. A user holds between
// zero and MaxVotesPerUser votes per card; a step past either bound is a no-op.
func (s *Store) Vote(column ColumnName, id string, increment bool, user string) (CardVotedPayload, bool) {
	if user == "" {
		return CardVotedPayload{}, false
	}
	col, i, ok := s.locate(column, id)
	if !ok {
		return CardVotedPayload{}, false
	}
	card := s.state.Cards.Column(col)[i]
	current := card.UserVotes[user]
	if increment && current >= MaxVotesPerUser {
		return CardVotedPayload{}, false
	}
	if !increment && current <= 0 {
		return CardVotedPayload{}, false
	}

	votes := cloneVotes(card.UserVotes)
	if increment {
		votes[user] = current + 1
	} else if current == 1 {
		delete(votes, user)
	} else {
		votes[user] = current - 1
	}
	card.UserVotes = votes
	card.Votes = sumVotes(votes)
	card.LastModified = s.now().UnixMilli()
	s.state.replaceCard(col, i, card)

	return CardVotedPayload{
		Column:    col,
		CardID:    id,
		Votes:     card.Votes,
		UserVotes: cloneVotes(votes),
	}, true
}

// DeleteCard removes a card.
func (s *Store) DeleteCard(column ColumnName, id string) (CardDeletedPayload, bool) {
	col, _, ok := s.locate(column, id)
	if !ok {
		return CardDeletedPayload{}, false
	}
	s.state.Cards.removeFrom(col, id)
	return CardDeletedPayload{Column: col, CardID: id}, true
}

// MoveCard takes a card out of from and inserts it into to at atIndex. A
// negative index means the head of the column; larger indexes are clamped to
// its end.
func (s *Store) MoveCard(id string, from, to ColumnName, atIndex int) (CardMovedPayload, bool) {
	if !to.Valid() {
		return CardMovedPayload{}, false
	}
	col, _, ok := s.locate(from, id)
	if !ok {
		return CardMovedPayload{}, false
	}
	card, _ := s.state.Cards.removeFrom(col, id)
	if atIndex < 0 {
		atIndex = 0
	}
	if n := len(s.state.Cards.Column(to)); atIndex > n {
		atIndex = n
	}
	s.state.Cards.insertAt(to, atIndex, card)

	return CardMovedPayload{FromColumn: col, ToColumn: to, CardID: id, Card: card.Clone()}, true
}

// ByVotesDesc orders cards with the most votes first.
func ByVotesDesc(a, b Card) int {
	return cmp.Compare(b.Votes, a.Votes)
}

// SortColumn reorders a column. A nil compare sorts by votes descending; the
// sort is stable so ties keep their order.
func (s *Store) SortColumn(column ColumnName, compare func(a, b Card) int) (CardsSortedPayload, bool) {
	if !column.Valid() {
		return CardsSortedPayload{}, false
	}
	if compare == nil {
		compare = ByVotesDesc
	}
	cards := slices.Clone(s.state.Cards.Column(column))
	slices.SortStableFunc(cards, compare)
	s.state.Cards.SetColumn(column, cards)

	out := make([]Card, len(cards))
	for i, c := range cards {
		out[i] = c.Clone()
	}
	return CardsSortedPayload{Column: column, Cards: out}, true
}

// AddUser puts name into the active set.
func (s *Store) AddUser(name string) (UserJoinedPayload, bool) {
	if !s.state.addUser(name) {
		return UserJoinedPayload{}, false
	}
	return UserJoinedPayload{Username: name}, true
}

// RemoveUser takes name out of the active set.
func (s *Store) RemoveUser(name string) (UserLeftPayload, bool) {
	if !s.state.removeUser(name) {
		return UserLeftPayload{}, false
	}
	return UserLeftPayload{Username: name}, true
}

// ValidateUsername trims a candidate username and checks it against the
// active set. The returned name is the trimmed form.
func ValidateUsername(candidate string, active []string) (string, error) {
	name := strings.TrimSpace(candidate)
	if name == "" {
		return "", ErrUsernameRequired
	}
	if len([]rune(name)) < 2 {
		return "", ErrUsernameTooShort
	}
	if slices.Contains(active, name) {
		return "", ErrUsernameTaken
	}
	return name, nil
}
