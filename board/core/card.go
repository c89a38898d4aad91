// ABOUTME: Card is a single retro note with votes, a stopwatch and per-user vote counts.
// ABOUTME: Includes the background color palette and vote-invariant helpers.
package core

import (
	"fmt"
	"math/rand"
	"time"
)

// MaxVotesPerUser bounds how many votes one participant may put on a card.
const MaxVotesPerUser = 3

// TimerLimitSeconds is where the stopwatch display turns to overtime. The
// stopwatch keeps counting past it.
const TimerLimitSeconds = 300

// Palette holds the background colors a new card is drawn from.
var Palette = []string{
	"rgba(25, 0, 50, 0.2)",
	"rgba(0, 25, 50, 0.2)",
	"rgba(0, 50, 25, 0.2)",
	"rgba(50, 25, 0, 0.2)",
	"rgba(50, 0, 25, 0.2)",
	"rgba(25, 50, 0, 0.2)",
}

// Card is a note on the board.
type Card struct {
	ID              string         `json:"id"`
	Text            string         `json:"text"`
	Votes           int            `json:"votes"`
	BackgroundColor string         `json:"backgroundColor"`
	Seconds         int            `json:"seconds"`
	IsTimerRunning  bool           `json:"isTimerRunning"`
	LastModified    int64          `json:"lastModified"`
	CardNumber      int            `json:"cardNumber"`
	UserVotes       map[string]int `json:"userVotes"`
}

// NewCard builds an empty card with a fresh id and a random palette color.
func NewCard(number int, now time.Time) Card {
	return Card{
		ID:              NewCardID(),
		BackgroundColor: Palette[rand.Intn(len(Palette))],
		LastModified:    now.UnixMilli(),
		CardNumber:      number,
		UserVotes:       map[string]int{},
	}
}

// Clone returns a deep copy of the card.
func (c Card) Clone() Card {
	out := c
	out.UserVotes = cloneVotes(c.UserVotes)
	return out
}

// Overtime reports whether the stopwatch has passed TimerLimitSeconds.
func (c Card) Overtime() bool {
	return c.Seconds >= TimerLimitSeconds
}

// VotesBy returns how many votes the user has on this card.
func (c Card) VotesBy(user string) int {
	return c.UserVotes[user]
}

// validateCard rejects card snapshots that would break the vote invariants
// or carry a negative stopwatch.
func validateCard(c Card) error {
	if c.ID == "" {
		return fmt.Errorf("%w: card without id", ErrMalformedEnvelope)
	}
	if c.Seconds < 0 {
		return fmt.Errorf("%w: card %q has negative timer", ErrMalformedEnvelope, c.ID)
	}
	return checkUserVotes(c.UserVotes)
}

// normalized returns a deep copy whose Votes is recomputed from UserVotes.
func (c Card) normalized() Card {
	out := c.Clone()
	out.Votes = sumVotes(out.UserVotes)
	return out
}

func checkUserVotes(votes map[string]int) error {
	for user, n := range votes {
		if n < 1 || n > MaxVotesPerUser {
			return fmt.Errorf("%w: user %q has %d votes", ErrMalformedEnvelope, user, n)
		}
	}
	return nil
}

func sumVotes(votes map[string]int) int {
	total := 0
	for _, n := range votes {
		total += n
	}
	return total
}

func cloneVotes(votes map[string]int) map[string]int {
	out := make(map[string]int, len(votes))
	for k, v := range votes {
		out[k] = v
	}
	return out
}

// FormatSeconds renders a stopwatch value as m:ss.
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
