// ABOUTME: Envelope is the wire unit exchanged between replicas, wrapping one of ten payload kinds.
// ABOUTME: Encode/Decode implement the JSON codec with the kind carried on the envelope itself.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the payload carried by an Envelope.
type Kind string

const (
	KindCardAdded     Kind = "CARD_ADDED"
	KindCardUpdated   Kind = "CARD_UPDATED"
	KindCardDeleted   Kind = "CARD_DELETED"
	KindCardMoved     Kind = "CARD_MOVED"
	KindCardVoted     Kind = "CARD_VOTED"
	KindCardsSorted   Kind = "CARDS_SORTED"
	KindTimerUpdated  Kind = "TIMER_UPDATED"
	KindUserJoined    Kind = "USER_JOINED"
	KindUserLeft      Kind = "USER_LEFT"
	KindFullStateSync Kind = "FULL_STATE_SYNC"
)

// Envelope is one replicated event. Timestamp is milliseconds on the
// originating replica's clock and is informational only.
type Envelope struct {
	Kind            Kind    `json:"kind"`
	Timestamp       int64   `json:"timestamp"`
	OriginatingUser string  `json:"originatingUser"`
	Payload         Payload `json:"-"` // Custom marshal/unmarshal
}

// envelopeJSON is the wire format for Envelope.
type envelopeJSON struct {
	Kind            Kind            `json:"kind"`
	Timestamp       int64           `json:"timestamp"`
	OriginatingUser string          `json:"originatingUser"`
	Payload         json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload for publishing by user at now.
func NewEnvelope(user string, now time.Time, p Payload) Envelope {
	return Envelope{
		Kind:            p.Kind(),
		Timestamp:       now.UnixMilli(),
		OriginatingUser: user,
		Payload:         p,
	}
}

// MarshalJSON serializes the Envelope with its payload inlined.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("cannot marshal envelope %s without payload", e.Kind)
	}
	if e.Payload.Kind() != e.Kind {
		return nil, fmt.Errorf("envelope kind %s does not match payload kind %s", e.Kind, e.Payload.Kind())
	}
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Kind, err)
	}
	return json.Marshal(envelopeJSON{
		Kind:            e.Kind,
		Timestamp:       e.Timestamp,
		OriginatingUser: e.OriginatingUser,
		Payload:         payloadJSON,
	})
}

// UnmarshalJSON deserializes the Envelope and validates its payload.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var j envelopeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	payload, err := UnmarshalPayload(j.Kind, j.Payload)
	if err != nil {
		return err
	}
	e.Kind = j.Kind
	e.Timestamp = j.Timestamp
	e.OriginatingUser = j.OriginatingUser
	e.Payload = payload
	return nil
}

// Encode serializes an envelope into a bus frame.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a bus frame. Every failure wraps ErrMalformedEnvelope.
func Decode(frame []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(frame, &e); err != nil {
		if !errors.Is(err, ErrMalformedEnvelope) {
			err = fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		return Envelope{}, err
	}
	return e, nil
}

// Payload is a tagged union over the ten envelope kinds.
type Payload interface {
	Kind() Kind
	validate() error
}

// CardAddedPayload announces a new card.
type CardAddedPayload struct {
	Column ColumnName `json:"column"`
	Card   Card       `json:"card"`
}

func (p CardAddedPayload) Kind() Kind { return KindCardAdded }
func (p CardAddedPayload) validate() error {
	if err := validColumn(p.Column); err != nil {
		return err
	}
	return validateCard(p.Card)
}

// CardUpdates carries the optional fields of a text edit.
type CardUpdates struct {
	Text         *string `json:"text,omitempty"`
	LastModified *int64  `json:"lastModified,omitempty"`
}

// CardUpdatedPayload announces a text edit.
type CardUpdatedPayload struct {
	Column  ColumnName  `json:"column"`
	CardID  string      `json:"cardId"`
	Updates CardUpdates `json:"updates"`
}

func (p CardUpdatedPayload) Kind() Kind { return KindCardUpdated }
func (p CardUpdatedPayload) validate() error {
	return validCardRef(p.Column, p.CardID)
}

// CardDeletedPayload announces a card removal.
type CardDeletedPayload struct {
	Column ColumnName `json:"column"`
	CardID string     `json:"cardId"`
}

func (p CardDeletedPayload) Kind() Kind { return KindCardDeleted }
func (p CardDeletedPayload) validate() error {
	return validCardRef(p.Column, p.CardID)
}

// CardMovedPayload announces a card changing columns, with a full snapshot of it.
type CardMovedPayload struct {
	FromColumn ColumnName `json:"fromColumn"`
	ToColumn   ColumnName `json:"toColumn"`
	CardID     string     `json:"cardId"`
	Card       Card       `json:"card"`
}

func (p CardMovedPayload) Kind() Kind { return KindCardMoved }
func (p CardMovedPayload) validate() error {
	if err := validCardRef(p.FromColumn, p.CardID); err != nil {
		return err
	}
	if err := validColumn(p.ToColumn); err != nil {
		return err
	}
	if err := validateCard(p.Card); err != nil {
		return err
	}
	if p.Card.ID != p.CardID {
		return fmt.Errorf("%w: card snapshot %q does not match cardId %q", ErrMalformedEnvelope, p.Card.ID, p.CardID)
	}
	return nil
}

// CardVotedPayload carries the resulting vote tally of a card.
type CardVotedPayload struct {
	Column    ColumnName     `json:"column"`
	CardID    string         `json:"cardId"`
	Votes     int            `json:"votes"`
	UserVotes map[string]int `json:"userVotes"`
}

func (p CardVotedPayload) Kind() Kind { return KindCardVoted }
func (p CardVotedPayload) validate() error {
	if err := validCardRef(p.Column, p.CardID); err != nil {
		return err
	}
	if p.UserVotes == nil {
		return fmt.Errorf("%w: vote without userVotes", ErrMalformedEnvelope)
	}
	return checkUserVotes(p.UserVotes)
}

// CardsSortedPayload carries the new full ordering of one column.
type CardsSortedPayload struct {
	Column ColumnName `json:"column"`
	Cards  []Card     `json:"cards"`
}

func (p CardsSortedPayload) Kind() Kind { return KindCardsSorted }
func (p CardsSortedPayload) validate() error {
	if err := validColumn(p.Column); err != nil {
		return err
	}
	for _, c := range p.Cards {
		if err := validateCard(c); err != nil {
			return err
		}
	}
	return nil
}

// TimerUpdatedPayload carries a card's stopwatch value.
type TimerUpdatedPayload struct {
	Column         ColumnName `json:"column"`
	CardID         string     `json:"cardId"`
	Seconds        int        `json:"seconds"`
	IsTimerRunning bool       `json:"isTimerRunning"`
}

func (p TimerUpdatedPayload) Kind() Kind { return KindTimerUpdated }
func (p TimerUpdatedPayload) validate() error {
	if p.Seconds < 0 {
		return fmt.Errorf("%w: negative timer", ErrMalformedEnvelope)
	}
	return validCardRef(p.Column, p.CardID)
}

// UserJoinedPayload announces a participant.
type UserJoinedPayload struct {
	Username string `json:"username"`
}

func (p UserJoinedPayload) Kind() Kind      { return KindUserJoined }
func (p UserJoinedPayload) validate() error { return validUsername(p.Username) }

// UserLeftPayload announces a participant leaving.
type UserLeftPayload struct {
	Username string `json:"username"`
}

func (p UserLeftPayload) Kind() Kind      { return KindUserLeft }
func (p UserLeftPayload) validate() error { return validUsername(p.Username) }

// FullStateSyncPayload replaces a replica's whole state when both fields are
// present. With both absent it is a sync request.
type FullStateSyncPayload struct {
	Cards       *Board    `json:"cards,omitempty"`
	ActiveUsers *[]string `json:"activeUsers,omitempty"`
}

// NewFullStateSync builds a sync payload carrying a copy of state.
func NewFullStateSync(s *State) FullStateSyncPayload {
	board := s.Cards.Clone()
	users := append([]string{}, s.ActiveUsers...)
	return FullStateSyncPayload{Cards: &board, ActiveUsers: &users}
}

// IsRequest reports whether the payload carries no state.
func (p FullStateSyncPayload) IsRequest() bool {
	return p.Cards == nil && p.ActiveUsers == nil
}

func (p FullStateSyncPayload) Kind() Kind { return KindFullStateSync }
func (p FullStateSyncPayload) validate() error {
	if p.Cards == nil {
		return nil
	}
	for _, col := range Columns {
		for _, c := range p.Cards.Column(col) {
			if err := validateCard(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnmarshalPayload decodes the payload of an envelope of the given kind.
func UnmarshalPayload(kind Kind, data json.RawMessage) (Payload, error) {
	if len(data) == 0 || string(data) == "null" {
		if kind == KindFullStateSync {
			return FullStateSyncPayload{}, nil
		}
		return nil, fmt.Errorf("%w: %s without payload", ErrMalformedEnvelope, kind)
	}

	var (
		p   Payload
		err error
	)
	switch kind {
	case KindCardAdded:
		p, err = decodeAs[CardAddedPayload](data)
	case KindCardUpdated:
		p, err = decodeAs[CardUpdatedPayload](data)
	case KindCardDeleted:
		p, err = decodeAs[CardDeletedPayload](data)
	case KindCardMoved:
		p, err = decodeAs[CardMovedPayload](data)
	case KindCardVoted:
		p, err = decodeAs[CardVotedPayload](data)
	case KindCardsSorted:
		p, err = decodeAs[CardsSortedPayload](data)
	case KindTimerUpdated:
		p, err = decodeAs[TimerUpdatedPayload](data)
	case KindUserJoined:
		p, err = decodeAs[UserJoinedPayload](data)
	case KindUserLeft:
		p, err = decodeAs[UserLeftPayload](data)
	case KindFullStateSync:
		p, err = decodeAs[FullStateSyncPayload](data)
	default:
		return nil, fmt.Errorf("%w: %w %q", ErrMalformedEnvelope, ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEnvelope, kind, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeAs[T Payload](data json.RawMessage) (Payload, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func validColumn(c ColumnName) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %w %q", ErrMalformedEnvelope, ErrUnknownColumn, c)
	}
	return nil
}

func validCardRef(c ColumnName, id string) error {
	if err := validColumn(c); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: missing cardId", ErrMalformedEnvelope)
	}
	return nil
}

func validUsername(name string) error {
	if name == "" {
		return fmt.Errorf("%w: missing username", ErrMalformedEnvelope)
	}
	return nil
}
