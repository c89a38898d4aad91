// ABOUTME: Snapshots maps a replica's board, participants, username and card counter onto KV keys.
// ABOUTME: Missing keys load as defaults so a fresh store starts with an empty board.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/2389-research/retroboard/board/core"
)

// Keys under which replica state is persisted.
const (
	KeyCards       = "retro-cards"
	KeyActiveUsers = "active-users"
	KeyUsername    = "username"
	KeyCardCounter = "card-counter"
)

// Snapshot is everything a replica restores at startup.
type Snapshot struct {
	State          *core.State
	Username       string
	NextCardNumber int
}

// Snapshots reads and writes replica state through a KV.
type Snapshots struct {
	kv KV
}

// NewSnapshots wraps kv.
func NewSnapshots(kv KV) *Snapshots {
	return &Snapshots{kv: kv}
}

// Load reads the persisted snapshot, filling defaults for missing keys.
func (s *Snapshots) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{State: core.NewState(), NextCardNumber: 1}

	if err := s.getJSON(ctx, KeyCards, &snap.State.Cards); err != nil {
		return nil, err
	}
	if err := s.getJSON(ctx, KeyActiveUsers, &snap.State.ActiveUsers); err != nil {
		return nil, err
	}
	for _, col := range core.Columns {
		if snap.State.Cards.Column(col) == nil {
			snap.State.Cards.SetColumn(col, nil)
		}
	}
	if snap.State.ActiveUsers == nil {
		snap.State.ActiveUsers = []string{}
	}

	name, err := s.kv.Get(ctx, KeyUsername)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load username: %w", err)
	default:
		snap.Username = string(name)
	}

	counter, err := s.kv.Get(ctx, KeyCardCounter)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load card counter: %w", err)
	default:
		n, err := strconv.Atoi(string(counter))
		if err != nil {
			return nil, fmt.Errorf("parse card counter %q: %w", counter, err)
		}
		if n > 0 {
			snap.NextCardNumber = n
		}
	}

	return snap, nil
}

// SaveState writes the board and the participant set.
func (s *Snapshots) SaveState(ctx context.Context, state *core.State) error {
	if err := s.setJSON(ctx, KeyCards, state.Cards); err != nil {
		return err
	}
	return s.setJSON(ctx, KeyActiveUsers, state.ActiveUsers)
}

// SaveUsername records the local username; an empty name clears it.
func (s *Snapshots) SaveUsername(ctx context.Context, name string) error {
	if name == "" {
		return s.kv.Delete(ctx, KeyUsername)
	}
	return s.kv.Set(ctx, KeyUsername, []byte(name))
}

// SaveCardCounter records the number the next added card will get.
func (s *Snapshots) SaveCardCounter(ctx context.Context, next int) error {
	return s.kv.Set(ctx, KeyCardCounter, []byte(strconv.Itoa(next)))
}

func (s *Snapshots) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Snapshots) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, data)
}
