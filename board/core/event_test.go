// ABOUTME: Tests for the envelope codec: wire field names, optional fields and malformed frames.
// ABOUTME: Malformed input must always surface as ErrMalformedEnvelope.
package core_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/2389-research/retroboard/board/core"
)

func TestEncode_UsesWireFieldNames(t *testing.T) {
	card := core.Card{
		ID:              "c1",
		Text:            "ship it",
		BackgroundColor: core.Palette[0],
		LastModified:    42,
		CardNumber:      7,
		UserVotes:       map[string]int{"alice": 2},
		Votes:           2,
	}
	env := core.NewEnvelope("alice", time.UnixMilli(1000), core.CardAddedPayload{Column: core.ColumnDiscuss, Card: card})

	frame, err := core.Encode(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(frame, &wire); err != nil {
		t.Fatalf("frame is not JSON: %v", err)
	}
	for _, key := range []string{"kind", "timestamp", "originatingUser", "payload"} {
		if _, ok := wire[key]; !ok {
			t.Errorf("expected envelope key %q in %s", key, frame)
		}
	}
	if wire["kind"] != "CARD_ADDED" {
		t.Errorf("expected kind CARD_ADDED, got %v", wire["kind"])
	}
	if wire["timestamp"] != float64(1000) {
		t.Errorf("expected timestamp 1000, got %v", wire["timestamp"])
	}

	payload := wire["payload"].(map[string]any)
	if payload["column"] != "discuss" {
		t.Errorf("expected column discuss, got %v", payload["column"])
	}
	wireCard := payload["card"].(map[string]any)
	for _, key := range []string{"id", "text", "votes", "backgroundColor", "seconds", "isTimerRunning", "lastModified", "cardNumber", "userVotes"} {
		if _, ok := wireCard[key]; !ok {
			t.Errorf("expected card key %q", key)
		}
	}
}

func TestDecode_CardUpdatedWithoutLastModified(t *testing.T) {
	frame := []byte(`{"kind":"CARD_UPDATED","timestamp":5,"originatingUser":"bob",
		"payload":{"column":"done","cardId":"c1","updates":{"text":"hello"}}}`)

	env, err := core.Decode(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := env.Payload.(core.CardUpdatedPayload)
	if !ok {
		t.Fatalf("expected CardUpdatedPayload, got %T", env.Payload)
	}
	if p.Updates.Text == nil || *p.Updates.Text != "hello" {
		t.Errorf("expected text hello, got %v", p.Updates.Text)
	}
	if p.Updates.LastModified != nil {
		t.Errorf("expected no lastModified, got %d", *p.Updates.LastModified)
	}
	if env.OriginatingUser != "bob" {
		t.Errorf("expected originatingUser bob, got %q", env.OriginatingUser)
	}
}

func TestDecode_FullStateSyncRequest(t *testing.T) {
	for _, frame := range []string{
		`{"kind":"FULL_STATE_SYNC","timestamp":1,"originatingUser":"a","payload":{}}`,
		`{"kind":"FULL_STATE_SYNC","timestamp":1,"originatingUser":"a"}`,
	} {
		env, err := core.Decode([]byte(frame))
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", frame, err)
		}
		p := env.Payload.(core.FullStateSyncPayload)
		if !p.IsRequest() {
			t.Errorf("expected a sync request for %s", frame)
		}
	}
}

func TestEncode_FullStateSyncKeepsEmptyActiveUsers(t *testing.T) {
	state := core.NewState()
	env := core.NewEnvelope("a", time.UnixMilli(1), core.NewFullStateSync(state))

	frame, err := core.Encode(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, err := core.Decode(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := decoded.Payload.(core.FullStateSyncPayload)
	if p.IsRequest() || p.Cards == nil || p.ActiveUsers == nil {
		t.Fatalf("expected a full sync with both fields, got %s", frame)
	}
}

func TestDecode_MalformedFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{{{`},
		{"unknown kind", `{"kind":"CARD_EXPLODED","payload":{}}`},
		{"missing payload", `{"kind":"CARD_ADDED","timestamp":1,"originatingUser":"a"}`},
		{"bad column", `{"kind":"CARD_DELETED","payload":{"column":"later","cardId":"c1"}}`},
		{"missing card id", `{"kind":"CARD_DELETED","payload":{"column":"done"}}`},
		{"too many votes", `{"kind":"CARD_VOTED","payload":{"column":"done","cardId":"c1","votes":4,"userVotes":{"a":4}}}`},
		{"vote without tally", `{"kind":"CARD_VOTED","payload":{"column":"done","cardId":"c1","votes":1}}`},
		{"card without id", `{"kind":"CARD_ADDED","payload":{"column":"done","card":{"text":"x"}}}`},
		{"move mismatch", `{"kind":"CARD_MOVED","payload":{"fromColumn":"done","toColumn":"action","cardId":"c1","card":{"id":"c2"}}}`},
		{"wrong payload type", `{"kind":"USER_JOINED","payload":{"username":7}}`},
		{"negative timer", `{"kind":"TIMER_UPDATED","payload":{"column":"done","cardId":"c1","seconds":-1}}`},
		{"added card negative timer", `{"kind":"CARD_ADDED","payload":{"column":"done","card":{"id":"c1","seconds":-5}}}`},
		{"moved card negative timer", `{"kind":"CARD_MOVED","payload":{"fromColumn":"done","toColumn":"action","cardId":"c1","card":{"id":"c1","seconds":-5}}}`},
		{"sorted card negative timer", `{"kind":"CARDS_SORTED","payload":{"column":"done","cards":[{"id":"c1","seconds":-5}]}}`},
		{"sync card negative timer", `{"kind":"FULL_STATE_SYNC","payload":{"cards":{"discuss":[{"id":"c1","seconds":-5}],"done":[],"action":[]},"activeUsers":[]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.Decode([]byte(tt.frame))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, core.ErrMalformedEnvelope) {
				t.Errorf("expected ErrMalformedEnvelope, got %v", err)
			}
		})
	}
}

func TestDecode_UnknownKindIsDistinguishable(t *testing.T) {
	_, err := core.Decode([]byte(`{"kind":"CARD_EXPLODED","payload":{}}`))
	if !errors.Is(err, core.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}
