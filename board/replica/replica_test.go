// ABOUTME: Tests for Replica over an in-process hub: lifecycle, propagation, echo suppression and persistence.
// ABOUTME: A spy endpoint on the same hub observes and injects raw frames.
package replica_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/2389-research/retroboard/board/bus"
	"github.com/2389-research/retroboard/board/core"
	"github.com/2389-research/retroboard/board/replica"
	"github.com/2389-research/retroboard/board/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newReplica(t *testing.T, hub *bus.Hub, snap *store.Snapshot, opts ...replica.Option) *replica.Replica {
	t.Helper()
	opts = append([]replica.Option{replica.WithTickInterval(0)}, opts...)
	r := replica.New(hub.Endpoint(), snap, opts...)
	t.Cleanup(func() { r.Close() })
	return r
}

func joined(t *testing.T, hub *bus.Hub, name string, opts ...replica.Option) *replica.Replica {
	t.Helper()
	r := newReplica(t, hub, nil, opts...)
	if err := r.Join(context.Background(), name); err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return r
}

type spy struct {
	ep     *bus.HubEndpoint
	frames chan core.Envelope
}

func newSpy(t *testing.T, hub *bus.Hub) *spy {
	t.Helper()
	s := &spy{ep: hub.Endpoint(), frames: make(chan core.Envelope, 256)}
	if _, err := s.ep.Subscribe(func(frame []byte) {
		if env, err := core.Decode(frame); err == nil {
			s.frames <- env
		}
	}); err != nil {
		t.Fatalf("spy subscribe: %v", err)
	}
	t.Cleanup(func() { s.ep.Close() })
	return s
}

func (s *spy) send(t *testing.T, user string, p core.Payload) {
	t.Helper()
	frame, err := core.Encode(core.NewEnvelope(user, time.Now(), p))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s.ep.Publish(frame)
}

func (s *spy) next(t *testing.T) core.Envelope {
	t.Helper()
	select {
	case env := <-s.frames:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an envelope")
		return core.Envelope{}
	}
}

// nextOf skips envelopes until one of kind arrives.
func (s *spy) nextOf(t *testing.T, kind core.Kind) core.Envelope {
	t.Helper()
	for {
		if env := s.next(t); env.Kind == kind {
			return env
		}
	}
}

func (s *spy) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case env := <-s.frames:
		t.Errorf("expected no envelope, got %s from %s", env.Kind, env.OriginatingUser)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitFor(t *testing.T, r *replica.Replica, what string, cond func(replica.View) bool) replica.View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		v, err := r.View(context.Background())
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		if cond(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; board=%+v users=%v", what, v.Board, v.ActiveUsers)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func hasCard(id string) func(replica.View) bool {
	return func(v replica.View) bool {
		_, _, ok := v.Board.Find(id)
		return ok
	}
}

func TestJoin_ValidationErrorsPublishNothing(t *testing.T) {
	hub := bus.NewHub("test", 0)
	sp := newSpy(t, hub)
	snap := &store.Snapshot{State: core.NewState()}
	snap.State.ActiveUsers = []string{"alice"}
	r := newReplica(t, hub, snap)
	ctx := context.Background()

	tests := []struct {
		name string
		want error
	}{
		{"", core.ErrUsernameRequired},
		{"  ", core.ErrUsernameRequired},
		{"a", core.ErrUsernameTooShort},
		{"alice", core.ErrUsernameTaken},
	}
	for _, tt := range tests {
		if err := r.Join(ctx, tt.name); !errors.Is(err, tt.want) {
			t.Errorf("Join(%q): expected %v, got %v", tt.name, tt.want, err)
		}
	}

	v, _ := r.View(ctx)
	if v.Phase != replica.PhaseUnjoined {
		t.Errorf("expected unjoined, got %s", v.Phase)
	}
	sp.expectQuiet(t)
}

func TestJoin_AnnouncesThenRequestsState(t *testing.T) {
	hub := bus.NewHub("test", 0)
	sp := newSpy(t, hub)
	r := joined(t, hub, "  bob ")

	first := sp.next(t)
	if first.Kind != core.KindUserJoined {
		t.Fatalf("expected USER_JOINED first, got %s", first.Kind)
	}
	if p := first.Payload.(core.UserJoinedPayload); p.Username != "bob" {
		t.Errorf("expected trimmed username bob, got %q", p.Username)
	}
	second := sp.next(t)
	if second.Kind != core.KindFullStateSync || !second.Payload.(core.FullStateSyncPayload).IsRequest() {
		t.Errorf("expected an empty FULL_STATE_SYNC request, got %s", second.Kind)
	}
	if second.OriginatingUser != "bob" {
		t.Errorf("expected originatingUser bob, got %q", second.OriginatingUser)
	}

	v, _ := r.View(context.Background())
	if v.Phase != replica.PhaseJoined || v.Username != "bob" {
		t.Errorf("expected joined as bob, got %s as %q", v.Phase, v.Username)
	}
	if len(v.ActiveUsers) != 1 || v.ActiveUsers[0] != "bob" {
		t.Errorf("expected [bob], got %v", v.ActiveUsers)
	}

	if err := r.Join(context.Background(), "carol"); !errors.Is(err, replica.ErrAlreadyJoined) {
		t.Errorf("expected ErrAlreadyJoined, got %v", err)
	}
}

func TestReplicas_CardAddPropagates(t *testing.T) {
	hub := bus.NewHub("test", 0)
	a := joined(t, hub, "alice")
	b := joined(t, hub, "bob")
	ctx := context.Background()

	card, ok, err := a.AddCard(ctx, core.ColumnDiscuss)
	if err != nil || !ok {
		t.Fatalf("add card: ok=%v err=%v", ok, err)
	}

	v := waitFor(t, b, "card on bob's board", hasCard(card.ID))
	if v.Board.Discuss[0].ID != card.ID {
		t.Errorf("expected card at head of discuss, got %s", v.Board.Discuss[0].ID)
	}
	waitFor(t, a, "bob in alice's participants", func(v replica.View) bool {
		return len(v.ActiveUsers) == 2
	})
}

func TestReplicas_EditVoteMoveDelete(t *testing.T) {
	hub := bus.NewHub("test", 0)
	a := joined(t, hub, "alice")
	b := joined(t, hub, "bob")
	ctx := context.Background()

	card, _, _ := a.AddCard(ctx, core.ColumnDiscuss)
	waitFor(t, b, "card", hasCard(card.ID))

	a.UpdateText(ctx, core.ColumnDiscuss, card.ID, "flaky tests")
	waitFor(t, b, "text", func(v replica.View) bool {
		c, _, _ := v.Board.Card(card.ID)
		return c.Text == "flaky tests"
	})

	b.Vote(ctx, core.ColumnDiscuss, card.ID, true)
	b.Vote(ctx, core.ColumnDiscuss, card.ID, true)
	waitFor(t, a, "bob's votes", func(v replica.View) bool {
		c, _, _ := v.Board.Card(card.ID)
		return c.Votes == 2 && c.VotesBy("bob") == 2
	})

	a.MoveCard(ctx, card.ID, core.ColumnDiscuss, core.ColumnAction, -1)
	waitFor(t, b, "card in action", func(v replica.View) bool {
		col, _, ok := v.Board.Find(card.ID)
		return ok && col == core.ColumnAction
	})

	b.DeleteCard(ctx, core.ColumnAction, card.ID)
	waitFor(t, a, "card gone", func(v replica.View) bool {
		return v.Board.Len() == 0
	})
}

func TestReplicas_SequentialVotesFromTwoUsersConverge(t *testing.T) {
	hub := bus.NewHub("test", 0)
	a := joined(t, hub, "alice")
	b := joined(t, hub, "bob")
	ctx := context.Background()

	card, _, _ := a.AddCard(ctx, core.ColumnDiscuss)
	waitFor(t, b, "card", hasCard(card.ID))

	if ok, err := a.Vote(ctx, core.ColumnDiscuss, card.ID, true); !ok || err != nil {
		t.Fatalf("alice vote: ok=%v err=%v", ok, err)
	}
	waitFor(t, b, "alice's vote", func(v replica.View) bool {
		c, _, _ := v.Board.Card(card.ID)
		return c.VotesBy("alice") == 1
	})
	if ok, err := b.Vote(ctx, core.ColumnDiscuss, card.ID, true); !ok || err != nil {
		t.Fatalf("bob vote: ok=%v err=%v", ok, err)
	}

	converged := func(v replica.View) bool {
		c, _, _ := v.Board.Card(card.ID)
		return c.Votes == 2 && c.VotesBy("alice") == 1 && c.VotesBy("bob") == 1
	}
	waitFor(t, a, "both votes on alice", converged)
	waitFor(t, b, "both votes on bob", converged)
}

func TestReplicas_LateJoinerStartsEmptyByDefault(t *testing.T) {
	hub := bus.NewHub("test", 0)
	a := joined(t, hub, "alice")
	ctx := context.Background()
	card, _, _ := a.AddCard(ctx, core.ColumnDone)

	b := joined(t, hub, "bob")
	waitFor(t, a, "bob joined", func(v replica.View) bool { return len(v.ActiveUsers) == 2 })

	v, _ := b.View(ctx)
	if _, _, ok := v.Board.Find(card.ID); ok {
		t.Error("expected the late joiner not to receive earlier cards")
	}
}

func TestReplicas_SyncResponderSharesState(t *testing.T) {
	hub := bus.NewHub("test", 0)
	a := joined(t, hub, "alice", replica.WithSyncResponder())
	ctx := context.Background()
	card, _, _ := a.AddCard(ctx, core.ColumnDone)

	b := joined(t, hub, "bob")
	v := waitFor(t, b, "state from alice", hasCard(card.ID))
	if len(v.ActiveUsers) != 2 {
		t.Errorf("expected alice and bob active, got %v", v.ActiveUsers)
	}
}

func TestReplicas_EverySyncResponderBroadcastsAnAnswer(t *testing.T) {
	hub := bus.NewHub("test", 0)
	sp := newSpy(t, hub)
	joined(t, hub, "alice", replica.WithSyncResponder())
	joined(t, hub, "carol", replica.WithSyncResponder())
	// alice answers carol's own join request first.
	for {
		env := sp.nextOf(t, core.KindFullStateSync)
		if p := env.Payload.(core.FullStateSyncPayload); !p.IsRequest() && env.OriginatingUser == "alice" {
			break
		}
	}

	sp.send(t, "dave", core.FullStateSyncPayload{})

	answered := map[string]bool{}
	for len(answered) < 2 {
		env := sp.nextOf(t, core.KindFullStateSync)
		if p := env.Payload.(core.FullStateSyncPayload); !p.IsRequest() {
			answered[env.OriginatingUser] = true
		}
	}
	if !answered["alice"] || !answered["carol"] {
		t.Errorf("expected answers from alice and carol, got %v", answered)
	}
}

func TestReplica_IgnoresOwnEchoAndMalformedFrames(t *testing.T) {
	hub := bus.NewHub("test", 0)
	sp := newSpy(t, hub)
	a := joined(t, hub, "alice")

	echo := core.Card{ID: "echo", UserVotes: map[string]int{}}
	real := core.Card{ID: "real", UserVotes: map[string]int{}}
	sp.send(t, "alice", core.CardAddedPayload{Column: core.ColumnDiscuss, Card: echo})
	sp.ep.Publish([]byte(`{"kind":"CARD_ADDED","payload":`))
	sp.send(t, "mallory", core.CardAddedPayload{Column: core.ColumnDiscuss, Card: real})

	v := waitFor(t, a, "real card", hasCard("real"))
	if _, _, ok := v.Board.Find("echo"); ok {
		t.Error("expected an envelope claiming to be from alice to be dropped")
	}
	if v.Board.Len() != 1 {
		t.Errorf("expected exactly one card, got %d", v.Board.Len())
	}
}

func TestReplica_LeaveAnnouncesAndForgetsUsername(t *testing.T) {
	hub := bus.NewHub("test", 0)
	sp := newSpy(t, hub)
	kv := store.NewMemoryKV()
	snaps := store.NewSnapshots(kv)
	a := newReplica(t, hub, nil, replica.WithPersistence(snaps))
	ctx := context.Background()

	if err := a.Join(ctx, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := a.Leave(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}

	left := sp.nextOf(t, core.KindUserLeft)
	if left.Payload.(core.UserLeftPayload).Username != "alice" {
		t.Errorf("unexpected USER_LEFT payload %+v", left.Payload)
	}

	v, _ := a.View(ctx)
	if v.Phase != replica.PhaseUnjoined || len(v.ActiveUsers) != 0 {
		t.Errorf("expected unjoined with nobody active, got %s %v", v.Phase, v.ActiveUsers)
	}

	sp.send(t, "mallory", core.CardAddedPayload{Column: core.ColumnDone, Card: core.Card{ID: "after"}})
	time.Sleep(100 * time.Millisecond)
	v, _ = a.View(ctx)
	if v.Board.Len() != 0 {
		t.Error("expected frames after leave to be ignored")
	}

	snap, err := snaps.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Username != "" {
		t.Errorf("expected logout to clear the stored username, got %q", snap.Username)
	}
	if err := a.Leave(ctx); err != nil {
		t.Errorf("expected second leave to be a no-op, got %v", err)
	}
}

func TestReplica_CloseKeepsUsernameForResume(t *testing.T) {
	hub := bus.NewHub("test", 0)
	sp := newSpy(t, hub)
	kv := store.NewMemoryKV()
	snaps := store.NewSnapshots(kv)
	ctx := context.Background()

	first := replica.New(hub.Endpoint(), nil, replica.WithTickInterval(0), replica.WithPersistence(snaps))
	if err := first.Join(ctx, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	first.AddCard(ctx, core.ColumnAction)
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	sp.nextOf(t, core.KindUserLeft)
	if _, err := first.View(ctx); !errors.Is(err, replica.ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}

	snap, err := snaps.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Username != "alice" {
		t.Fatalf("expected stored username alice, got %q", snap.Username)
	}
	if snap.NextCardNumber != 2 || snap.State.Cards.Len() != 1 {
		t.Errorf("expected the card and counter persisted, got next=%d cards=%d", snap.NextCardNumber, snap.State.Cards.Len())
	}

	// A stale entry for ourselves must not block the resume.
	snap.State.ActiveUsers = []string{"alice"}
	second := newReplica(t, hub, snap, replica.WithPersistence(snaps))
	if err := second.Join(ctx, "alice"); !errors.Is(err, core.ErrUsernameTaken) {
		t.Errorf("expected a fresh join to see alice as taken, got %v", err)
	}
	if err := second.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	joined := sp.nextOf(t, core.KindUserJoined)
	if joined.OriginatingUser != "alice" {
		t.Errorf("expected resume to announce alice, got %q", joined.OriginatingUser)
	}
	card, _, _ := second.AddCard(ctx, core.ColumnAction)
	if card.CardNumber != 2 {
		t.Errorf("expected card numbering to continue at 2, got %d", card.CardNumber)
	}
}

func TestReplica_ResumeWithoutStoredUsername(t *testing.T) {
	hub := bus.NewHub("test", 0)
	r := newReplica(t, hub, nil)
	if err := r.Resume(context.Background()); !errors.Is(err, replica.ErrNoStoredUsername) {
		t.Errorf("expected ErrNoStoredUsername, got %v", err)
	}
}

func TestReplica_VoteNeedsAUsername(t *testing.T) {
	hub := bus.NewHub("test", 0)
	r := newReplica(t, hub, nil)
	ctx := context.Background()

	card, _, _ := r.AddCard(ctx, core.ColumnDiscuss)
	ok, err := r.Vote(ctx, core.ColumnDiscuss, card.ID, true)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if ok {
		t.Error("expected a vote without a username to be a no-op")
	}
}

func TestReplica_ObserverSeesChanges(t *testing.T) {
	hub := bus.NewHub("test", 0)
	views := make(chan replica.View, 64)
	r := newReplica(t, hub, nil, replica.WithObserver(func(v replica.View) {
		select {
		case views <- v:
		default:
		}
	}))

	card, _, _ := r.AddCard(context.Background(), core.ColumnDone)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-views:
			if _, _, ok := v.Board.Find(card.ID); ok {
				return
			}
		case <-deadline:
			t.Fatal("observer never saw the new card")
		}
	}
}

func TestReplica_StopwatchRecomputesFromStart(t *testing.T) {
	hub := bus.NewHub("test", 0)
	sp := newSpy(t, hub)
	clock := newFakeClock()
	var ticks []time.Time
	r := joined(t, hub, "alice",
		replica.WithClock(clock.Now),
		replica.WithTickObserver(func(now time.Time) { ticks = append(ticks, now) }),
	)
	ctx := context.Background()

	card, _, _ := r.AddCard(ctx, core.ColumnDiscuss)
	if ok, _ := r.ToggleTimer(ctx, core.ColumnDiscuss, card.ID); !ok {
		t.Fatal("expected timer to start")
	}
	started := sp.nextOf(t, core.KindTimerUpdated).Payload.(core.TimerUpdatedPayload)
	if !started.IsTimerRunning || started.Seconds != 0 {
		t.Errorf("expected a running timer at 0, got %+v", started)
	}

	clock.Advance(3400 * time.Millisecond)
	r.Tick(ctx)
	tick := sp.nextOf(t, core.KindTimerUpdated).Payload.(core.TimerUpdatedPayload)
	if tick.Seconds != 3 || !tick.IsTimerRunning {
		t.Errorf("expected 3s running, got %+v", tick)
	}

	// Missed ticks do not lose time.
	clock.Advance(7 * time.Second)
	r.Tick(ctx)
	tick = sp.nextOf(t, core.KindTimerUpdated).Payload.(core.TimerUpdatedPayload)
	if tick.Seconds != 10 {
		t.Errorf("expected 10s after a gap, got %d", tick.Seconds)
	}

	clock.Advance(500 * time.Millisecond)
	r.ToggleTimer(ctx, core.ColumnDiscuss, card.ID)
	stopped := sp.nextOf(t, core.KindTimerUpdated).Payload.(core.TimerUpdatedPayload)
	if stopped.IsTimerRunning || stopped.Seconds != 10 {
		t.Errorf("expected stopped at 10s, got %+v", stopped)
	}

	clock.Advance(5 * time.Second)
	r.Tick(ctx)
	sp.expectQuiet(t)

	v, _ := r.View(ctx)
	c, _, _ := v.Board.Card(card.ID)
	if c.Seconds != 10 || c.IsTimerRunning {
		t.Errorf("expected card frozen at 10s, got %ds running=%v", c.Seconds, c.IsTimerRunning)
	}
	if len(ticks) != 3 {
		t.Errorf("expected 3 tick observations, got %d", len(ticks))
	}
}

func TestReplica_RemoteStopEndsLocalStopwatch(t *testing.T) {
	hub := bus.NewHub("test", 0)
	sp := newSpy(t, hub)
	clock := newFakeClock()
	r := joined(t, hub, "alice", replica.WithClock(clock.Now))
	ctx := context.Background()

	card, _, _ := r.AddCard(ctx, core.ColumnDiscuss)
	r.ToggleTimer(ctx, core.ColumnDiscuss, card.ID)
	sp.nextOf(t, core.KindTimerUpdated)

	sp.send(t, "bob", core.TimerUpdatedPayload{Column: core.ColumnDiscuss, CardID: card.ID, Seconds: 1, IsTimerRunning: false})
	waitFor(t, r, "remote stop", func(v replica.View) bool {
		c, _, _ := v.Board.Card(card.ID)
		return !c.IsTimerRunning
	})

	clock.Advance(5 * time.Second)
	r.Tick(ctx)
	sp.expectQuiet(t)
}

func TestCountdown(t *testing.T) {
	start := time.UnixMilli(0)
	c := replica.NewCountdown(start, 2*time.Minute)

	if got := c.Format(start); got != "02:00" {
		t.Errorf("expected 02:00, got %s", got)
	}
	if got := c.Format(start.Add(61500 * time.Millisecond)); got != "00:58" {
		t.Errorf("expected 00:58, got %s", got)
	}
	if c.Expired(start.Add(time.Minute)) {
		t.Error("expected countdown still running after a minute")
	}
	if !c.Expired(start.Add(3 * time.Minute)) {
		t.Error("expected countdown expired after three minutes")
	}
	if got := c.Remaining(start.Add(time.Hour)); got != 0 {
		t.Errorf("expected zero remaining, got %s", got)
	}
}
