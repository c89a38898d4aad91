// ABOUTME: Replica runs one participant's board: a single event loop serializing local edits, remote merges and ticks.
// ABOUTME: After every change it notifies the observer, mirrors state to persistence and publishes an envelope.
package replica

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/2389-research/retroboard/board/bus"
	"github.com/2389-research/retroboard/board/core"
	"github.com/2389-research/retroboard/board/store"
)

var (
	// ErrClosed is returned when calling into a replica after Close.
	ErrClosed = errors.New("replica closed")

	// ErrAlreadyJoined is returned by Join and Resume outside the Unjoined phase.
	ErrAlreadyJoined = errors.New("already joined")

	// ErrNoStoredUsername is returned by Resume when no username was persisted.
	ErrNoStoredUsername = errors.New("no stored username")
)

// Persistence receives a copy of the replica's state after every change.
type Persistence interface {
	SaveState(ctx context.Context, state *core.State) error
	SaveUsername(ctx context.Context, name string) error
	SaveCardCounter(ctx context.Context, next int) error
}

// View is what the presentation layer renders.
type View struct {
	Board       core.Board
	ActiveUsers []string
	Username    string
	Phase       Phase
}

// Observer is called with the latest view. Calls happen off the event loop
// and intermediate views may be skipped when the observer is slow.
type Observer func(View)

// Option configures a Replica.
type Option func(*Replica)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Replica) { r.now = now }
}

// WithObserver registers the view observer.
func WithObserver(o Observer) Option {
	return func(r *Replica) { r.observer = o }
}

// WithPersistence mirrors state into p after every change.
func WithPersistence(p Persistence) Option {
	return func(r *Replica) { r.persist = p }
}

// WithSyncResponder makes a joined replica answer empty FULL_STATE_SYNC
// requests by publishing its whole state. The answer is broadcast, not sent to
// the requester alone: every peer receives it, and every joined peer that
// enabled this option answers the same request. Peers replace their whole
// board with each answer they receive, so the last answer to arrive wins
// everywhere.
func WithSyncResponder() Option {
	return func(r *Replica) { r.answerSync = true }
}

// WithTickInterval sets the scheduler period. Zero or less disables the
// scheduler; Tick can still be called directly.
func WithTickInterval(d time.Duration) Option {
	return func(r *Replica) { r.tickEvery = d }
}

// WithTickObserver is called on the event loop after every scheduler tick.
func WithTickObserver(fn func(time.Time)) Option {
	return func(r *Replica) { r.onTick = append(r.onTick, fn) }
}

// WithVerbose logs every merged envelope.
func WithVerbose(v bool) Option {
	return func(r *Replica) { r.verbose = v }
}

// Replica is one participant. All exported methods are safe for concurrent
// use; they hand work to the event loop and wait for it.
type Replica struct {
	endpoint   bus.Endpoint
	persist    Persistence
	observer   Observer
	now        func() time.Time
	answerSync bool
	tickEvery  time.Duration
	onTick     []func(time.Time)
	verbose    bool

	tasks     chan func()
	quit      chan struct{}
	stopped   chan struct{}
	notify    chan View
	closeOnce sync.Once

	// Owned by the event loop.
	store       *core.Store
	phase       Phase
	username    string
	storedName  string
	sub         bus.Subscription
	stopwatches map[string]stopwatch
}

// New starts a replica publishing on endpoint, seeded from snap (nil starts empty).
func New(endpoint bus.Endpoint, snap *store.Snapshot, opts ...Option) *Replica {
	r := &Replica{
		endpoint:    endpoint,
		now:         time.Now,
		tickEvery:   time.Second,
		tasks:       make(chan func(), 256),
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
		notify:      make(chan View, 1),
		stopwatches: map[string]stopwatch{},
	}
	for _, opt := range opts {
		opt(r)
	}

	if snap == nil {
		snap = &store.Snapshot{}
	}
	r.store = core.NewStore(snap.State, snap.NextCardNumber, r.now)
	r.storedName = snap.Username

	r.publishView()
	go r.run()
	go r.deliverViews()
	if r.tickEvery > 0 {
		go r.schedule()
	}
	return r
}

func (r *Replica) run() {
	defer close(r.stopped)
	for {
		select {
		case task := <-r.tasks:
			task()
		case <-r.quit:
			return
		}
	}
}

// do runs fn on the event loop and waits for it to finish.
func (r *Replica) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		fn()
		close(done)
	}
	select {
	case r.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.quit:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrClosed
	}
}

// enqueue hands fn to the event loop without waiting for it.
func (r *Replica) enqueue(fn func()) {
	select {
	case r.tasks <- fn:
	case <-r.quit:
	}
}

// View returns the current state.
func (r *Replica) View(ctx context.Context) (View, error) {
	var v View
	err := r.do(ctx, func() { v = r.view() })
	return v, err
}

func (r *Replica) view() View {
	st := r.store.State()
	return View{Board: st.Cards, ActiveUsers: st.ActiveUsers, Username: r.username, Phase: r.phase}
}

// publishView hands the latest view to the observer goroutine, replacing
// any view it has not picked up yet.
func (r *Replica) publishView() {
	if r.observer == nil {
		return
	}
	v := r.view()
	for {
		select {
		case r.notify <- v:
			return
		default:
			select {
			case <-r.notify:
			default:
			}
		}
	}
}

func (r *Replica) deliverViews() {
	for {
		select {
		case v := <-r.notify:
			r.observer(v)
		case <-r.stopped:
			return
		}
	}
}

// changed runs after every successful local mutation or merge.
func (r *Replica) changed() {
	r.publishView()
	if r.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.persist.SaveState(ctx, r.store.State()); err != nil {
		log.Printf("component=board.replica action=persist_failed user=%s err=%v", r.username, err)
	}
}

func (r *Replica) saveUsername(name string) {
	if r.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.persist.SaveUsername(ctx, name); err != nil {
		log.Printf("component=board.replica action=persist_username_failed err=%v", err)
	}
}

func (r *Replica) saveCounter() {
	if r.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.persist.SaveCardCounter(ctx, r.store.NextCardNumber()); err != nil {
		log.Printf("component=board.replica action=persist_counter_failed err=%v", err)
	}
}

// publish broadcasts a payload while the replica is subscribed. Outside a
// session local edits stay local.
func (r *Replica) publish(p core.Payload) {
	if r.sub == nil {
		return
	}
	frame, err := core.Encode(core.NewEnvelope(r.username, r.now(), p))
	if err != nil {
		log.Printf("component=board.replica action=encode_failed kind=%s err=%v", p.Kind(), err)
		return
	}
	if err := r.endpoint.Publish(frame); err != nil {
		log.Printf("component=board.replica action=publish_failed kind=%s err=%v", p.Kind(), err)
	}
}

// receive is the bus handler; it runs on the subscription's goroutine.
func (r *Replica) receive(frame []byte) {
	r.enqueue(func() { r.merge(frame) })
}

func (r *Replica) merge(frame []byte) {
	if r.sub == nil {
		return
	}
	env, err := core.Decode(frame)
	if err != nil {
		log.Printf("component=board.replica action=drop reason=malformed user=%s err=%v", r.username, err)
		return
	}
	if env.OriginatingUser == r.username {
		return
	}
	if req, ok := env.Payload.(core.FullStateSyncPayload); ok && req.IsRequest() {
		if r.answerSync && r.phase == PhaseJoined {
			r.publish(core.NewFullStateSync(r.store.State()))
		}
		return
	}

	changed := r.store.Merge(env)
	if r.verbose {
		log.Printf("component=board.replica action=merge user=%s kind=%s from=%s changed=%v",
			r.username, env.Kind, env.OriginatingUser, changed)
	}
	if changed {
		r.changed()
	}
}

// Close leaves the session if joined, keeping the stored username so the
// next start can resume, and stops the event loop.
func (r *Replica) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := r.do(ctx, func() { r.leave(false) })
	if errors.Is(err, ErrClosed) {
		err = nil
	}
	r.closeOnce.Do(func() { close(r.quit) })
	<-r.stopped
	return err
}
