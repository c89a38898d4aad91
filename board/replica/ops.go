// ABOUTME: Local board operations: each applies to the store on the event loop, then publishes.
// ABOUTME: ok=false means the operation referred to nothing and changed nothing.
package replica

import (
	"context"

	"github.com/2389-research/retroboard/board/core"
)

// AddCard appends an empty card to column.
func (r *Replica) AddCard(ctx context.Context, column core.ColumnName) (core.Card, bool, error) {
	var (
		card core.Card
		ok   bool
	)
	err := r.do(ctx, func() {
		var p core.CardAddedPayload
		p, ok = r.store.AddCard(column)
		if !ok {
			return
		}
		card = p.Card
		r.saveCounter()
		r.changed()
		r.publish(p)
	})
	return card, ok, err
}

// UpdateText replaces a card's text.
func (r *Replica) UpdateText(ctx context.Context, column core.ColumnName, id, text string) (bool, error) {
	return r.apply(ctx, func() (core.Payload, bool) {
		return r.store.UpdateText(column, id, text)
	})
}

// Vote adds (increment) or withdraws one of the local user's votes on a card.
func (r *Replica) Vote(ctx context.Context, column core.ColumnName, id string, increment bool) (bool, error) {
	return r.apply(ctx, func() (core.Payload, bool) {
		return r.store.Vote(column, id, increment, r.username)
	})
}

// DeleteCard removes a card.
func (r *Replica) DeleteCard(ctx context.Context, column core.ColumnName, id string) (bool, error) {
	return r.apply(ctx, func() (core.Payload, bool) {
		p, ok := r.store.DeleteCard(column, id)
		if ok {
			delete(r.stopwatches, id)
		}
		return p, ok
	})
}

// MoveCard moves a card into to at atIndex; a negative index means the head.
func (r *Replica) MoveCard(ctx context.Context, id string, from, to core.ColumnName, atIndex int) (bool, error) {
	return r.apply(ctx, func() (core.Payload, bool) {
		return r.store.MoveCard(id, from, to, atIndex)
	})
}

// SortColumn reorders a column; a nil compare sorts by votes descending.
func (r *Replica) SortColumn(ctx context.Context, column core.ColumnName, compare func(a, b core.Card) int) (bool, error) {
	return r.apply(ctx, func() (core.Payload, bool) {
		return r.store.SortColumn(column, compare)
	})
}

// UpdateTimer sets a card's stopwatch. Setting it running makes this replica
// drive the stopwatch from now on.
func (r *Replica) UpdateTimer(ctx context.Context, column core.ColumnName, id string, seconds int, running bool) (bool, error) {
	return r.apply(ctx, func() (core.Payload, bool) {
		p, ok := r.store.UpdateTimer(column, id, seconds, running)
		if ok {
			r.track(id, p.Seconds, running)
		}
		return p, ok
	})
}

// ToggleTimer starts a stopped stopwatch or stops a running one.
func (r *Replica) ToggleTimer(ctx context.Context, column core.ColumnName, id string) (bool, error) {
	return r.apply(ctx, func() (core.Payload, bool) {
		st := r.store.State()
		card, col, found := st.Cards.Card(id)
		if !found {
			return nil, false
		}
		seconds := card.Seconds
		running := !card.IsTimerRunning
		if !running {
			if sw, driving := r.stopwatches[id]; driving {
				seconds = sw.elapsed(r.now())
			}
		}
		p, ok := r.store.UpdateTimer(col, id, seconds, running)
		if ok {
			r.track(id, p.Seconds, running)
		}
		return p, ok
	})
}

// apply runs a store mutation on the event loop and publishes its payload.
func (r *Replica) apply(ctx context.Context, mutate func() (core.Payload, bool)) (bool, error) {
	var ok bool
	err := r.do(ctx, func() {
		var p core.Payload
		p, ok = mutate()
		if !ok {
			return
		}
		r.changed()
		r.publish(p)
	})
	return ok, err
}
