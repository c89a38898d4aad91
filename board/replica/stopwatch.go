// ABOUTME: Scheduler tick for card stopwatches and the session countdown.
// ABOUTME: Elapsed time is recomputed from each start instant so missed ticks never drift the count.
package replica

import (
	"context"
	"fmt"
	"time"
)

// stopwatch is a running card timer this replica started.
type stopwatch struct {
	start time.Time
	base  int
}

func (s stopwatch) elapsed(now time.Time) int {
	d := now.Sub(s.start)
	if d < 0 {
		d = 0
	}
	return s.base + int(d/time.Second)
}

// track starts or stops driving a card's stopwatch.
func (r *Replica) track(id string, seconds int, running bool) {
	if !running {
		delete(r.stopwatches, id)
		return
	}
	if _, ok := r.stopwatches[id]; ok {
		return
	}
	r.stopwatches[id] = stopwatch{start: r.now(), base: seconds}
}

func (r *Replica) schedule() {
	ticker := time.NewTicker(r.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.enqueue(func() { r.tick(r.now()) })
		case <-r.quit:
			return
		}
	}
}

// Tick advances every stopwatch this replica drives to now and runs the
// tick observers. The scheduler calls it once per interval.
func (r *Replica) Tick(ctx context.Context) error {
	return r.do(ctx, func() { r.tick(r.now()) })
}

func (r *Replica) tick(now time.Time) {
	updated := false
	st := r.store.State()
	for id, sw := range r.stopwatches {
		card, col, ok := st.Cards.Card(id)
		if !ok || !card.IsTimerRunning {
			delete(r.stopwatches, id)
			continue
		}
		seconds := sw.elapsed(now)
		if seconds == card.Seconds {
			continue
		}
		p, ok := r.store.UpdateTimer(col, id, seconds, true)
		if !ok {
			continue
		}
		updated = true
		r.publish(p)
	}
	if updated {
		r.changed()
	}
	for _, fn := range r.onTick {
		fn(now)
	}
}

// stopAllStopwatches freezes every stopwatch this replica drives at its
// current value.
func (r *Replica) stopAllStopwatches() {
	if len(r.stopwatches) == 0 {
		return
	}
	now := r.now()
	st := r.store.State()
	for id, sw := range r.stopwatches {
		delete(r.stopwatches, id)
		_, col, ok := st.Cards.Card(id)
		if !ok {
			continue
		}
		if p, ok := r.store.UpdateTimer(col, id, sw.elapsed(now), false); ok {
			r.publish(p)
		}
	}
	r.changed()
}

// Countdown is the local, unreplicated session timer.
type Countdown struct {
	Start  time.Time
	Length time.Duration
}

// NewCountdown starts a countdown of length at now.
func NewCountdown(now time.Time, length time.Duration) Countdown {
	return Countdown{Start: now, Length: length}
}

// Remaining is the time left at now, never negative.
func (c Countdown) Remaining(now time.Time) time.Duration {
	left := c.Length - now.Sub(c.Start)
	if left < 0 {
		return 0
	}
	return left.Truncate(time.Second)
}

// Expired reports whether the countdown has run out at now.
func (c Countdown) Expired(now time.Time) bool {
	return c.Length > 0 && c.Remaining(now) == 0
}

// Format renders the remaining time as mm:ss.
func (c Countdown) Format(now time.Time) string {
	left := int(c.Remaining(now) / time.Second)
	return fmt.Sprintf("%02d:%02d", left/60, left%60)
}
