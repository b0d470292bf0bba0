// Package pace provides fixed-period scheduling with an absolute,
// monotonically advancing deadline.
//
// Advancing the deadline by exactly one period per tick (instead of
// recomputing "now + period" each time) keeps the long-run rate locked
// to the target even when individual wake-ups jitter by a scheduling
// quantum. This is the anti-drift discipline both capture loops rely on.
package pace

import (
	"context"
	"time"
)

// maxSleep bounds each sleep slice so a pending cancellation is
// observed within well under one sampling period.
const maxSleep = 500 * time.Microsecond

// Pacer schedules iterations at a fixed period. Not safe for concurrent
// use - each loop owns its own Pacer.
type Pacer struct {
	period time.Duration
	next   time.Time
}

// New creates a pacer for the given period. Periods below 1µs are
// clamped to 1µs.
func New(period time.Duration) *Pacer {
	if period < time.Microsecond {
		period = time.Microsecond
	}
	return &Pacer{period: period}
}

// NewRate creates a pacer targeting rate iterations per second.
func NewRate(rate float64) *Pacer {
	if rate <= 0 {
		rate = 1
	}
	return New(time.Duration(float64(time.Second) / rate))
}

// Period returns the configured period.
func (p *Pacer) Period() time.Duration {
	return p.period
}

// Wait blocks until the next deadline passes, then advances the
// deadline by exactly one period and returns true. It returns false as
// soon as ctx is cancelled, within one sleep slice.
//
// When the caller has fallen behind (the deadline is already in the
// past), Wait returns immediately; successive calls then burn down the
// backlog one period at a time, so the long-run average rate converges
// to the target.
func (p *Pacer) Wait(ctx context.Context) bool {
	if p.next.IsZero() {
		p.next = time.Now()
	}
	for {
		if ctx.Err() != nil {
			return false
		}
		now := time.Now()
		if !now.Before(p.next) {
			p.next = p.next.Add(p.period)
			return true
		}

		d := p.next.Sub(now)
		if d > maxSleep {
			d = maxSleep
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}
