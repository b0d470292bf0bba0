// Package spsc implements a lock-free single-producer single-consumer
// ring buffer for timestamped scalar samples with overwrite-on-full
// (drop-oldest) semantics.
//
// The ring is INTERNAL - clients consume it through the SensorStream API
// in the parent package.
package spsc

import (
	"math"
	"sync/atomic"
)

// Sample is a single timestamped scalar reading.
//
// T is seconds since an arbitrary monotonic epoch, V is the calibrated
// physical value (e.g. microsiemens for GSR). Samples are immutable once
// pushed.
type Sample struct {
	T float64
	V float64
}

// slot holds one sample as atomic float bits plus a sequence tag.
//
// The tag stores index+1 of the sample currently published in the slot,
// or 0 while the producer is rewriting it. The consumer validates the
// tag after reading the data, so a producer that laps the consumer can
// never hand it a torn sample - the stale entry is detected and
// discarded instead.
type slot struct {
	seq atomic.Uint64
	t   atomic.Uint64
	v   atomic.Uint64
}

// Ring is a fixed-capacity SPSC ring buffer holding the most recent
// samples.
//
// Synchronization model (two-counter hand-off):
//   - head is the next write position, advanced only by the producer.
//   - tail is the next read position, advanced by the consumer on
//     PopAll and by the producer when the unread span would exceed
//     capacity (the drop-oldest rule).
//   - Both counters are unbounded uint64 values; slot indexes are
//     derived with a power-of-two mask. They never wrap in practice.
//
// The atomic stores give the release/acquire ordering the hand-off
// needs: a consumer that observes an updated head also observes every
// published slot below it, and a producer that observes an updated tail
// knows the consumer has vacated those slots.
//
// Invariant: head − tail ≤ capacity after every Push. Exceeding the
// span is not an error - the producer advances tail, discarding the
// oldest unread samples (recency over completeness).
//
// Contract: exactly one producer goroutine calls Push, exactly one
// consumer goroutine calls PopAll. Neither ever blocks.
//
// head and tail live on separate cache lines so the producer and
// consumer never contend on the same line.
type Ring struct {
	_    [64]byte
	head atomic.Uint64
	_    [64]byte
	tail atomic.Uint64
	_    [64]byte

	mask uint64
	cap  uint64
	buf  []slot

	drops atomic.Uint64
}

// New creates a ring with at least the requested capacity, rounded up
// to the next power of two for index masking. Capacities below 1 are
// clamped to 1.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	c := nextPow2(uint64(capacity))
	return &Ring{
		mask: c - 1,
		cap:  c,
		buf:  make([]slot, c),
	}
}

// Push writes a sample at the head slot and advances head. When the
// unread span would exceed capacity, tail is advanced to head − C,
// discarding the oldest unread samples. Producer-only. O(1), never
// blocks, never fails.
func (r *Ring) Push(t, v float64) {
	h := r.head.Load()
	s := &r.buf[h&r.mask]

	// Invalidate, write, publish. A concurrent PopAll that catches the
	// slot mid-rewrite sees a tag other than h+1 and discards the entry.
	s.seq.Store(0)
	s.t.Store(math.Float64bits(t))
	s.v.Store(math.Float64bits(v))
	s.seq.Store(h + 1)

	r.head.Store(h + 1)

	// Drop-oldest: if the consumer fell behind, vacate the overwritten
	// span so head − tail ≤ cap holds again.
	if tl := r.tail.Load(); h+1-tl > r.cap {
		r.drops.Add(h + 1 - r.cap - tl)
		r.tail.Store(h + 1 - r.cap)
	}
}

// PopAll drains every unread sample between tail and head and returns
// them in push order. Returns nil when nothing is new. Consumer-only.
// O(k) in the number of returned samples, never blocks.
//
// Successive calls return disjoint, contiguous suffixes of the push
// sequence: no duplication, no reordering, no torn samples. Entries the
// producer overwrote while the copy was in flight count as dropped.
func (r *Ring) PopAll() []Sample {
	tl := r.tail.Load()
	h := r.head.Load()
	if h == tl {
		return nil
	}

	out := make([]Sample, 0, h-tl)
	for i := tl; i < h; i++ {
		s := &r.buf[i&r.mask]
		t := math.Float64frombits(s.t.Load())
		v := math.Float64frombits(s.v.Load())
		if s.seq.Load() != i+1 {
			// The producer lapped us and rewrote this slot. Overwrites
			// happen in index order, so everything collected before this
			// point is stale too.
			out = out[:0]
			continue
		}
		out = append(out, Sample{T: t, V: v})
	}

	r.tail.Store(h)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Len returns the current number of unread samples. Diagnostic only -
// the value may be stale by the time the caller inspects it.
func (r *Ring) Len() int {
	tl := r.tail.Load()
	h := r.head.Load()
	if h < tl {
		return 0
	}
	n := h - tl
	if n > r.cap {
		n = r.cap
	}
	return int(n)
}

// Cap returns the fixed capacity (power of two).
func (r *Ring) Cap() int {
	return int(r.cap)
}

// Drops returns the lifetime count of samples discarded by the
// drop-oldest rule.
func (r *Ring) Drops() uint64 {
	return r.drops.Load()
}

func nextPow2(v uint64) uint64 {
	p := uint64(1)
	for p < v {
		p <<= 1
	}
	return p
}
