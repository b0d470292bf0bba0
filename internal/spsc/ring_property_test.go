package spsc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/e7canasta/biosignal-stream/internal/spsc"
)

// TestProperty_DropOldest checks that for any capacity and any
// interleaving of pushes and pops, every PopAll returns exactly the
// unread suffix of the push sequence: the last min(unread, C) samples,
// in push order.
func TestProperty_DropOldest(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 64).Draw(rt, "capacity")
		r := spsc.New(capacity)
		c := uint64(r.Cap())

		pushed := uint64(0)   // total samples pushed, sample i has T=V=float64(i)
		popped := uint64(0)   // index of the next sample the consumer expects
		returned := uint64(0) // total samples handed back by PopAll

		numOps := rapid.IntRange(1, 200).Draw(rt, "numOps")
		for op := 0; op < numOps; op++ {
			if rapid.Bool().Draw(rt, "push") {
				n := rapid.IntRange(1, 2*capacity+1).Draw(rt, "burst")
				for i := 0; i < n; i++ {
					r.Push(float64(pushed), float64(pushed))
					pushed++
				}
				assert.LessOrEqual(rt, r.Len(), r.Cap(), "unread span must stay bounded")
				continue
			}

			got := r.PopAll()

			// Expected window: unread samples, clamped to capacity.
			lo := popped
			if pushed > c && pushed-c > lo {
				lo = pushed - c
			}
			require.Len(rt, got, int(pushed-lo), "PopAll size mismatch (pushed=%d popped=%d)", pushed, popped)
			for i, s := range got {
				want := float64(lo + uint64(i))
				assert.Equal(rt, want, s.T, "timestamp at offset %d", i)
				assert.Equal(rt, want, s.V, "value at offset %d", i)
			}
			returned += uint64(len(got))
			popped = pushed
		}

		// Lifetime accounting: everything pushed was either returned or
		// counted as dropped.
		returned += uint64(len(r.PopAll()))
		assert.Equal(rt, pushed, returned+r.Drops(), "returned + dropped must equal pushed")
	})
}

// TestProperty_PopAllIdempotentWhenEmpty checks that draining twice
// never produces data twice.
func TestProperty_PopAllIdempotentWhenEmpty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 32).Draw(rt, "capacity")
		n := rapid.IntRange(0, 100).Draw(rt, "pushes")

		r := spsc.New(capacity)
		for i := 0; i < n; i++ {
			r.Push(float64(i), float64(i))
		}

		first := r.PopAll()
		second := r.PopAll()

		if n == 0 {
			assert.Nil(rt, first, "empty ring must return nil")
		} else {
			require.NotEmpty(rt, first, "non-empty ring must return samples")
		}
		assert.Nil(rt, second, "second drain must be empty")
	})
}
