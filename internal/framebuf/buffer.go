// Package framebuf provides a single-slot store for the most recent
// video frame, implemented as a double buffer.
//
// The producer fills a private back buffer and swaps it in under a
// short-held mutex, so the lock is never held for the duration of a
// potentially slow acquisition and readers always observe a complete,
// non-torn frame. Only the latest frame is ever meaningful for a live
// preview consumer, so a single slot (not a queue) is the right shape.
package framebuf

import (
	"fmt"
	"sync"
	"time"
)

// Buffer holds one width×height RGB frame (3 bytes per pixel,
// row-major, interleaved channels). The byte size is fixed at
// construction and never changes.
type Buffer struct {
	width  int
	height int

	mu        sync.Mutex
	front     []byte // visible to readers
	back      []byte // producer scratch, swapped in on Write
	seq       uint64
	updatedAt time.Time
}

// New creates a buffer for width×height RGB frames. Both frames start
// zeroed (black).
func New(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("framebuf: invalid dimensions %dx%d", width, height)
	}
	n := width * height * 3
	return &Buffer{
		width:  width,
		height: height,
		front:  make([]byte, n),
		back:   make([]byte, n),
	}, nil
}

// Dimensions returns the fixed frame width and height.
func (b *Buffer) Dimensions() (width, height int) {
	return b.width, b.height
}

// Size returns the fixed frame byte size (width · height · 3).
func (b *Buffer) Size() int {
	return b.width * b.height * 3
}

// Write publishes a new frame. The copy into the back buffer runs
// outside the lock (the back buffer is producer-owned); only the
// pointer swap happens under it. Producer-only.
//
// Frames of the wrong size are rejected - the previous frame stays
// visible, matching the "failed acquisition is no update" policy.
func (b *Buffer) Write(src []byte) error {
	if len(src) != len(b.back) {
		return fmt.Errorf("framebuf: frame size %d, want %d", len(src), len(b.back))
	}
	copy(b.back, src)

	b.mu.Lock()
	b.front, b.back = b.back, b.front
	b.seq++
	b.updatedAt = time.Now()
	b.mu.Unlock()
	return nil
}

// Snapshot copies the current frame into dst and returns it. dst is
// reused when large enough, otherwise a new slice is allocated. Safe
// for any goroutine.
func (b *Buffer) Snapshot(dst []byte) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cap(dst) < len(b.front) {
		dst = make([]byte, len(b.front))
	}
	dst = dst[:len(b.front)]
	copy(dst, b.front)
	return dst
}

// View invokes fn with the current frame while holding the lock. The
// slice is a borrowed view: fn must not retain or mutate it past its
// return. fn should be short - the producer's swap blocks until it
// finishes.
func (b *Buffer) View(fn func(data []byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.front)
}

// Seq returns the number of frames published so far.
func (b *Buffer) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// UpdatedAt returns the publish time of the current frame, or the zero
// time when nothing has been published yet.
func (b *Buffer) UpdatedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updatedAt
}
