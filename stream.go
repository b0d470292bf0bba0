package biostream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/biosignal-stream/internal/framebuf"
	"github.com/e7canasta/biosignal-stream/internal/pace"
	"github.com/e7canasta/biosignal-stream/internal/ratestats"
	"github.com/e7canasta/biosignal-stream/internal/spsc"
)

// SensorStream owns the two capture loops and the buffers between the
// device sources and the polling consumer.
//
// Lifecycle: Disconnected → Connect → Connected → Start → Running →
// Stop → Connected → ... → Close → Disconnected. Start and Stop are
// idempotent; Stop joins both loops before returning, so no goroutine
// ever outlives the running state.
//
// Ownership: the ring and the frame buffer belong exclusively to the
// stream. The sampling loop holds the only write handle, the caller
// holds the only read handle (PopSamples / LatestFrame). Exactly one
// consumer goroutine may call PopSamples.
type SensorStream struct {
	cfg Config
	id  string

	sampleSrc SampleSource
	frameSrc  FrameSource // nil for a scalar-only stream

	ring   *spsc.Ring
	frames *framebuf.Buffer // nil when frameSrc is nil

	// Lifecycle, guarded by mu.
	mu        sync.Mutex
	connected bool
	target    string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   time.Time

	// Telemetry, reset on Start.
	sampleCount  atomic.Uint64
	sampleErrors atomic.Uint64
	frameCount   atomic.Uint64
	frameErrors  atomic.Uint64
}

// New creates a stream over the given sources with fail-fast
// validation. frameSrc may be nil for a scalar-only stream; sampleSrc
// is required.
func New(cfg Config, sampleSrc SampleSource, frameSrc FrameSource) (*SensorStream, error) {
	cfg.withDefaults()

	if sampleSrc == nil {
		return nil, fmt.Errorf("biostream: sample source is required")
	}
	if cfg.SampleRate < 0.1 || cfg.SampleRate > 10000 {
		return nil, fmt.Errorf("biostream: invalid sample rate %.2f Hz (must be 0.1-10000)", cfg.SampleRate)
	}
	if cfg.FrameRate < 0.1 || cfg.FrameRate > 240 {
		return nil, fmt.Errorf("biostream: invalid frame rate %.2f Hz (must be 0.1-240)", cfg.FrameRate)
	}
	if cfg.RingCapacity < 0 {
		return nil, fmt.Errorf("biostream: invalid ring capacity %d", cfg.RingCapacity)
	}
	if cfg.StreamID == "" {
		cfg.StreamID = uuid.New().String()
	}

	s := &SensorStream{
		cfg:       cfg,
		id:        cfg.StreamID,
		sampleSrc: sampleSrc,
		frameSrc:  frameSrc,
		ring:      spsc.New(cfg.RingCapacity),
	}

	if frameSrc != nil {
		w, h := frameSrc.Dimensions()
		buf, err := framebuf.New(w, h)
		if err != nil {
			return nil, fmt.Errorf("biostream: frame source dimensions: %w", err)
		}
		s.frames = buf
	}

	slog.Info("biostream: stream created",
		"stream_id", s.id,
		"sample_rate", cfg.SampleRate,
		"ring_capacity", s.ring.Cap(),
		"frame_rate", cfg.FrameRate,
		"has_frames", frameSrc != nil,
	)
	return s, nil
}

// Connect performs the device handshake for every source that
// implements Connector and moves the stream to Connected. A failure
// leaves the stream Disconnected with all partial connections rolled
// back; the returned error is a *ConnectionError.
//
// No-op when already connected.
func (s *SensorStream) Connect(target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		slog.Debug("biostream: already connected", "stream_id", s.id, "target", s.target)
		return nil
	}
	if target == "" {
		return &ConnectionError{Target: target, Err: fmt.Errorf("empty target")}
	}

	var opened []Connector
	for _, src := range []any{s.sampleSrc, s.frameSrc} {
		c, ok := src.(Connector)
		if !ok {
			continue
		}
		if err := c.Connect(target); err != nil {
			for _, o := range opened {
				if cerr := o.Close(); cerr != nil {
					slog.Warn("biostream: rollback close failed", "stream_id", s.id, "error", cerr)
				}
			}
			return &ConnectionError{Target: target, Err: err}
		}
		opened = append(opened, c)
	}

	s.connected = true
	s.target = target
	slog.Info("biostream: connected", "stream_id", s.id, "target", target)
	return nil
}

// Start spawns the sampling loop and, when a frame source is present,
// the frame loop, and moves the stream to Running.
//
// Returns ErrNotConnected from the Disconnected state. No-op when
// already Running - repeated Start never spawns extra goroutines.
func (s *SensorStream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		slog.Debug("biostream: already running", "stream_id", s.id)
		return nil
	}
	if !s.connected {
		return ErrNotConnected
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = time.Now()
	s.sampleCount.Store(0)
	s.sampleErrors.Store(0)
	s.frameCount.Store(0)
	s.frameErrors.Store(0)

	s.wg.Add(1)
	go s.runSampleLoop(loopCtx)

	if s.frameSrc != nil {
		s.wg.Add(1)
		go s.runFrameLoop(loopCtx)
	}

	slog.Info("biostream: streaming started",
		"stream_id", s.id,
		"target", s.target,
		"sample_rate", s.cfg.SampleRate,
		"frame_rate", s.cfg.FrameRate,
	)
	return nil
}

// Stop signals both loops to exit and blocks until they have fully
// joined (bounded by one scheduling quantum per loop) and moves the
// stream back to Connected. Idempotent - Stop on a non-running stream
// is a no-op.
func (s *SensorStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		slog.Debug("biostream: not running, nothing to stop", "stream_id", s.id)
		return nil
	}

	s.cancel()
	s.wg.Wait()
	s.cancel = nil

	slog.Info("biostream: streaming stopped",
		"stream_id", s.id,
		"uptime", time.Since(s.started),
		"samples", s.sampleCount.Load(),
		"samples_dropped", s.ring.Drops(),
		"sample_errors", s.sampleErrors.Load(),
		"frames", s.frameCount.Load(),
		"frame_errors", s.frameErrors.Load(),
	)
	return nil
}

// Close stops the stream if running, closes every Connector source and
// moves the stream to its terminal Disconnected state.
func (s *SensorStream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}

	var firstErr error
	for _, src := range []any{s.sampleSrc, s.frameSrc} {
		if c, ok := src.(Connector); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	s.connected = false
	slog.Info("biostream: closed", "stream_id", s.id)
	return firstErr
}

// runSampleLoop produces one sample per period at the configured rate,
// pushing into the ring until the stream is stopped.
//
// The pacer advances an absolute deadline by exactly one period per
// iteration, so the long-run rate converges to the target regardless
// of per-iteration jitter. A failed acquisition skips that period and
// is counted - it never stops the loop.
func (s *SensorStream) runSampleLoop(ctx context.Context) {
	defer s.wg.Done()

	p := pace.NewRate(s.cfg.SampleRate)
	for p.Wait(ctx) {
		acqCtx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
		sample, err := s.sampleSrc.AcquireSample(acqCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.sampleErrors.Add(1)
			slog.Debug("biostream: sample acquisition failed, skipping period",
				"stream_id", s.id,
				"error", err,
			)
			continue
		}

		s.ring.Push(sample.T, sample.V)
		s.sampleCount.Add(1)
	}
}

// runFrameLoop acquires frames on a best-effort cadence and publishes
// them into the double buffer. The acquisition runs outside any lock;
// only the buffer swap is guarded. A failed acquisition leaves the
// previous frame visible.
func (s *SensorStream) runFrameLoop(ctx context.Context) {
	defer s.wg.Done()

	p := pace.NewRate(s.cfg.FrameRate)
	for p.Wait(ctx) {
		data, err := s.frameSrc.AcquireFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.frameErrors.Add(1)
			slog.Debug("biostream: frame acquisition failed, keeping previous frame",
				"stream_id", s.id,
				"error", err,
			)
			continue
		}

		if err := s.frames.Write(data); err != nil {
			s.frameErrors.Add(1)
			slog.Warn("biostream: rejected frame", "stream_id", s.id, "error", err)
			continue
		}
		s.frameCount.Add(1)
	}
}

// PopSamples drains and returns every sample produced since the last
// call, in producer order. Non-blocking; returns nil when nothing is
// new. Valid in any state - a stream that is not Running simply yields
// nothing new.
//
// Only one consumer goroutine may call PopSamples.
func (s *SensorStream) PopSamples() []Sample {
	return s.ring.PopAll()
}

// LatestFrame returns a copy of the most recent frame. Valid in any
// state; before the first frame the data is all zeroes with Seq 0.
func (s *SensorStream) LatestFrame() FrameSnapshot {
	if s.frames == nil {
		return FrameSnapshot{}
	}
	w, h := s.frames.Dimensions()
	return FrameSnapshot{
		Width:      w,
		Height:     h,
		Data:       s.frames.Snapshot(nil),
		Seq:        s.frames.Seq(),
		CapturedAt: s.frames.UpdatedAt(),
	}
}

// ViewFrame invokes fn with a borrowed view of the most recent frame
// while the buffer lock is held. fn must be short and must not retain
// the slice past its return. No-op when the stream has no frame
// source.
func (s *SensorStream) ViewFrame(fn func(width, height int, data []byte)) {
	if s.frames == nil {
		return
	}
	w, h := s.frames.Dimensions()
	s.frames.View(func(data []byte) {
		fn(w, h, data)
	})
}

// IsConnected reports whether the stream is in the Connected (or
// Running) state.
func (s *SensorStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// IsRunning reports whether the capture loops are live.
func (s *SensorStream) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// DeviceInfo returns a free-form diagnostic description of the
// underlying sources.
func (s *SensorStream) DeviceInfo() string {
	info := "unknown device"
	if c, ok := s.sampleSrc.(Connector); ok {
		info = c.DeviceInfo()
	}
	if c, ok := s.frameSrc.(Connector); ok {
		info += " + " + c.DeviceInfo()
	}
	return info
}

// Stats returns a telemetry snapshot. Thread-safe; counters are read
// atomically.
func (s *SensorStream) Stats() StreamStats {
	s.mu.Lock()
	connected := s.connected
	running := s.cancel != nil
	started := s.started
	s.mu.Unlock()

	st := StreamStats{
		SampleCount:      s.sampleCount.Load(),
		SamplesDropped:   s.ring.Drops(),
		SampleErrors:     s.sampleErrors.Load(),
		SampleRateTarget: s.cfg.SampleRate,
		FrameCount:       s.frameCount.Load(),
		FrameErrors:      s.frameErrors.Load(),
		Connected:        connected,
		Running:          running,
	}

	if running && !started.IsZero() {
		st.Uptime = time.Since(started)
		if secs := st.Uptime.Seconds(); secs > 0 {
			st.SampleRateReal = float64(st.SampleCount) / secs
		}
	}
	if s.frames != nil {
		if at := s.frames.UpdatedAt(); !at.IsZero() {
			st.FrameLatencyMS = time.Since(at).Milliseconds()
		}
	}
	return st
}

// Warmup consumes samples for the given duration and reports rate
// statistics, failing when the measured rate is unstable. Call it
// right after Start, before trusting the data - and note that Warmup
// acts as the stream's single consumer while it runs.
func (s *SensorStream) Warmup(ctx context.Context, duration time.Duration) (*RateStats, error) {
	if !s.IsRunning() {
		return nil, fmt.Errorf("biostream: stream not running")
	}

	slog.Info("biostream: starting warmup", "stream_id", s.id, "duration", duration)

	warmupCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	start := time.Now()
	var timestamps []float64

	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-warmupCtx.Done():
			elapsed := time.Since(start)
			if len(timestamps) < 2 {
				return nil, fmt.Errorf(
					"biostream: not enough samples during warmup (got %d, need at least 2)",
					len(timestamps),
				)
			}
			stats := ratestats.Calculate(timestamps, elapsed)
			slog.Info("biostream: warmup complete",
				"stream_id", s.id,
				"samples", stats.SamplesReceived,
				"rate_mean", fmt.Sprintf("%.2f", stats.RateMean),
				"rate_stddev", fmt.Sprintf("%.2f", stats.RateStdDev),
				"stable", stats.IsStable,
			)
			if !stats.IsStable {
				return nil, fmt.Errorf(
					"biostream: warmup failed - sample rate unstable (mean=%.2f Hz, stddev=%.2f)",
					stats.RateMean, stats.RateStdDev,
				)
			}
			return stats, nil

		case <-poll.C:
			for _, smp := range s.PopSamples() {
				timestamps = append(timestamps, smp.T)
			}
		}
	}
}
