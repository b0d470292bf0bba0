package biostream

import (
	"time"

	"github.com/e7canasta/biosignal-stream/internal/spsc"
)

// Sample is re-exported from the internal ring package to avoid import
// cycles. T is seconds on the producer's monotonic clock, V the
// calibrated physical value (no unit conversion is performed here).
type Sample = spsc.Sample

// FrameSnapshot is a copy of the most recent video frame.
type FrameSnapshot struct {
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Data is Width×Height×3 bytes, row-major, interleaved RGB.
	// The slice is owned by the caller.
	Data []byte
	// Seq counts frames published since Start.
	Seq uint64
	// CapturedAt is when the frame was published, zero when no frame
	// has arrived yet.
	CapturedAt time.Time
}

// Default configuration values, matching the Shimmer GSR dock profile.
const (
	DefaultSampleRate     = 128.0
	DefaultRingCapacity   = 4096
	DefaultFrameRate      = 60.0
	DefaultAcquireTimeout = 250 * time.Millisecond
)

// Config tunes a SensorStream. The zero value selects the defaults
// above.
type Config struct {
	// SampleRate is the target scalar sampling rate in Hz (0.1-10000).
	SampleRate float64
	// RingCapacity is the sample ring capacity, rounded up to a power
	// of two. A consumer polling at 10 Hz at the default 128 Hz rate
	// uses ~13 slots per poll, so the default leaves ample slack.
	RingCapacity int
	// FrameRate is the best-effort frame loop cadence in Hz (0.1-240).
	FrameRate float64
	// AcquireTimeout bounds a single sample acquisition so a stalled
	// source cannot absorb the loop. The stop signal always cuts an
	// acquisition short regardless of this bound.
	AcquireTimeout time.Duration
	// StreamID identifies the stream in logs. A UUID is assigned when
	// empty.
	StreamID string
}

func (c *Config) withDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.RingCapacity == 0 {
		c.RingCapacity = DefaultRingCapacity
	}
	if c.FrameRate == 0 {
		c.FrameRate = DefaultFrameRate
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
}

// StreamStats is a point-in-time telemetry snapshot. Counters are
// maintained atomically during streaming and reset on Start.
type StreamStats struct {
	// SampleCount is the total number of samples pushed into the ring.
	SampleCount uint64
	// SamplesDropped is the number of samples discarded by the
	// drop-oldest rule (consumer fell behind).
	SamplesDropped uint64
	// SampleErrors counts skipped sampling periods (acquisition failed).
	SampleErrors uint64
	// SampleRateTarget is the configured rate in Hz.
	SampleRateTarget float64
	// SampleRateReal is the measured rate since Start in Hz.
	SampleRateReal float64
	// FrameCount is the total number of frames published.
	FrameCount uint64
	// FrameErrors counts skipped frame cycles (acquisition failed or
	// frame size mismatch).
	FrameErrors uint64
	// FrameLatencyMS is the time since the last published frame in
	// milliseconds, 0 when no frame has arrived.
	FrameLatencyMS int64
	// Uptime is the time since Start, zero when not running.
	Uptime time.Duration
	// Connected reports the lifecycle connection flag.
	Connected bool
	// Running reports whether the capture loops are live.
	Running bool
}
