package biostream

import "context"

// SampleSource yields one scalar reading per call. It is invoked once
// per sampling period by the stream's sampling loop.
//
// Implementations must guarantee:
//   - AcquireSample honors ctx cancellation and deadlines, so a
//     stalled device can never block shutdown.
//   - Timestamps are non-decreasing across successive calls (seconds
//     on a monotonic clock of the source's choosing).
//   - A returned error means "no sample this period"; the loop skips
//     the period and calls again on the next one.
//
// AcquireSample is only ever called from a single goroutine at a time.
type SampleSource interface {
	AcquireSample(ctx context.Context) (Sample, error)
}

// FrameSource yields one full video frame per call, invoked on a
// best-effort cadence by the stream's frame loop.
//
// Implementations must guarantee:
//   - Dimensions is fixed for the lifetime of the source; every frame
//     is exactly width·height·3 bytes of row-major interleaved RGB.
//   - AcquireFrame honors ctx cancellation.
//   - The returned slice may be reused by the source across calls; the
//     caller copies it out before the next AcquireFrame.
//   - A returned error means "no update this cycle"; the previously
//     published frame stays visible.
type FrameSource interface {
	AcquireFrame(ctx context.Context) ([]byte, error)
	Dimensions() (width, height int)
}

// Connector is optionally implemented by sources that require a device
// handshake. SensorStream.Connect delegates to every source that
// implements it, and Close tears the connections down again.
//
// Connect must be idempotent per target and fail fast on an
// unreachable or invalid target. DeviceInfo is free-form and for
// diagnostics only.
type Connector interface {
	Connect(target string) error
	Close() error
	DeviceInfo() string
}
