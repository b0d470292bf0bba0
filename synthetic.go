package biostream

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// SyntheticGSRSource generates a realistic simulated GSR signal in
// microsiemens, for development and tests without a Shimmer dock. The
// signal is a slow baseline drift plus respiratory and cardiac
// components with additive noise, clamped positive.
//
// It implements both SampleSource and Connector; Connect fails for an
// empty target or the reserved target "FAIL" (kept for fault-injection
// in tests).
type SyntheticGSRSource struct {
	mu        sync.Mutex
	connected bool
	target    string
	epoch     time.Time
	phase     float64
	rng       uint32

	rate float64
}

// NewSyntheticGSRSource creates a generator tuned for the given sample
// rate in Hz (the phase step per sample depends on it). Rates <= 0
// fall back to the 128 Hz default.
func NewSyntheticGSRSource(rate float64) *SyntheticGSRSource {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &SyntheticGSRSource{
		rate: rate,
		rng:  0x12345678,
	}
}

// Connect simulates the dock handshake.
func (s *SyntheticGSRSource) Connect(target string) error {
	if target == "" || target == "FAIL" {
		return fmt.Errorf("no Shimmer device at %q", target)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.target = target
	s.epoch = time.Now()
	return nil
}

// Close drops the simulated connection.
func (s *SyntheticGSRSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// DeviceInfo implements Connector.
func (s *SyntheticGSRSource) DeviceInfo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return "not connected"
	}
	return fmt.Sprintf("Shimmer3 GSR+ (simulated) - port %s - %g Hz", s.target, s.rate)
}

// AcquireSample implements SampleSource. Timestamps are seconds since
// Connect on the monotonic clock; values are microsiemens.
func (s *SyntheticGSRSource) AcquireSample(_ context.Context) (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return Sample{}, fmt.Errorf("synthetic GSR source not connected")
	}

	t := time.Since(s.epoch).Seconds()

	baseline := 8.0 + 2.0*math.Sin(s.phase*0.1) // slow drift
	respiratory := 1.5 * math.Sin(s.phase*0.5)  // breathing
	cardiac := 0.5 * math.Sin(s.phase*2.0)      // heart rate

	s.rng = 1664525*s.rng + 1013904223
	noise := (float64(s.rng>>16)/32768.0 - 1.0) * 0.2

	v := baseline + respiratory + cardiac + noise
	if v < 0.1 {
		v = 0.1
	}

	s.phase += 2 * math.Pi / s.rate
	if s.phase > 2*math.Pi {
		s.phase -= 2 * math.Pi
	}

	return Sample{T: t, V: v}, nil
}

// SyntheticFrameSource generates a moving horizontal gradient,
// standing in for a webcam when no camera (or GStreamer runtime) is
// present.
type SyntheticFrameSource struct {
	width  int
	height int
	epoch  time.Time
	buf    []byte
}

// NewSyntheticFrameSource creates a generator for width×height RGB
// frames. Non-positive dimensions fall back to 640×480.
func NewSyntheticFrameSource(width, height int) *SyntheticFrameSource {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	return &SyntheticFrameSource{
		width:  width,
		height: height,
		epoch:  time.Now(),
		buf:    make([]byte, width*height*3),
	}
}

// Dimensions implements FrameSource.
func (s *SyntheticFrameSource) Dimensions() (width, height int) {
	return s.width, s.height
}

// AcquireFrame implements FrameSource. The gradient scrolls at 60
// pixels per second. The returned slice is reused across calls.
func (s *SyntheticFrameSource) AcquireFrame(_ context.Context) ([]byte, error) {
	elapsed := time.Since(s.epoch).Seconds()
	shift := int(math.Mod(elapsed*60.0, float64(s.width)))

	for y := 0; y < s.height; y++ {
		row := y * s.width * 3
		for x := 0; x < s.width; x++ {
			xx := (x + shift) % s.width
			v := byte(xx * 255 / s.width)
			idx := row + x*3
			s.buf[idx+0] = v
			s.buf[idx+1] = 255 - v
			s.buf[idx+2] = v
		}
	}
	return s.buf, nil
}
