package biostream_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	biostream "github.com/e7canasta/biosignal-stream"
)

// fakeSampleSource produces deterministic monotonic samples and can be
// told to fail every Nth acquisition or to refuse connection.
type fakeSampleSource struct {
	mu          sync.Mutex
	calls       int
	failEvery   int // fail every Nth call when > 0
	failConnect bool
	connected   bool
}

func (f *fakeSampleSource) Connect(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConnect {
		return fmt.Errorf("device at %q unreachable", target)
	}
	f.connected = true
	return nil
}

func (f *fakeSampleSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeSampleSource) DeviceInfo() string { return "fake GSR device" }

func (f *fakeSampleSource) AcquireSample(_ context.Context) (biostream.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failEvery > 0 && f.calls%f.failEvery == 0 {
		return biostream.Sample{}, fmt.Errorf("upstream timeout")
	}
	t := float64(f.calls) / 1000.0
	return biostream.Sample{T: t, V: 10.0}, nil
}

// fakeFrameSource emits 4×4 frames filled with the success count, and
// fails every call once failAfter successes have happened.
type fakeFrameSource struct {
	mu        sync.Mutex
	successes int
	failAfter int // fail once this many successes happened, when > 0
	buf       []byte
}

func newFakeFrameSource(failAfter int) *fakeFrameSource {
	return &fakeFrameSource{failAfter: failAfter, buf: make([]byte, 4*4*3)}
}

func (f *fakeFrameSource) Dimensions() (int, int) { return 4, 4 }

func (f *fakeFrameSource) AcquireFrame(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && f.successes >= f.failAfter {
		return nil, fmt.Errorf("camera stalled")
	}
	f.successes++
	for i := range f.buf {
		f.buf[i] = byte(f.successes)
	}
	return f.buf, nil
}

func TestNew_FailFast(t *testing.T) {
	src := &fakeSampleSource{}

	tests := []struct {
		name    string
		cfg     biostream.Config
		src     biostream.SampleSource
		wantErr bool
	}{
		{name: "defaults", cfg: biostream.Config{}, src: src, wantErr: false},
		{name: "nil sample source", cfg: biostream.Config{}, src: nil, wantErr: true},
		{name: "sample rate too low", cfg: biostream.Config{SampleRate: 0.01}, src: src, wantErr: true},
		{name: "sample rate too high", cfg: biostream.Config{SampleRate: 20000}, src: src, wantErr: true},
		{name: "frame rate too high", cfg: biostream.Config{FrameRate: 500}, src: src, wantErr: true},
		{name: "negative ring capacity", cfg: biostream.Config{RingCapacity: -1}, src: src, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := biostream.New(tt.cfg, tt.src, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnect_Errors(t *testing.T) {
	t.Run("empty target", func(t *testing.T) {
		s, err := biostream.New(biostream.Config{}, &fakeSampleSource{}, nil)
		if err != nil {
			t.Fatal(err)
		}
		err = s.Connect("")
		var connErr *biostream.ConnectionError
		if !errors.As(err, &connErr) {
			t.Fatalf("Connect(\"\") error = %v, want *ConnectionError", err)
		}
		if s.IsConnected() {
			t.Error("stream connected after failed Connect")
		}
	})

	t.Run("source refuses", func(t *testing.T) {
		src := &fakeSampleSource{failConnect: true}
		s, err := biostream.New(biostream.Config{}, src, nil)
		if err != nil {
			t.Fatal(err)
		}
		err = s.Connect("sim://gsr")
		var connErr *biostream.ConnectionError
		if !errors.As(err, &connErr) {
			t.Fatalf("Connect error = %v, want *ConnectionError", err)
		}
		if connErr.Target != "sim://gsr" {
			t.Errorf("ConnectionError.Target = %q", connErr.Target)
		}
		if s.IsConnected() {
			t.Error("stream connected after source refused")
		}
	})
}

func TestStart_NotConnected(t *testing.T) {
	s, err := biostream.New(biostream.Config{}, &fakeSampleSource{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, biostream.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
}

func TestLifecycle_Idempotence(t *testing.T) {
	s, err := biostream.New(biostream.Config{SampleRate: 500}, &fakeSampleSource{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Stop before anything is a no-op.
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() on fresh stream: %v", err)
	}

	if err := s.Connect("sim://gsr"); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Second Start must not spawn extra loops or reset anything.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("repeated Start: %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("stream not running after Start")
	}

	time.Sleep(50 * time.Millisecond)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.IsRunning() {
		t.Fatal("stream still running after Stop")
	}
	if !s.IsConnected() {
		t.Fatal("Stop disconnected the stream")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("repeated Stop: %v", err)
	}

	// Start/stop cycles on a healthy connection are always safe.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop after restart: %v", err)
	}
}

func TestSamplesFlow_Ordered(t *testing.T) {
	src := &fakeSampleSource{}
	s, err := biostream.New(biostream.Config{SampleRate: 500}, src, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := s.PopSamples(); got != nil {
		t.Errorf("PopSamples before start = %v, want nil", got)
	}

	if err := s.Connect("sim://gsr"); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	time.Sleep(200 * time.Millisecond)

	var all []biostream.Sample
	all = append(all, s.PopSamples()...)
	time.Sleep(50 * time.Millisecond)
	all = append(all, s.PopSamples()...)

	if len(all) == 0 {
		t.Fatal("no samples after 250ms at 500 Hz")
	}
	for i := 1; i < len(all); i++ {
		if all[i].T <= all[i-1].T {
			t.Fatalf("timestamps not increasing at %d: %v then %v", i, all[i-1].T, all[i].T)
		}
	}

	stats := s.Stats()
	if stats.SampleCount == 0 || !stats.Running || !stats.Connected {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.SampleRateTarget != 500 {
		t.Errorf("SampleRateTarget = %v, want 500", stats.SampleRateTarget)
	}
}

// TestSampleErrors_DoNotStopLoop verifies a source that fails
// intermittently only loses those periods.
func TestSampleErrors_DoNotStopLoop(t *testing.T) {
	src := &fakeSampleSource{failEvery: 2}
	s, err := biostream.New(biostream.Config{SampleRate: 500}, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Connect("sim://gsr"); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}

	stats := s.Stats()
	if stats.SampleErrors == 0 {
		t.Error("expected acquisition errors to be counted")
	}
	if stats.SampleCount == 0 {
		t.Error("loop produced nothing despite intermittent failures only")
	}
}

// TestFrameStaleness verifies that once the frame source starts
// failing, the last good frame stays visible unchanged.
func TestFrameStaleness(t *testing.T) {
	frames := newFakeFrameSource(3) // three good frames, then stall
	s, err := biostream.New(
		biostream.Config{SampleRate: 500, FrameRate: 120},
		&fakeSampleSource{},
		frames,
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Connect("sim://gsr"); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}

	snap := s.LatestFrame()
	if snap.Width != 4 || snap.Height != 4 || len(snap.Data) != 48 {
		t.Fatalf("snapshot shape = %dx%d/%d bytes", snap.Width, snap.Height, len(snap.Data))
	}
	want := bytes.Repeat([]byte{3}, 48) // content of the last good frame
	if !bytes.Equal(snap.Data, want) {
		t.Errorf("frame not the last good one: got fill %d", snap.Data[0])
	}
	if snap.Seq != 3 {
		t.Errorf("Seq = %d, want 3", snap.Seq)
	}

	// Repeated reads keep returning the identical stale frame.
	for i := 0; i < 5; i++ {
		again := s.LatestFrame()
		if !bytes.Equal(again.Data, want) || again.Seq != 3 {
			t.Fatalf("stale frame changed on read %d", i)
		}
	}

	if stats := s.Stats(); stats.FrameErrors == 0 {
		t.Error("expected frame errors to be counted")
	}
}

func TestViewFrame_Borrowed(t *testing.T) {
	frames := newFakeFrameSource(0)
	s, err := biostream.New(
		biostream.Config{SampleRate: 500, FrameRate: 120},
		&fakeSampleSource{},
		frames,
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Connect("sim://gsr"); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)

	called := false
	s.ViewFrame(func(w, h int, data []byte) {
		called = true
		if w != 4 || h != 4 || len(data) != 48 {
			t.Errorf("view shape = %dx%d/%d bytes", w, h, len(data))
		}
		// A published frame is uniform; a mixed one would be torn.
		for i := 1; i < len(data); i++ {
			if data[i] != data[0] {
				t.Fatalf("torn view: byte 0 = %d, byte %d = %d", data[0], i, data[i])
			}
		}
	})
	if !called {
		t.Fatal("ViewFrame did not invoke callback")
	}
}

func TestDeviceInfo(t *testing.T) {
	s, err := biostream.New(biostream.Config{}, &fakeSampleSource{}, newFakeFrameSource(0))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.DeviceInfo(); got != "fake GSR device" {
		t.Errorf("DeviceInfo() = %q", got)
	}
}

func TestWarmup_NotRunning(t *testing.T) {
	s, err := biostream.New(biostream.Config{}, &fakeSampleSource{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Warmup(context.Background(), time.Second); err == nil {
		t.Error("Warmup on a stopped stream did not fail")
	}
}

func TestClose_Terminal(t *testing.T) {
	src := &fakeSampleSource{}
	s, err := biostream.New(biostream.Config{SampleRate: 500}, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Connect("sim://gsr"); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.IsRunning() || s.IsConnected() {
		t.Error("Close left the stream connected or running")
	}
	if err := s.Start(context.Background()); !errors.Is(err, biostream.ErrNotConnected) {
		t.Errorf("Start after Close = %v, want ErrNotConnected", err)
	}
}
