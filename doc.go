// Package biostream streams live sensor data - a scalar biosignal
// channel (e.g. GSR in microsiemens) and a video-frame channel - from
// producer goroutines sampling at a fixed rate into a consumer that
// polls at its own cadence, without blocking either side and without
// unbounded memory growth.
//
// # Quick Start
//
// The simplest way to stream the simulated Shimmer GSR signal together
// with a synthetic video feed:
//
//	gsr := biostream.NewSyntheticGSRSource(128)
//	cam := biostream.NewSyntheticFrameSource(640, 480)
//
//	stream, err := biostream.New(biostream.Config{}, gsr, cam)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := stream.Connect("COM3"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := stream.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	defer stream.Stop()
//
//	// Consumer polls on its own schedule, never blocked by producers.
//	for range time.Tick(100 * time.Millisecond) {
//	    for _, s := range stream.PopSamples() {
//	        plot(s.T, s.V)
//	    }
//	    frame := stream.LatestFrame()
//	    preview(frame.Width, frame.Height, frame.Data)
//	}
//
// # Buffering discipline
//
// The scalar channel flows through a lock-free single-producer
// single-consumer ring buffer with drop-oldest semantics: when the
// consumer falls behind, the newest samples overwrite the oldest unread
// ones. For live physiological signals recency matters more than
// completeness, and the bounded capacity means a stalled consumer can
// never grow memory.
//
// The video channel flows through a single-slot double buffer: only the
// most recent frame is ever meaningful for a live preview, so older
// frames are simply replaced. Readers always observe a complete,
// non-torn frame, either as a copy (LatestFrame) or as a borrowed view
// (ViewFrame).
//
// Both producer loops follow a fixed-period schedule with an absolute
// deadline advanced by exactly one period per iteration, so the
// long-run rate converges to the target even under scheduling jitter.
//
// # Sources
//
// Devices plug in behind the SampleSource and FrameSource interfaces.
// The package ships a simulated Shimmer3 GSR+ source and a synthetic
// gradient frame source for development without hardware, plus a
// GStreamer-backed webcam source (requires the gstreamer1.0 runtime).
//
// # Error policy
//
// Only Connect and Start report errors to the caller. A single failed
// sample or frame acquisition is skipped for that period, counted in
// Stats, and never stops a running stream: a stalled source degrades to
// empty or stale reads, never a crash.
package biostream
