package biostream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/biosignal-stream/internal/gstcam"
)

// WebcamConfig configures the GStreamer webcam source.
type WebcamConfig struct {
	// Device is the V4L2 device path. Default /dev/video0; a Connect
	// target starting with "/dev/" overrides it.
	Device string
	// Width and Height of the delivered frames. Default 640×480.
	Width  int
	Height int
	// FPS is the capture rate (0.1-240). Default 30.
	FPS float64
}

// WebcamSource captures frames from a V4L2 webcam through GStreamer.
// It implements FrameSource and Connector. Requires the gstreamer1.0
// runtime.
//
// Frames flow from the appsink callback through a small channel with
// drop-on-full semantics (the stream's frame buffer only ever wants
// the latest frame anyway), and AcquireFrame hands them to the frame
// loop.
type WebcamSource struct {
	cfg WebcamConfig

	mu       sync.Mutex
	elements *gstcam.PipelineElements
	frames   chan gstcam.Frame
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	frameCount    atomic.Uint64
	framesDropped atomic.Uint64
}

// NewWebcamSource creates a webcam source with fail-fast validation:
// dimensions and FPS are range-checked and the GStreamer runtime is
// probed at construction time.
func NewWebcamSource(cfg WebcamConfig) (*WebcamSource, error) {
	if cfg.Device == "" {
		cfg.Device = "/dev/video0"
	}
	if cfg.Width == 0 && cfg.Height == 0 {
		cfg.Width, cfg.Height = 640, 480
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("biostream: invalid webcam resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS == 0 {
		cfg.FPS = 30
	}
	if cfg.FPS < 0.1 || cfg.FPS > 240 {
		return nil, fmt.Errorf("biostream: invalid webcam FPS %.2f (must be 0.1-240)", cfg.FPS)
	}

	if err := checkGStreamerAvailable(); err != nil {
		return nil, fmt.Errorf("biostream: GStreamer not available: %w", err)
	}

	return &WebcamSource{cfg: cfg}, nil
}

// Dimensions implements FrameSource.
func (w *WebcamSource) Dimensions() (width, height int) {
	return w.cfg.Width, w.cfg.Height
}

// Connect builds the capture pipeline, starts it and spawns the bus
// monitor. A target starting with "/dev/" selects the device;
// anything else keeps the configured one. No-op when already
// connected.
func (w *WebcamSource) Connect(target string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.elements != nil {
		return nil
	}

	device := w.cfg.Device
	if len(target) > 5 && target[:5] == "/dev/" {
		device = target
	}

	elements, err := gstcam.CreatePipeline(gstcam.PipelineConfig{
		Device: device,
		Width:  w.cfg.Width,
		Height: w.cfg.Height,
		FPS:    w.cfg.FPS,
	})
	if err != nil {
		return fmt.Errorf("webcam pipeline: %w", err)
	}

	frames := make(chan gstcam.Frame, 4)
	callbackCtx := &gstcam.CallbackContext{
		FrameChan:     frames,
		FrameCounter:  &w.frameCount,
		FramesDropped: &w.framesDropped,
		FrameSize:     w.cfg.Width * w.cfg.Height * 3,
	}
	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return gstcam.OnNewSample(sink, callbackCtx)
		},
	})

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		gstcam.DestroyPipeline(elements)
		return fmt.Errorf("webcam pipeline start: %w", err)
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	w.elements = elements
	w.frames = frames
	w.cancel = cancel

	w.wg.Add(1)
	go w.monitorBus(monitorCtx, elements)

	slog.Info("biostream: webcam connected",
		"device", device,
		"resolution", fmt.Sprintf("%dx%d", w.cfg.Width, w.cfg.Height),
		"fps", w.cfg.FPS,
	)
	return nil
}

// Close stops the pipeline and joins the bus monitor. Idempotent.
func (w *WebcamSource) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.elements == nil {
		return nil
	}

	w.cancel()
	w.wg.Wait()

	err := gstcam.DestroyPipeline(w.elements)
	w.elements = nil
	w.frames = nil
	w.cancel = nil

	slog.Info("biostream: webcam closed",
		"frames_captured", w.frameCount.Load(),
		"frames_dropped", w.framesDropped.Load(),
	)
	return err
}

// DeviceInfo implements Connector.
func (w *WebcamSource) DeviceInfo() string {
	return fmt.Sprintf("V4L2 webcam %s - %dx%d @ %g fps",
		w.cfg.Device, w.cfg.Width, w.cfg.Height, w.cfg.FPS)
}

// AcquireFrame implements FrameSource: it hands over the next frame
// the pipeline delivers, or fails when ctx is cancelled first.
func (w *WebcamSource) AcquireFrame(ctx context.Context) ([]byte, error) {
	w.mu.Lock()
	frames := w.frames
	w.mu.Unlock()

	if frames == nil {
		return nil, fmt.Errorf("webcam not connected")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame := <-frames:
		return frame.Data, nil
	}
}

// monitorBus watches the pipeline bus for errors and end-of-stream
// until Close. Errors are logged, not propagated - per-cycle failures
// surface to the consumer as stale frames, never as a crash.
func (w *WebcamSource) monitorBus(ctx context.Context, elements *gstcam.PipelineElements) {
	defer w.wg.Done()

	bus := elements.Pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			// Short poll keeps shutdown responsive.
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}
			switch msg.Type() {
			case gst.MessageEOS:
				slog.Warn("biostream: webcam end of stream", "device", w.cfg.Device)
				return
			case gst.MessageError:
				gerr := msg.ParseError()
				slog.Error("biostream: webcam pipeline error",
					"device", w.cfg.Device,
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
				)
				return
			}
		}
	}
}

// checkGStreamerAvailable probes the GStreamer runtime by creating a
// throwaway element. Fail-fast validation, run at construction time.
func checkGStreamerAvailable() error {
	gst.Init(nil)

	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}
