// Package gstcam builds and services the GStreamer capture pipeline
// behind the webcam frame source. Requires the gstreamer1.0 runtime.
package gstcam

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// PipelineConfig contains configuration for pipeline creation.
type PipelineConfig struct {
	// Device is the V4L2 device path, e.g. /dev/video0.
	Device string
	// Width and Height of the frames the appsink delivers.
	Width  int
	Height int
	// FPS is the capture rate the videorate element enforces.
	FPS float64
}

// PipelineElements holds references to pipeline elements needed for
// shutdown and diagnostics.
type PipelineElements struct {
	Pipeline   *gst.Pipeline
	AppSink    *app.Sink
	CapsFilter *gst.Element
	Source     *gst.Element
}

// CreatePipeline creates and configures the webcam capture pipeline:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter → appsink
//
// The capsfilter locks the output to interleaved RGB at the configured
// resolution and rate, so every appsink buffer is exactly
// width·height·3 bytes. The pipeline is configured but NOT started
// (state remains NULL); the caller sets it to PLAYING.
func CreatePipeline(cfg PipelineConfig) (*PipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", cfg.Device)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0) // auto-detect cores

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)     // never duplicate frames
	videorate.SetProperty("skip-to-first", true) // skip to first frame on start

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildCaps(cfg)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // real-time, no clock sync
	appsink.SetProperty("max-buffers", 1) // keep only latest frame
	appsink.SetProperty("drop", true)     // drop old frames

	pipeline.AddMany(src, converter, scaler, videorate, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	slog.Debug("gstcam: pipeline created",
		"device", cfg.Device,
		"caps", buildCaps(cfg),
	)

	return &PipelineElements{
		Pipeline:   pipeline,
		AppSink:    appsink,
		CapsFilter: capsfilter,
		Source:     src,
	}, nil
}

// DestroyPipeline sets the pipeline to NULL, releasing device and
// GStreamer resources. Safe on a partially constructed pipeline.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to stop pipeline: %w", err)
	}
	return nil
}

// buildCaps formats the capsfilter string. The framerate is expressed
// as a fraction with a 1000 denominator so fractional rates survive.
func buildCaps(cfg PipelineConfig) string {
	num := int(cfg.FPS * 1000)
	return fmt.Sprintf(
		"video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1000",
		cfg.Width, cfg.Height, num,
	)
}
