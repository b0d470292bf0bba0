package gstcam

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Frame is one captured webcam frame plus metadata.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Data      []byte
	TraceID   string
}

// CallbackContext holds the state the appsink callback needs.
type CallbackContext struct {
	FrameChan     chan<- Frame
	FrameCounter  *atomic.Uint64
	FramesDropped *atomic.Uint64
	// FrameSize is the expected byte size (width·height·3); buffers of
	// any other size are discarded.
	FrameSize int
}

// OnNewSample is invoked by GStreamer for every frame the appsink
// delivers.
//
// This callback:
//  1. Pulls the sample from the appsink
//  2. Maps the buffer and copies the pixel data (GStreamer reuses it)
//  3. Hands the frame to the channel, non-blocking - when the consumer
//     is behind, the frame is dropped and counted rather than queued
//
// A corrupted or missing sample is skipped; a single bad frame must
// not terminate the stream.
func OnNewSample(sink *app.Sink, ctx *CallbackContext) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstcam: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstcam: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) != ctx.FrameSize {
		buffer.Unmap()
		slog.Warn("gstcam: unexpected buffer size, skipping frame",
			"got", len(data),
			"want", ctx.FrameSize,
		)
		return gst.FlowOK
	}

	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	frame := Frame{
		Seq:       ctx.FrameCounter.Add(1),
		Timestamp: time.Now(),
		Data:      frameData,
		TraceID:   uuid.New().String(),
	}

	select {
	case ctx.FrameChan <- frame:
	default:
		ctx.FramesDropped.Add(1)
		slog.Debug("gstcam: dropping frame, channel full",
			"seq", frame.Seq,
			"trace_id", frame.TraceID,
		)
	}

	return gst.FlowOK
}
