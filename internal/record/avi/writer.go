// internal/record/avi/writer.go

// Package avi muxes packed RGB frames into an MJPEG AVI file through a
// GStreamer pipeline: appsrc → videoconvert → jpegenc → avimux →
// filesink. One writer, one file.
package avi

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/tamzrod/fieldrec/internal/record"
)

const (
	// gstFormatTime makes appsrc run in time format, which
	// do-timestamp requires.
	gstFormatTime = 3

	// closeWait bounds the EOS drain on Close. avimux writes its
	// index on EOS; cutting that short leaves a broken file.
	closeWait = 5 * time.Second
)

// Opener adapts Open to the record.SinkOpener contract.
func Opener(log *slog.Logger) record.SinkOpener {
	return func(path string, width, height int, fps float64) (record.FrameSink, error) {
		return Open(path, width, height, fps, log)
	}
}

// Writer is one open AVI file.
type Writer struct {
	path     string
	frameLen int
	log      *slog.Logger

	pipeline *gst.Pipeline
	src      *app.Source

	closeOnce sync.Once
	closeErr  error
}

// Open builds and starts the pipeline. Failures wrap
// record.ErrWriterOpen so the recorder can skip the window and move
// on.
func Open(path string, width, height int, fps float64, log *slog.Logger) (*Writer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: bad frame size %dx%d", record.ErrWriterOpen, width, height)
	}
	if log == nil {
		log = slog.Default()
	}

	// Safe to call more than once.
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("%w: new pipeline: %v", record.ErrWriterOpen, err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("%w: appsrc: %v", record.ErrWriterOpen, err)
	}
	src.SetProperty("is-live", true)
	src.SetProperty("do-timestamp", true)
	src.SetProperty("format", gstFormatTime)
	// Block the pusher when the muxer falls behind; backpressure
	// belongs on the write path.
	src.SetProperty("block", true)
	src.SetProperty("caps", gst.NewCapsFromString(rgbCaps(width, height, fps)))

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("%w: videoconvert: %v", record.ErrWriterOpen, err)
	}
	encoder, err := gst.NewElement("jpegenc")
	if err != nil {
		return nil, fmt.Errorf("%w: jpegenc: %v", record.ErrWriterOpen, err)
	}
	muxer, err := gst.NewElement("avimux")
	if err != nil {
		return nil, fmt.Errorf("%w: avimux: %v", record.ErrWriterOpen, err)
	}
	filesink, err := gst.NewElement("filesink")
	if err != nil {
		return nil, fmt.Errorf("%w: filesink: %v", record.ErrWriterOpen, err)
	}
	filesink.SetProperty("location", path)
	filesink.SetProperty("sync", false)

	if err := pipeline.AddMany(src.Element, converter, encoder, muxer, filesink); err != nil {
		return nil, fmt.Errorf("%w: add elements: %v", record.ErrWriterOpen, err)
	}
	if err := gst.ElementLinkMany(src.Element, converter, encoder, muxer, filesink); err != nil {
		return nil, fmt.Errorf("%w: link elements: %v", record.ErrWriterOpen, err)
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("%w: start pipeline for %s: %v", record.ErrWriterOpen, path, err)
	}

	return &Writer{
		path:     path,
		frameLen: width * height * 3,
		log:      log.With("worker", "avi", "path", path),
		pipeline: pipeline,
		src:      src,
	}, nil
}

// WriteFrame pushes one packed RGB frame. Blocks while the muxer
// catches up.
func (w *Writer) WriteFrame(rgb []byte) error {
	if len(rgb) != w.frameLen {
		return fmt.Errorf("avi: frame is %d bytes, want %d", len(rgb), w.frameLen)
	}
	buf := gst.NewBufferFromBytes(rgb)
	if ret := w.src.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("avi: push rejected: %v", ret)
	}
	return nil
}

// Close ends the stream, waits for the muxer to write its index, and
// tears the pipeline down. Safe to call more than once.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.src.EndStream()
		w.closeErr = w.drainEOS()
		w.pipeline.SetState(gst.StateNull)
	})
	return w.closeErr
}

func (w *Writer) drainEOS() error {
	bus := w.pipeline.GetPipelineBus()
	deadline := time.Now().Add(closeWait)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(200 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("avi: finalize %s: %s", w.path, gerr.Error())
		}
	}
	return fmt.Errorf("avi: finalize %s: no EOS within %s", w.path, closeWait)
}

func rgbCaps(width, height int, fps float64) string {
	numerator, denominator := 1, 1
	if fps < 1.0 {
		denominator = int(1.0 / fps)
	} else {
		numerator = int(fps)
	}
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d",
		width, height, numerator, denominator)
}
