// internal/stream/rtsp/source.go

// Package rtsp captures camera frames over RTSP through a GStreamer
// pipeline and adapts them to the stream.Source contract. One Open is
// one pipeline; the ingestor owns all retry policy.
package rtsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/tamzrod/fieldrec/internal/stream"
)

const (
	// openTimeout bounds the wait for the first decoded frame after
	// the pipeline starts. Open succeeds only once frames flow, so
	// the ingestor's budget accounting stays honest.
	openTimeout = 10 * time.Second

	// readTimeout turns a silent stall into a read failure so the
	// ingestor reconnects instead of hanging forever.
	readTimeout = 5 * time.Second

	// rtspLatency is the rtspsrc jitter buffer in milliseconds.
	rtspLatency = 200

	// tcpOnly forces RTP over the RTSP TCP connection. UDP on plant
	// networks loses packets and smears frames.
	tcpOnly = 4
)

// Config selects and shapes one camera stream. Frames come out packed
// RGB at Width x Height, rate-limited to FPS.
type Config struct {
	UnitID string
	URL    string
	Width  int
	Height int
	FPS    float64
}

// Build returns a stream.Opener that dials cfg.URL. ONE attempt per
// call, per the Opener contract.
func Build(cfg Config, log *slog.Logger) stream.Opener {
	return func(ctx context.Context) (stream.Source, error) {
		return Open(ctx, cfg, log)
	}
}

// Source is one live pipeline. It satisfies stream.Source.
type Source struct {
	cfg Config
	log *slog.Logger

	pipeline *gst.Pipeline
	src      *gst.Element
	depay    *gst.Element
	sink     *app.Sink

	frames  chan stream.Frame
	errs    chan error
	pending *stream.Frame

	seq     uint64
	dropped uint64

	done      chan struct{}
	closeOnce sync.Once
}

// Open builds the pipeline, starts it, and blocks until the first
// frame arrives. An RTSP server that accepts the connection but never
// delivers media is an open failure, not a silent success.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Source, error) {
	if cfg.URL == "" {
		return nil, errors.New("rtsp: url is required")
	}
	if log == nil {
		log = slog.Default()
	}

	// Safe to call more than once.
	gst.Init(nil)

	s := &Source{
		cfg:    cfg,
		log:    log.With("unit", cfg.UnitID, "worker", "rtsp"),
		frames: make(chan stream.Frame, 1),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	if err := s.buildPipeline(); err != nil {
		return nil, err
	}

	s.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onSample,
	})
	// rtspsrc pads appear only after SDP negotiation.
	s.src.Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
		s.onPadAdded(pad)
	})

	if err := s.pipeline.SetState(gst.StatePlaying); err != nil {
		s.pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("rtsp: start pipeline for %s: %w", cfg.URL, err)
	}
	go s.watchBus()

	timer := time.NewTimer(openTimeout)
	defer timer.Stop()
	select {
	case fr := <-s.frames:
		s.pending = &fr
		s.log.Info("rtsp stream open", "url", cfg.URL, "width", cfg.Width, "height", cfg.Height)
		return s, nil
	case err := <-s.errs:
		s.Close()
		return nil, err
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	case <-timer.C:
		s.Close()
		return nil, fmt.Errorf("rtsp: no frames within %s of connecting to %s", openTimeout, cfg.URL)
	}
}

// ReadFrame returns the next decoded frame. The frame buffered during
// Open is delivered first.
func (s *Source) ReadFrame(ctx context.Context) (stream.Frame, error) {
	if s.pending != nil {
		fr := *s.pending
		s.pending = nil
		return fr, nil
	}
	timer := time.NewTimer(readTimeout)
	defer timer.Stop()
	select {
	case fr := <-s.frames:
		return fr, nil
	case err := <-s.errs:
		return stream.Frame{}, err
	case <-ctx.Done():
		return stream.Frame{}, ctx.Err()
	case <-timer.C:
		return stream.Frame{}, fmt.Errorf("rtsp: no frame within %s", readTimeout)
	}
}

// Close tears the pipeline down. Safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.pipeline.SetState(gst.StateNull); err != nil {
			s.log.Warn("rtsp pipeline teardown failed", "error", err)
		}
		s.log.Debug("rtsp pipeline released",
			"frames", atomic.LoadUint64(&s.seq),
			"dropped", atomic.LoadUint64(&s.dropped),
		)
	})
	return nil
}

// ------------------------------------------------------------
// ---- PIPELINE ----
// ------------------------------------------------------------

// buildPipeline assembles
//
//	rtspsrc → rtph264depay → avdec_h264 → videoconvert →
//	videoscale → videorate → capsfilter(RGB WxH@fps) → appsink
//
// rtspsrc stays unlinked until its dynamic pad shows up.
func (s *Source) buildPipeline() error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("rtsp: new pipeline: %w", err)
	}
	s.pipeline = pipeline

	src, err := gst.NewElement("rtspsrc")
	if err != nil {
		return fmt.Errorf("rtsp: rtspsrc: %w", err)
	}
	src.SetProperty("location", s.cfg.URL)
	src.SetProperty("protocols", tcpOnly)
	src.SetProperty("latency", rtspLatency)
	s.src = src

	depay, err := gst.NewElement("rtph264depay")
	if err != nil {
		return fmt.Errorf("rtsp: rtph264depay: %w", err)
	}
	s.depay = depay

	decoder, err := gst.NewElement("avdec_h264")
	if err != nil {
		return fmt.Errorf("rtsp: avdec_h264: %w", err)
	}
	decoder.SetProperty("max-threads", 0)
	decoder.SetProperty("output-corrupt", false)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("rtsp: videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0)

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return fmt.Errorf("rtsp: videoscale: %w", err)
	}

	rate, err := gst.NewElement("videorate")
	if err != nil {
		return fmt.Errorf("rtsp: videorate: %w", err)
	}
	rate.SetProperty("drop-only", true)
	rate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("rtsp: capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(rgbCaps(s.cfg.Width, s.cfg.Height, s.cfg.FPS)))

	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("rtsp: appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)
	s.sink = sink

	if err := pipeline.AddMany(src, depay, decoder, converter, scaler, rate, capsfilter, sink.Element); err != nil {
		return fmt.Errorf("rtsp: add elements: %w", err)
	}
	if err := gst.ElementLinkMany(depay, decoder, converter, scaler, rate, capsfilter, sink.Element); err != nil {
		return fmt.Errorf("rtsp: link elements: %w", err)
	}
	return nil
}

func (s *Source) onPadAdded(pad *gst.Pad) {
	sinkPad := s.depay.GetStaticPad("sink")
	if sinkPad == nil {
		s.log.Warn("rtsp depayloader has no sink pad")
		return
	}
	if ret := pad.Link(sinkPad); ret != gst.PadLinkOK {
		s.log.Warn("rtsp pad link failed", "pad", pad.GetName(), "ret", ret)
	}
}

// onSample copies each mapped buffer out of GStreamer memory. The copy
// matters: GStreamer reuses the buffer after the callback returns.
func (s *Source) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	out := make([]byte, len(data))
	copy(out, data)
	buffer.Unmap()

	fr := stream.Frame{
		Seq:     atomic.AddUint64(&s.seq, 1),
		Taken:   time.Now(),
		Width:   s.cfg.Width,
		Height:  s.cfg.Height,
		Data:    out,
		Unit:    s.cfg.UnitID,
		TraceID: uuid.NewString(),
	}
	select {
	case s.frames <- fr:
	default:
		// Reader is behind. Newest frame wins next time around.
		atomic.AddUint64(&s.dropped, 1)
	}
	return gst.FlowOK
}

// watchBus surfaces pipeline errors and EOS as read failures.
func (s *Source) watchBus() {
	bus := s.pipeline.GetPipelineBus()
	for {
		select {
		case <-s.done:
			return
		default:
		}
		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			s.fail(errors.New("rtsp: stream ended"))
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			s.log.Warn("rtsp pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
			s.fail(fmt.Errorf("rtsp: pipeline error: %s", gerr.Error()))
			return
		}
	}
}

func (s *Source) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// rgbCaps renders the output caps. Sub-1Hz rates become 1/N fractions.
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
