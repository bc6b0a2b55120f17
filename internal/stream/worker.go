package stream

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/your-org/facewatch/internal/annotate"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/tracker"
	"github.com/your-org/facewatch/internal/vision"
	"github.com/your-org/facewatch/pkg/dto"
)

// Analyzer detects and embeds every face in a decoded frame.
type Analyzer interface {
	Analyze(img image.Image) ([]vision.Face, error)
}

// SightingFunc receives suspect sightings with the annotated frame JPEG.
type SightingFunc func(s dto.SuspectSighting, frameJPEG []byte)

const (
	captureQueueCap = 5
	renderQueueCap  = 2
	joinTimeout     = 2 * time.Second
	perFrameIoU     = 0.3
	minDetScore     = 0.5
	captureRetries  = 3
)

type capturedFrame struct {
	data []byte
	ts   time.Time
}

// Worker runs one stream: a capture goroutine feeding a bounded queue and a
// process goroutine feeding rendered frames to the preview queue. Both
// observe the stop signal at every dequeue.
type Worker struct {
	ID        string
	URL       string
	StartedAt time.Time

	trk        *tracker.Tracker
	analyzer   Analyzer
	onSighting SightingFunc
	fps        int
	width      int

	frames    chan capturedFrame
	output    chan []byte
	stop      chan struct{}
	captureDn chan struct{}
	processDn chan struct{}
	hasError  atomic.Bool
	stopped   atomic.Bool
}

func newWorker(id, url string, trk *tracker.Tracker, analyzer Analyzer, onSighting SightingFunc, fps, width int) *Worker {
	return &Worker{
		ID:         id,
		URL:        url,
		StartedAt:  time.Now(),
		trk:        trk,
		analyzer:   analyzer,
		onSighting: onSighting,
		fps:        fps,
		width:      width,
		frames:     make(chan capturedFrame, captureQueueCap),
		output:     make(chan []byte, renderQueueCap),
		stop:       make(chan struct{}),
		captureDn:  make(chan struct{}),
		processDn:  make(chan struct{}),
	}
}

func (w *Worker) start() {
	go w.runCapture()
	go w.runProcess()
}

// Stop signals both goroutines and waits up to the join timeout for each.
func (w *Worker) Stop() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}
	close(w.stop)

	for _, done := range []chan struct{}{w.captureDn, w.processDn} {
		select {
		case <-done:
		case <-time.After(joinTimeout):
			slog.Warn("stream worker join timeout", "stream_id", w.ID)
		}
	}
}

// Frames returns the rendered preview queue.
func (w *Worker) Frames() <-chan []byte {
	return w.output
}

func (w *Worker) HasError() bool {
	return w.hasError.Load()
}

func (w *Worker) Stopped() bool {
	return w.stopped.Load()
}

func (w *Worker) runCapture() {
	defer close(w.captureDn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.stop
		cancel()
	}()

	for attempt := 0; attempt <= captureRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt)) * time.Second
			slog.Warn("retrying stream capture", "stream_id", w.ID, "attempt", attempt, "delay", delay)
			select {
			case <-w.stop:
				return
			case <-time.After(delay):
			}
		}

		err := extractFrames(ctx, w.URL, w.fps, w.width, func(frameData []byte) error {
			data := make([]byte, len(frameData))
			copy(data, frameData)
			select {
			case w.frames <- capturedFrame{data: data, ts: time.Now()}:
			default:
				observability.FramesDropped.WithLabelValues(w.ID, "capture").Inc()
			}
			return nil
		})

		if err == nil || ctx.Err() != nil {
			return
		}
		slog.Error("stream capture failed", "stream_id", w.ID, "attempt", attempt, "error", err)
	}

	w.hasError.Store(true)
}

func (w *Worker) runProcess() {
	defer close(w.processDn)
	// Sole sender; closing unblocks MJPEG viewers once the stream stops.
	defer close(w.output)

	for {
		select {
		case <-w.stop:
			return
		case f := <-w.frames:
			if err := w.processFrame(f); err != nil {
				slog.Error("process frame", "stream_id", w.ID, "error", err)
			}
		}
	}
}

func (w *Worker) processFrame(f capturedFrame) error {
	img, err := jpeg.Decode(bytes.NewReader(f.data))
	if err != nil {
		return err
	}

	faces, err := w.analyzer.Analyze(img)
	if err != nil {
		w.hasError.Store(true)
		return err
	}

	canvas := annotate.NewCanvas(img)
	var processed []tracker.BBox
	var sightings []dto.SuspectSighting

	for _, face := range faces {
		if face.Score < minDetScore {
			continue
		}

		box := tracker.BBox{
			X1: int(face.BBox[0]),
			Y1: int(face.BBox[1]),
			X2: int(face.BBox[2]),
			Y2: int(face.BBox[3]),
		}

		// Suppress duplicate detections of a face already handled in this
		// frame.
		duplicate := false
		for _, prev := range processed {
			if tracker.IoU(box, prev) > perFrameIoU {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		processed = append(processed, box)

		observability.FacesObserved.WithLabelValues(w.ID).Inc()
		res := w.trk.Process(face.Embedding, box, w.ID, f.ts)
		if !res.OK {
			observability.ObservationsRejected.WithLabelValues(w.ID).Inc()
			continue
		}

		canvas.MarkIdentity(res.ID, res.Suspicious, res.BBox)

		if res.NewMatch != nil {
			sightings = append(sightings, dto.SuspectSighting{
				StreamID:   w.ID,
				IdentityID: res.ID,
				Score:      res.NewMatch.Score,
				Record:     res.NewMatch.Record,
				Timestamp:  f.ts,
			})
		}
	}

	canvas.MarkTimestamp(f.ts)
	rendered, err := canvas.EncodeJPEG()
	if err != nil {
		return err
	}

	select {
	case w.output <- rendered:
	default:
		observability.FramesDropped.WithLabelValues(w.ID, "render").Inc()
	}

	if w.onSighting != nil {
		for _, s := range sightings {
			w.onSighting(s, rendered)
		}
	}

	observability.FramesProcessed.WithLabelValues(w.ID).Inc()
	return nil
}
