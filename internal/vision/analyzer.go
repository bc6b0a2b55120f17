package vision

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/observability"
)

// Face is one detected face with its embedding, ready for the tracker.
type Face struct {
	BBox      [4]float32
	Score     float32
	Embedding []float32
}

// Analyzer detects every face in a frame and embeds each one.
type Analyzer struct {
	detector *Detector
	embedder *Embedder
}

// NewAnalyzer loads both ONNX models from cfg.ModelsDir.
func NewAnalyzer(cfg config.VisionConfig) (*Analyzer, error) {
	newSessionOptions := func() (*ort.SessionOptions, error) {
		opts, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("create session options: %w", err)
		}
		if cfg.IntraOpThreads > 0 {
			if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set intra_op_threads: %w", err)
			}
		}
		if cfg.InterOpThreads > 0 {
			if err := opts.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set inter_op_threads: %w", err)
			}
		}
		return opts, nil
	}

	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	slog.Info("loading detection model", "path", detPath)
	detOpts, err := newSessionOptions()
	if err != nil {
		return nil, err
	}
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), detOpts)
	detOpts.Destroy()
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")
	slog.Info("loading embedding model", "path", embPath)
	embOpts, err := newSessionOptions()
	if err != nil {
		det.Close()
		return nil, err
	}
	emb, err := NewEmbedder(embPath, embOpts)
	embOpts.Destroy()
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	slog.Info("vision models ready")
	return &Analyzer{detector: det, embedder: emb}, nil
}

// Analyze detects faces in the frame and embeds each detection.
// Embedding failures skip the individual face, not the frame.
func (a *Analyzer) Analyze(img image.Image) ([]Face, error) {
	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	start := time.Now()
	detInput := toCHW(img, a.detector.inputW, a.detector.inputH, 127.5, 128.0)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	start = time.Now()
	detections, err := a.detector.Detect(detInput, origW, origH)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	faces := make([]Face, 0, len(detections))
	for _, det := range detections {
		crop := cropFace(img, det.BBox)
		if crop == nil {
			continue
		}

		start = time.Now()
		embInput := toCHW(crop, a.embedder.inputW, a.embedder.inputH, 127.5, 127.5)
		embedding, err := a.embedder.Extract(embInput)
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
		if err != nil {
			slog.Warn("embed face", "error", err)
			continue
		}

		faces = append(faces, Face{BBox: det.BBox, Score: det.Score, Embedding: embedding})
	}

	return faces, nil
}

func (a *Analyzer) Close() {
	if a.detector != nil {
		a.detector.Close()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
}

// toCHW resizes img to targetW×targetH (nearest neighbour) and converts it
// to CHW float32 with pixel = (pixel - mean) / std per channel.
func toCHW(img image.Image, targetW, targetH int, mean, std float32) []float32 {
	data := make([]float32, 3*targetH*targetW)
	plane := targetH * targetW

	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	for y := 0; y < targetH; y++ {
		srcY := bounds.Min.Y + y*srcH/targetH
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			r, g, b, _ := img.At(srcX, srcY).RGBA()
			idx := y*targetW + x
			data[idx] = (float32(r>>8) - mean) / std
			data[plane+idx] = (float32(g>>8) - mean) / std
			data[2*plane+idx] = (float32(b>>8) - mean) / std
		}
	}

	return data
}

// cropFace extracts the face region with 10% padding on each side.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	bounds := img.Bounds()

	w := int(bbox[2] - bbox[0])
	h := int(bbox[3] - bbox[1])
	if w <= 0 || h <= 0 {
		return nil
	}
	padW := w / 10
	padH := h / 10

	rect := image.Rect(
		maxI(int(bbox[0])-padW, bounds.Min.X),
		maxI(int(bbox[1])-padH, bounds.Min.Y),
		minI(int(bbox[2])+padW, bounds.Max.X),
		minI(int(bbox[3])+padH, bounds.Max.Y),
	)
	if rect.Empty() {
		return nil
	}

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}

	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			crop.Set(x-rect.Min.X, y-rect.Min.Y, img.At(x, y))
		}
	}
	return crop
}

func maxI(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minI(a, b int) int {
	if a < b {
		return a
	}
	return b
}
