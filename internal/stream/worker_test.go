package stream

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/internal/tracker"
	"github.com/your-org/facewatch/internal/vision"
	"github.com/your-org/facewatch/internal/watchlist"
	"github.com/your-org/facewatch/pkg/dto"
)

var epoch = time.Unix(1700000000, 0)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

type fakeAnalyzer struct {
	faces []vision.Face
}

func (f *fakeAnalyzer) Analyze(img image.Image) ([]vision.Face, error) {
	return f.faces, nil
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 30, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func unitEmb(i int) []float32 {
	v := make([]float32, 8)
	v[i] = 1
	return v
}

func TestProcessFramePromotesAfterThreeFrames(t *testing.T) {
	trk := tracker.New(tracker.DefaultConfig(), nil)
	analyzer := &fakeAnalyzer{faces: []vision.Face{
		{BBox: [4]float32{10, 10, 60, 60}, Score: 0.9, Embedding: unitEmb(0)},
	}}
	w := newWorker("s1", "rtsp://cam", trk, analyzer, nil, 2, 1024)

	frame := testJPEG(t, 128, 128)
	for i := 0; i < 2; i++ {
		require.NoError(t, w.processFrame(capturedFrame{data: frame, ts: at(float64(i) * 0.5)}))
		assert.Equal(t, 0, trk.Stats().LifetimeFaces)
	}
	require.NoError(t, w.processFrame(capturedFrame{data: frame, ts: at(1.0)}))
	assert.Equal(t, 1, trk.Stats().LifetimeFaces)

	// Rendered frames land in the bounded preview queue.
	assert.Len(t, w.output, 2, "render queue capped at 2, overflow dropped")
}

func TestProcessFrameSuppressesDuplicateDetections(t *testing.T) {
	trk := tracker.New(tracker.DefaultConfig(), nil)
	// Two near-identical detections of the same face in one frame; the
	// second must be suppressed or the pending track double-counts.
	analyzer := &fakeAnalyzer{faces: []vision.Face{
		{BBox: [4]float32{10, 10, 60, 60}, Score: 0.9, Embedding: unitEmb(0)},
		{BBox: [4]float32{12, 10, 62, 60}, Score: 0.8, Embedding: unitEmb(0)},
	}}
	w := newWorker("s1", "rtsp://cam", trk, analyzer, nil, 2, 1024)

	frame := testJPEG(t, 128, 128)
	require.NoError(t, w.processFrame(capturedFrame{data: frame, ts: at(0.0)}))
	require.NoError(t, w.processFrame(capturedFrame{data: frame, ts: at(0.5)}))
	assert.Equal(t, 0, trk.Stats().LifetimeFaces, "two frames yield two observations, not four")

	require.NoError(t, w.processFrame(capturedFrame{data: frame, ts: at(1.0)}))
	assert.Equal(t, 1, trk.Stats().LifetimeFaces)
}

func TestProcessFrameFiltersLowScores(t *testing.T) {
	trk := tracker.New(tracker.DefaultConfig(), nil)
	analyzer := &fakeAnalyzer{faces: []vision.Face{
		{BBox: [4]float32{10, 10, 60, 60}, Score: 0.4, Embedding: unitEmb(0)},
	}}
	w := newWorker("s1", "rtsp://cam", trk, analyzer, nil, 2, 1024)

	frame := testJPEG(t, 128, 128)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.processFrame(capturedFrame{data: frame, ts: at(float64(i) * 0.5)}))
	}
	assert.Equal(t, 0, trk.Stats().LifetimeFaces, "det_score below 0.5 never reaches the tracker")
}

func TestProcessFrameEmitsSighting(t *testing.T) {
	emb := unitEmb(0)
	matcher := staticMatcher{
		snap: watchlist.NewSnapshot(
			[]watchlist.Record{{ID: 9, Name: "Z"}},
			[][]float32{emb},
		),
	}
	trk := tracker.New(tracker.DefaultConfig(), matcher)

	var sightings []dto.SuspectSighting
	sink := func(s dto.SuspectSighting, frameJPEG []byte) {
		sightings = append(sightings, s)
		assert.NotEmpty(t, frameJPEG)
	}

	analyzer := &fakeAnalyzer{faces: []vision.Face{
		{BBox: [4]float32{10, 10, 60, 60}, Score: 0.9, Embedding: emb},
	}}
	w := newWorker("s1", "rtsp://cam", trk, analyzer, sink, 2, 1024)

	frame := testJPEG(t, 128, 128)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.processFrame(capturedFrame{data: frame, ts: at(float64(i) * 0.5)}))
	}

	require.Len(t, sightings, 1, "sighting fires once, on the first match")
	assert.Equal(t, "s1", sightings[0].StreamID)
	assert.Equal(t, uint64(0), sightings[0].IdentityID)
	assert.Equal(t, int64(9), sightings[0].Record.ID)
}

type staticMatcher struct {
	snap *watchlist.Snapshot
}

func (m staticMatcher) Match(emb []float32) (watchlist.Match, bool) {
	ms := m.snap.Classify(emb, 1, 0.45)
	if len(ms) == 0 {
		return watchlist.Match{}, false
	}
	return ms[0], true
}

func (m staticMatcher) Entries() int { return m.snap.Len() }

func TestManagerLifecycleBookkeeping(t *testing.T) {
	trk := tracker.New(tracker.DefaultConfig(), nil)
	m := NewManager(trk, &fakeAnalyzer{}, nil, 2, 1024)

	assert.Empty(t, m.List())
	_, ok := m.Status("missing")
	assert.False(t, ok)

	// Stopping an unknown stream is not an error.
	m.Stop("missing")
}
