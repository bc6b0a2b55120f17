package tracker

import "math"

// BBox is an axis-aligned box in pixel coordinates, x2/y2 exclusive of none —
// plain corner coordinates as the detector reports them.
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b BBox) Width() int  { return b.X2 - b.X1 }
func (b BBox) Height() int { return b.Y2 - b.Y1 }

// Center returns the box center in float coordinates.
func (b BBox) Center() (float64, float64) {
	return float64(b.X1+b.X2) / 2, float64(b.Y1+b.Y2) / 2
}

// IoU computes intersection-over-union of two boxes.
func IoU(a, b BBox) float64 {
	x1 := maxInt(a.X1, b.X1)
	y1 := maxInt(a.Y1, b.Y1)
	x2 := minInt(a.X2, b.X2)
	y2 := minInt(a.Y2, b.Y2)

	iw := x2 - x1
	ih := y2 - y1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := float64(iw) * float64(ih)

	areaA := float64(a.Width()) * float64(a.Height())
	areaB := float64(b.Width()) * float64(b.Height())
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func centerDistance(a, b BBox) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return math.Hypot(ax-bx, ay-by)
}

// smoothBBox blends the new observation into the previous box per
// coordinate: round(0.3*obs + 0.7*last).
func smoothBBox(obs, last BBox) BBox {
	blend := func(o, l int) int {
		return int(math.Round(0.3*float64(o) + 0.7*float64(l)))
	}
	return BBox{
		X1: blend(obs.X1, last.X1),
		Y1: blend(obs.Y1, last.Y1),
		X2: blend(obs.X2, last.X2),
		Y2: blend(obs.Y2, last.Y2),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(math.Min(1.0, math.Max(-1.0, sum)))
}

// normalized returns a unit-length copy of v.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// blend computes normalize(wOld*a + wNew*b).
func blend(a, b []float32, wOld, wNew float32) []float32 {
	n := len(a)
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = wOld*a[i] + wNew*b[i]
	}
	return normalized(out)
}
