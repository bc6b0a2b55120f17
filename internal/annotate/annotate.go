// Package annotate renders tracker output onto preview frames: bounding
// boxes, identity labels, and a wall-clock overlay.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/your-org/facewatch/internal/tracker"
)

var (
	colorClean      = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	colorSuspicious = color.RGBA{R: 220, G: 0, B: 0, A: 255}
	colorTimestamp  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const jpegQuality = 80

// Canvas wraps a mutable copy of a decoded frame.
type Canvas struct {
	img *image.RGBA
}

// NewCanvas copies the frame into a drawable image.
func NewCanvas(frame image.Image) *Canvas {
	b := frame.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), frame, b.Min, draw.Src)
	return &Canvas{img: img}
}

// MarkIdentity draws the identity's box and its "ID: n (STATUS)" label.
func (c *Canvas) MarkIdentity(id uint64, suspicious bool, box tracker.BBox) {
	col := colorClean
	status := "CLEAN"
	if suspicious {
		col = colorSuspicious
		status = "SUSPICIOUS"
	}

	c.rect(box, col, 2)
	c.text(fmt.Sprintf("ID: %d (%s)", id, status), box.X1, box.Y1-5, col)
}

// MarkTimestamp overlays the wall-clock time in the top-left corner.
func (c *Canvas) MarkTimestamp(now time.Time) {
	c.text(now.Format("2006-01-02 15:04:05"), 10, 30, colorTimestamp)
}

// EncodeJPEG returns the canvas as a JPEG at the preview quality.
func (c *Canvas) EncodeJPEG() ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, c.img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Image exposes the underlying frame, for snapshot archival.
func (c *Canvas) Image() image.Image {
	return c.img
}

func (c *Canvas) rect(box tracker.BBox, col color.RGBA, thickness int) {
	b := c.img.Bounds()
	x1 := clamp(box.X1, b.Min.X, b.Max.X-1)
	y1 := clamp(box.Y1, b.Min.Y, b.Max.Y-1)
	x2 := clamp(box.X2, b.Min.X, b.Max.X-1)
	y2 := clamp(box.Y2, b.Min.Y, b.Max.Y-1)

	for t := 0; t < thickness; t++ {
		for x := x1; x <= x2; x++ {
			c.set(x, y1+t, col)
			c.set(x, y2-t, col)
		}
		for y := y1; y <= y2; y++ {
			c.set(x1+t, y, col)
			c.set(x2-t, y, col)
		}
	}
}

func (c *Canvas) text(s string, x, y int, col color.RGBA) {
	d := font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func (c *Canvas) set(x, y int, col color.RGBA) {
	if image.Pt(x, y).In(c.img.Bounds()) {
		c.img.SetRGBA(x, y, col)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
