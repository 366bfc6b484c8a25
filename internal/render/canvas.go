// Package render draws the per-case figures: anatomical region masks, bounding boxes
// and gaze scanpaths over the radiograph, plus summary charts.
package render

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Canvas is an RGBA drawing surface.
type Canvas struct {
	*image.RGBA
}

// NewCanvas returns a canvas of the given size filled with c.
func NewCanvas(w, h int, c color.Color) *Canvas {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, image.NewUniform(c), image.Point{}, draw.Src)
	return &Canvas{img}
}

// CanvasFrom copies src into a new canvas.
func CanvasFrom(src image.Image) *Canvas {
	b := src.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Rect, src, b.Min, draw.Src)
	return &Canvas{img}
}

// Clone returns an independent copy.
func (c *Canvas) Clone() *Canvas {
	return CanvasFrom(c.RGBA)
}

func (c *Canvas) W() int { return c.Rect.Dx() }
func (c *Canvas) H() int { return c.Rect.Dy() }

// blend alpha-composites col over the pixel at (x, y).
func (c *Canvas) blend(x, y int, col color.RGBA, alpha float64) {
	if !image.Pt(x, y).In(c.Rect) {
		return
	}
	dst := c.RGBAAt(x, y)
	mix := func(d, s uint8) uint8 {
		return uint8(float64(d)*(1-alpha) + float64(s)*alpha)
	}
	c.SetRGBA(x, y, color.RGBA{R: mix(dst.R, col.R), G: mix(dst.G, col.G), B: mix(dst.B, col.B), A: 255})
}

// Line draws a line of the given width between two points.
func (c *Canvas) Line(x0, y0, x1, y1 float64, width int, col color.RGBA, alpha float64) {
	steps := int(math.Max(math.Abs(x1-x0), math.Abs(y1-y0)))
	if steps == 0 {
		steps = 1
	}
	half := width / 2
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		px := int(math.Round(x0 + (x1-x0)*t))
		py := int(math.Round(y0 + (y1-y0)*t))
		for dy := -half; dy <= half; dy++ {
			for dx := -half; dx <= half; dx++ {
				c.blend(px+dx, py+dy, col, alpha)
			}
		}
	}
}

// StrokeRect draws an unfilled rectangle outline.
func (c *Canvas) StrokeRect(r image.Rectangle, width int, col color.RGBA, alpha float64) {
	x0, y0, x1, y1 := float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)
	c.Line(x0, y0, x1, y0, width, col, alpha)
	c.Line(x1, y0, x1, y1, width, col, alpha)
	c.Line(x1, y1, x0, y1, width, col, alpha)
	c.Line(x0, y1, x0, y0, width, col, alpha)
}

// Disc draws a filled circle with an optional outline.
func (c *Canvas) Disc(cx, cy, r float64, fill color.RGBA, alpha float64, outline *color.RGBA) {
	r2 := r * r
	inner := (r - 1.5) * (r - 1.5)
	for y := int(cy - r - 1); y <= int(cy+r+1); y++ {
		for x := int(cx - r - 1); x <= int(cx+r+1); x++ {
			d := (float64(x)-cx)*(float64(x)-cx) + (float64(y)-cy)*(float64(y)-cy)
			switch {
			case d > r2:
			case outline != nil && d >= inner:
				c.blend(x, y, *outline, 1)
			default:
				c.blend(x, y, fill, alpha)
			}
		}
	}
}

// Label writes text with its baseline at (x, y) on a dark backing box.
func (c *Canvas) Label(x, y int, text string, col color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: c.RGBA, Src: image.NewUniform(col), Face: face}
	tw := d.MeasureString(text).Ceil()
	bg := image.Rect(x-2, y-face.Metrics().Ascent.Ceil()-2, x+tw+2, y+3)
	draw.Draw(c.RGBA, bg, image.NewUniform(color.RGBA{A: 170}), image.Point{}, draw.Over)
	d.Dot = fixed.P(x, y)
	d.DrawString(text)
}

// WritePNG encodes img to path, creating parent directories.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
