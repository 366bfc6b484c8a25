package render

import (
	"image"
	"image/color"
	_ "image/png"
	"math"
	"os"

	"golang.org/x/image/draw"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// Region tints for the anatomical masks.
var RegionColors = map[string]color.RGBA{
	"left_lung":   {R: 255, A: 255},
	"right_lung":  {G: 255, A: 255},
	"mediastanum": {B: 255, A: 255},
	"aortic_knob": {R: 255, G: 255, A: 255},
}

const maskAlpha = 0.3

// palette cycles through distinguishable box colors.
var palette = []color.RGBA{
	{141, 211, 199, 255}, {255, 255, 179, 255}, {190, 186, 218, 255}, {251, 128, 114, 255},
	{128, 177, 211, 255}, {253, 180, 98, 255}, {179, 222, 105, 255}, {252, 205, 229, 255},
	{217, 217, 217, 255}, {188, 128, 189, 255}, {204, 235, 197, 255}, {255, 237, 111, 255},
}

var (
	white = color.RGBA{255, 255, 255, 255}
	blue  = color.RGBA{40, 90, 255, 255}
	green = color.RGBA{0, 200, 0, 255}
	red   = color.RGBA{230, 0, 0, 255}
)

// LoadMask decodes a region mask and scales it to w x h. A pixel belongs to the
// region when its luminance exceeds half scale.
func LoadMask(path string, w, h int) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, domain.NewDatasetError(domain.ErrRender, "failed to decode mask", path, err)
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Rect, src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// TintMask blends col over every canvas pixel covered by mask.
func TintMask(c *Canvas, mask *image.Gray, col color.RGBA) int {
	covered := 0
	b := mask.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.GrayAt(x, y).Y > 128 {
				c.blend(x, y, col, maskAlpha)
				covered++
			}
		}
	}
	return covered
}

// ScaleBox maps a bounding box from dataset coordinates onto a w x h image.
func ScaleBox(b domain.BoundingBox, w, h int) image.Rectangle {
	sx := float64(w) / domain.BoundingBoxMaxExtent
	sy := float64(h) / domain.BoundingBoxMaxExtent
	return image.Rect(
		int(math.Round(b.X1*sx)), int(math.Round(b.Y1*sy)),
		int(math.Round(b.X2*sx)), int(math.Round(b.Y2*sy)),
	)
}

// DrawBoxes outlines and labels each bounding box.
func DrawBoxes(c *Canvas, boxes []domain.BoundingBox) {
	for i, b := range boxes {
		col := palette[i%len(palette)]
		r := ScaleBox(b, c.W(), c.H())
		c.StrokeRect(r, 2, col, 0.8)
		c.Label(r.Min.X+3, r.Min.Y+14, b.Region, col)
	}
}

// FixationPoint maps a normalized fixation onto a w x h image.
func FixationPoint(f domain.Fixation, w, h int) (float64, float64) {
	return f.X * float64(w), f.Y * float64(h)
}

// HeatColor maps t in [0,1] onto a black-red-yellow-white ramp.
func HeatColor(t float64) color.RGBA {
	clamp := func(v float64) uint8 {
		return uint8(math.Max(0, math.Min(1, v)) * 255)
	}
	return color.RGBA{R: clamp(3 * t), G: clamp(3*t - 1), B: clamp(3*t - 2), A: 255}
}

// DrawScanpath draws chronological transitions between fixations and a disc per
// fixation sized and colored by duration. The first fixation is marked green and the
// last red.
func DrawScanpath(c *Canvas, fixations []domain.Fixation) {
	if len(fixations) == 0 {
		return
	}
	w, h := c.W(), c.H()
	scale := float64(max(w, h)) / MaxSide

	maxDur := 0.0
	for _, f := range fixations {
		maxDur = math.Max(maxDur, f.Duration)
	}

	for i := 0; i+1 < len(fixations); i++ {
		x0, y0 := FixationPoint(fixations[i], w, h)
		x1, y1 := FixationPoint(fixations[i+1], w, h)
		c.Line(x0, y0, x1, y1, 1, blue, 0.3)
	}

	outline := white
	for _, f := range fixations {
		t := 0.0
		if maxDur > 0 {
			t = f.Duration / maxDur
		}
		x, y := FixationPoint(f, w, h)
		c.Disc(x, y, (3+17*t)*scale, HeatColor(0.25+0.75*t), 0.8, &outline)
	}

	first, last := fixations[0], fixations[len(fixations)-1]
	x, y := FixationPoint(first, w, h)
	c.Disc(x, y, 9*scale, green, 1, &outline)
	x, y = FixationPoint(last, w, h)
	c.Disc(x, y, 9*scale, red, 1, &outline)
}
