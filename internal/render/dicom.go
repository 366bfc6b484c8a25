package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/image/draw"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// MaxSide bounds the longer side of rendered images.
const MaxSide = 1024

// LoadDICOM reads the first frame of a DICOM file, stretches its intensity range to
// 8-bit grayscale and downscales it so the longer side is at most MaxSide.
func LoadDICOM(path string) (*image.Gray, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, domain.NewDatasetError(domain.ErrRender, "failed to parse DICOM", path, err)
	}
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, domain.NewDatasetError(domain.ErrRender, "DICOM has no pixel data", path, err)
	}
	info, ok := el.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, domain.NewDatasetError(domain.ErrRender, "DICOM pixel data is empty", path, nil)
	}
	frame := info.Frames[0]
	img, err := frame.GetImage()
	if err != nil {
		return nil, domain.NewDatasetError(domain.ErrRender, "failed to decode DICOM frame", path, err)
	}
	return Fit(Normalize(img), MaxSide), nil
}

// Normalize converts any image to 8-bit grayscale, stretching the observed intensity
// range to 0..255. Radiographs stored with 12 or 16 bits would otherwise render black.
func Normalize(src image.Image) *image.Gray {
	b := src.Bounds()
	lo, hi := uint16(0xffff), uint16(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := color.Gray16Model.Convert(src.At(x, y)).(color.Gray16).Y
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	span := float64(hi) - float64(lo)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := color.Gray16Model.Convert(src.At(x, y)).(color.Gray16).Y
			var g uint8
			if span > 0 {
				g = uint8((float64(v) - float64(lo)) / span * 255)
			}
			out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: g})
		}
	}
	return out
}

// Fit downscales img so that its longer side is at most maxSide.
func Fit(img *image.Gray, maxSide int) *image.Gray {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}
	scale := float64(maxSide) / float64(max(w, h))
	dst := image.NewGray(image.Rect(0, 0, max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))))
	draw.CatmullRom.Scale(dst, dst.Rect, img, img.Bounds(), draw.Src, nil)
	return dst
}

// fmtSize is used in log fields.
func fmtSize(r image.Rectangle) string {
	return fmt.Sprintf("%dx%d", r.Dx(), r.Dy())
}
