package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egd-cxr-toolkit/internal/dataset"
	"github.com/egd-cxr-toolkit/internal/domain"
	"github.com/egd-cxr-toolkit/internal/logging"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestNormalize_StretchesRange(t *testing.T) {
	src := image.NewGray16(image.Rect(0, 0, 2, 1))
	src.SetGray16(0, 0, color.Gray16{Y: 1000})
	src.SetGray16(1, 0, color.Gray16{Y: 3000})

	out := Normalize(src)
	assert.Equal(t, uint8(0), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), out.GrayAt(1, 0).Y)
}

func TestNormalize_FlatImage(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 3))
	out := Normalize(src)
	assert.Equal(t, 3, out.Bounds().Dx())
	assert.Equal(t, uint8(0), out.GrayAt(1, 1).Y)
}

func TestFit(t *testing.T) {
	big := image.NewGray(image.Rect(0, 0, 2048, 1024))
	out := Fit(big, 1024)
	assert.Equal(t, 1024, out.Bounds().Dx())
	assert.Equal(t, 512, out.Bounds().Dy())

	small := image.NewGray(image.Rect(0, 0, 100, 50))
	assert.Same(t, small, Fit(small, 1024))
}

func TestScaleBox(t *testing.T) {
	b := domain.BoundingBox{X1: 0, Y1: 0, X2: domain.BoundingBoxMaxExtent, Y2: domain.BoundingBoxMaxExtent / 2}
	r := ScaleBox(b, 1000, 800)
	assert.Equal(t, image.Rect(0, 0, 1000, 400), r)
}

func TestHeatColor(t *testing.T) {
	assert.Equal(t, color.RGBA{A: 255}, HeatColor(0))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, HeatColor(1))
	mid := HeatColor(0.5)
	assert.Equal(t, uint8(255), mid.R)
	assert.Equal(t, uint8(0), mid.B)
}

func TestTintMask(t *testing.T) {
	c := NewCanvas(4, 4, color.RGBA{A: 255})
	mask := image.NewGray(image.Rect(0, 0, 4, 4))
	mask.SetGray(1, 1, color.Gray{Y: 255})
	mask.SetGray(2, 2, color.Gray{Y: 100})

	covered := TintMask(c, mask, color.RGBA{R: 255, A: 255})
	assert.Equal(t, 1, covered)
	assert.Greater(t, c.RGBAAt(1, 1).R, uint8(0))
	assert.Equal(t, uint8(0), c.RGBAAt(2, 2).R)
}

func TestDrawScanpath(t *testing.T) {
	c := NewCanvas(200, 200, color.RGBA{A: 255})
	fixations := []domain.Fixation{
		{X: 0.25, Y: 0.25, Duration: 0.2},
		{X: 0.75, Y: 0.75, Duration: 0.4},
	}
	DrawScanpath(c, fixations)

	assert.Equal(t, green.G, c.RGBAAt(50, 50).G, "start marker")
	assert.Equal(t, red.R, c.RGBAAt(150, 150).R, "end marker")

	untouched := NewCanvas(10, 10, color.RGBA{A: 255})
	DrawScanpath(untouched, nil)
	assert.Equal(t, color.RGBA{A: 255}, untouched.RGBAAt(5, 5))
}

func TestCharts(t *testing.T) {
	bar, err := ConditionDistribution("Conditions", []ConditionCount{
		{Condition: domain.CHF, Count: 12},
		{Condition: domain.Normal, Count: 0},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(bar, pngMagic))

	line, err := FixationTimeline("Timeline", []domain.Fixation{{Elapsed: 0.5, Duration: 0.2}})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(line, pngMagic))

	_, err = ConditionDistribution("empty", nil)
	assert.Error(t, err)
	_, err = FixationTimeline("empty", nil)
	assert.Error(t, err)
}

func TestLoadDICOM_NotDICOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.dcm")
	require.NoError(t, os.WriteFile(path, []byte("not a dicom file"), 0644))

	_, err := LoadDICOM(path)
	var de *domain.DatasetError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrRender, de.Code)
}

func writeMask(t *testing.T, path string) {
	t.Helper()
	mask := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 16; y < 48; y++ {
		for x := 8; x < 30; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, mask))
}

func TestCasePlotter_PlotCase(t *testing.T) {
	root := t.TempDir()
	layout := dataset.NewLayout(root)
	writeMask(t, layout.MaskPath("case-1", "left_lung"))
	out := filepath.Join(t.TempDir(), "plots")

	p := NewCasePlotter(logging.Discard(), layout, filepath.Join(root, "dicom"), out)
	written, err := p.PlotCase(CaseFigures{
		Case: &domain.Case{DicomID: "case-1", Gender: "F", AgeBracket: "60 - 70"},
		Fixations: []domain.Fixation{
			{X: 0.3, Y: 0.4, Duration: 0.2, Elapsed: 0.1},
			{X: 0.6, Y: 0.5, Duration: 0.5, Elapsed: 0.6},
		},
		Boxes: []domain.BoundingBox{{Region: "left_lung", X1: 100, Y1: 200, X2: 900, Y2: 1800}},
	})
	require.NoError(t, err)

	var names []string
	for _, w := range written {
		names = append(names, filepath.Base(w))
	}
	assert.ElementsMatch(t, []string{AnatomicalRegionsFile, BoundingBoxesFile, ScanpathFile, CombinedFile, TimelineFile}, names)

	f, err := os.Open(filepath.Join(p.CaseDir("case-1"), CombinedFile))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, MaxSide, cfg.Width)
}

func TestCasePlotter_NoAuxiliaryData(t *testing.T) {
	root := t.TempDir()
	p := NewCasePlotter(logging.Discard(), dataset.NewLayout(root), root, t.TempDir())

	written, err := p.PlotCase(CaseFigures{Case: &domain.Case{DicomID: "bare"}})
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.Equal(t, CombinedFile, filepath.Base(written[0]))

	path, err := p.PlotDistribution("Sample", []ConditionCount{{Condition: domain.CHF, Count: 3}})
	require.NoError(t, err)
	assert.Equal(t, DistributionFile, filepath.Base(path))
}
