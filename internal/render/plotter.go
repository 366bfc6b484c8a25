package render

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/egd-cxr-toolkit/internal/dataset"
	"github.com/egd-cxr-toolkit/internal/domain"
)

// Figure file names written per case
const (
	AnatomicalRegionsFile = "anatomical_regions.png"
	BoundingBoxesFile     = "bounding_boxes.png"
	ScanpathFile          = "gaze_scanpath.png"
	CombinedFile          = "combined.png"
	TimelineFile          = "fixation_timeline.png"
	DistributionFile      = "condition_distribution.png"
)

// CaseFigures are the inputs of one case's figures.
type CaseFigures struct {
	Case      *domain.Case
	Fixations []domain.Fixation
	Boxes     []domain.BoundingBox
}

// CasePlotter renders per-case figures into outputDir/<dicom_id>/.
type CasePlotter struct {
	logger    *logrus.Logger
	layout    dataset.Layout
	dicomDir  string
	outputDir string
}

// NewCasePlotter creates a plotter. Masks are read from the dataset layout and
// radiographs from dicomDir/<dicom_id>.dcm.
func NewCasePlotter(logger *logrus.Logger, layout dataset.Layout, dicomDir, outputDir string) *CasePlotter {
	return &CasePlotter{
		logger:    logger,
		layout:    layout,
		dicomDir:  dicomDir,
		outputDir: outputDir,
	}
}

// CaseDir is where a case's figures go.
func (p *CasePlotter) CaseDir(dicomID string) string {
	return filepath.Join(p.outputDir, dicomID)
}

// BaseImage returns the case radiograph, or a blank canvas when the DICOM file is
// absent or unreadable.
func (p *CasePlotter) BaseImage(dicomID string) (*Canvas, bool) {
	path := filepath.Join(p.dicomDir, dicomID+".dcm")
	if _, err := os.Stat(path); err == nil {
		img, err := LoadDICOM(path)
		if err == nil {
			p.logger.WithFields(logrus.Fields{"dicom_id": dicomID, "size": fmtSize(img.Bounds())}).Debug("Loaded DICOM image")
			return CanvasFrom(img), true
		}
		p.logger.WithFields(logrus.Fields{"dicom_id": dicomID, "error": err.Error()}).Warn("Could not read DICOM, using blank canvas")
	} else {
		p.logger.WithField("dicom_id", dicomID).Info("No DICOM image, using blank canvas")
	}
	return NewCanvas(MaxSide, MaxSide, color.RGBA{40, 40, 40, 255}), false
}

// PlotCase writes the region, box, scanpath, combined and timeline figures and
// returns the paths written. Figures whose input is missing are skipped.
func (p *CasePlotter) PlotCase(fig CaseFigures) ([]string, error) {
	id := fig.Case.DicomID
	dir := p.CaseDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, domain.NewDatasetError(domain.ErrRender, "failed to create plot directory", dir, err)
	}

	base, _ := p.BaseImage(id)
	var written []string
	save := func(name string, img image.Image) error {
		path := filepath.Join(dir, name)
		if err := WritePNG(path, img); err != nil {
			return domain.NewDatasetError(domain.ErrRender, "failed to write figure", path, err)
		}
		written = append(written, path)
		return nil
	}

	regions := base.Clone()
	found := p.drawRegions(regions, id)
	if found > 0 {
		if err := save(AnatomicalRegionsFile, regions); err != nil {
			return written, err
		}
	} else {
		p.logger.WithField("dicom_id", id).Warn("No anatomical masks found")
	}

	if len(fig.Boxes) > 0 {
		boxes := base.Clone()
		DrawBoxes(boxes, fig.Boxes)
		if err := save(BoundingBoxesFile, boxes); err != nil {
			return written, err
		}
	}

	if len(fig.Fixations) > 0 {
		scan := base.Clone()
		DrawScanpath(scan, fig.Fixations)
		if err := save(ScanpathFile, scan); err != nil {
			return written, err
		}
	}

	combined := base.Clone()
	p.drawRegions(combined, id)
	DrawBoxes(combined, fig.Boxes)
	DrawScanpath(combined, fig.Fixations)
	combined.Label(10, 20, fmt.Sprintf("%s  %s  %s", id, fig.Case.Gender, fig.Case.AgeBracket), white)
	combined.Label(10, 38, fmt.Sprintf("fixations: %d  regions: %d", len(fig.Fixations), len(fig.Boxes)), white)
	if err := save(CombinedFile, combined); err != nil {
		return written, err
	}

	if len(fig.Fixations) > 0 {
		png, err := FixationTimeline("Fixation timeline: "+id, fig.Fixations)
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, TimelineFile)
		if err := WriteChart(path, png); err != nil {
			return written, domain.NewDatasetError(domain.ErrRender, "failed to write figure", path, err)
		}
		written = append(written, path)
	}

	p.logger.WithFields(logrus.Fields{
		"dicom_id": id,
		"figures":  len(written),
		"dir":      dir,
	}).Info("Rendered case figures")
	return written, nil
}

// PlotDistribution writes the condition distribution chart into the output directory.
func (p *CasePlotter) PlotDistribution(title string, counts []ConditionCount) (string, error) {
	png, err := ConditionDistribution(title, counts)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(p.outputDir, DistributionFile)
	if err := WriteChart(path, png); err != nil {
		return "", domain.NewDatasetError(domain.ErrRender, "failed to write figure", path, err)
	}
	return path, nil
}

func (p *CasePlotter) drawRegions(c *Canvas, dicomID string) int {
	found := 0
	for i, region := range domain.AnatomicalMasks {
		path := p.layout.MaskPath(dicomID, region)
		mask, err := LoadMask(path, c.W(), c.H())
		if err != nil {
			continue
		}
		col := RegionColors[region]
		TintMask(c, mask, col)
		c.Label(10, c.H()-10-18*i, region, col)
		found++
	}
	return found
}
