package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/egd-cxr-toolkit/internal/dataset"
	"github.com/egd-cxr-toolkit/internal/domain"
)

const topFixations = 5

// TranscriptFile is one entry of a case's transcript directory.
type TranscriptFile struct {
	Name string
	Kind string
}

// CaseReport is everything known about one case.
type CaseReport struct {
	Case            *domain.Case
	Boxes           []domain.BoundingBox
	Gaze            GazeStats
	TranscriptDir   string
	HasTranscripts  bool
	TranscriptFiles []TranscriptFile
	TranscriptKeys  []string
}

// CaseAnalyzer builds case reports from the raw dataset.
type CaseAnalyzer struct {
	logger    *logrus.Logger
	layout    dataset.Layout
	index     *dataset.CaseIndex
	fixations domain.FixationSource
}

// NewCaseAnalyzer creates an analyzer over a loaded case index.
func NewCaseAnalyzer(logger *logrus.Logger, layout dataset.Layout, index *dataset.CaseIndex, fixations domain.FixationSource) *CaseAnalyzer {
	return &CaseAnalyzer{
		logger:    logger,
		layout:    layout,
		index:     index,
		fixations: fixations,
	}
}

// Analyze collects the case row, bounding boxes, fixations and transcript listing.
func (a *CaseAnalyzer) Analyze(ctx context.Context, dicomID string) (*CaseReport, error) {
	c, ok := a.index.Get(dicomID)
	if !ok {
		return nil, fmt.Errorf("case %s: %w", dicomID, domain.ErrNotFound)
	}

	boxes, err := dataset.LoadBoundingBoxes(ctx, a.layout.BoundingBoxes(), dicomID)
	if err != nil {
		if !domain.IsMissingFile(err) {
			return nil, fmt.Errorf("failed to load bounding boxes: %w", err)
		}
		a.logger.WithError(err).Warn("Bounding boxes unavailable")
	}
	fixations, err := a.fixations.CaseFixations(ctx, dicomID)
	if err != nil {
		if !domain.IsMissingFile(err) {
			return nil, fmt.Errorf("failed to load fixations: %w", err)
		}
		a.logger.WithError(err).Warn("Fixations unavailable")
	}

	report := &CaseReport{
		Case:          c,
		Boxes:         boxes,
		Gaze:          ComputeGazeStats(fixations, topFixations),
		TranscriptDir: a.layout.TranscriptDir(dicomID),
	}
	a.listTranscripts(report)

	a.logger.WithFields(logrus.Fields{
		"dicom_id":  dicomID,
		"fixations": report.Gaze.Count,
		"boxes":     len(boxes),
	}).Debug("Analyzed case")
	return report, nil
}

func (a *CaseAnalyzer) listTranscripts(r *CaseReport) {
	entries, err := os.ReadDir(r.TranscriptDir)
	if err != nil {
		return
	}
	r.HasTranscripts = true
	for _, e := range entries {
		r.TranscriptFiles = append(r.TranscriptFiles, TranscriptFile{Name: e.Name(), Kind: fileKind(e.Name())})
	}

	data, err := os.ReadFile(filepath.Join(r.TranscriptDir, dataset.TranscriptFile))
	if err != nil {
		return
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		a.logger.WithField("dicom_id", r.Case.DicomID).Warn("Could not decode transcript")
		return
	}
	for k := range doc {
		r.TranscriptKeys = append(r.TranscriptKeys, k)
	}
	sort.Strings(r.TranscriptKeys)
}

func fileKind(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3", ".wav":
		return "Audio file"
	case ".json":
		return "Transcript"
	case ".png":
		return "Anatomical image"
	case ".html":
		return "Study info"
	default:
		return ""
	}
}

func heading(w io.Writer, n int, title string) {
	fmt.Fprintf(w, "\n%d. %s\n%s\n", n, title, strings.Repeat("-", 40))
}

// Render writes the report as text.
func (r *CaseReport) Render(w io.Writer) {
	c := r.Case
	fmt.Fprintf(w, "Detailed Analysis for Case: %s\n%s\n", c.DicomID, strings.Repeat("=", 80))

	heading(w, 1, "PATIENT & STUDY INFORMATION")
	fmt.Fprintf(w, "DICOM ID: %s\n", c.DicomID)
	fmt.Fprintf(w, "Patient ID: %s\n", c.PatientID)
	fmt.Fprintf(w, "Study ID: %s\n", c.StudyID)
	fmt.Fprintf(w, "Stay ID: %s\n", c.StayID)
	fmt.Fprintf(w, "Gender: %s\n", c.Gender)
	fmt.Fprintf(w, "Age: %s\n", c.AgeBracket)
	fmt.Fprintf(w, "Image Path: %s\n", c.ImagePath)

	heading(w, 2, "IMAGE PROCESSING INFORMATION")
	fmt.Fprintf(w, "Top Padding: %d pixels\n", c.Padding.Top)
	fmt.Fprintf(w, "Bottom Padding: %d pixels\n", c.Padding.Bottom)
	fmt.Fprintf(w, "Left Padding: %d pixels\n", c.Padding.Left)
	fmt.Fprintf(w, "Right Padding: %d pixels\n", c.Padding.Right)

	heading(w, 3, "CLINICAL DIAGNOSES")
	for i, dx := range c.Diagnoses {
		fmt.Fprintf(w, "Diagnosis %d: %s (ICD-10: %s)\n", i+1, dx.Name, dx.ICDCode)
	}

	heading(w, 4, "CLINICAL FINDINGS (Binary Labels)")
	var positive, negative []string
	for _, cond := range domain.KnownConditions {
		v, ok := c.Findings[cond]
		if !ok {
			continue
		}
		if v == 1 {
			positive = append(positive, cond.Label())
		} else {
			negative = append(negative, cond.Label())
		}
	}
	fmt.Fprintln(w, "Positive Findings:")
	for _, f := range positive {
		fmt.Fprintf(w, "  + %s\n", f)
	}
	fmt.Fprintln(w, "\nNegative Findings:")
	for _, f := range negative {
		fmt.Fprintf(w, "  - %s\n", f)
	}

	heading(w, 5, "CHEXPERT LABELS")
	for _, k := range domain.SortedKeys(c.Chexpert) {
		fmt.Fprintf(w, "  %s: %s\n", chexpertName(k), c.Chexpert[k])
	}

	heading(w, 6, "EXAMINATION INDICATION")
	fmt.Fprintf(w, "Clinical Indication: %s\n", c.ExamIndication)

	heading(w, 7, "ANATOMICAL BOUNDING BOXES")
	fmt.Fprintf(w, "Total anatomical regions: %d\n", len(r.Boxes))
	for _, b := range r.Boxes {
		fmt.Fprintf(w, "  * %s: (%.0f, %.0f) to (%.0f, %.0f)\n", b.Region, b.X1, b.Y1, b.X2, b.Y2)
	}

	heading(w, 8, "EYE GAZE ANALYSIS")
	g := r.Gaze
	if g.Count == 0 {
		fmt.Fprintln(w, "No gaze data available for this case.")
	} else {
		fmt.Fprintf(w, "Total fixations: %d\n", g.Count)
		fmt.Fprintf(w, "Session duration: %.2f seconds\n", g.SessionDuration)
		fmt.Fprintf(w, "Average fixation duration: %.3f seconds\n", g.AvgDuration)
		fmt.Fprintf(w, "Maximum fixation duration: %.3f seconds\n", g.MaxDuration)
		fmt.Fprintf(w, "Minimum fixation duration: %.3f seconds\n", g.MinDuration)
		fmt.Fprintln(w, "\nGaze Distribution:")
		fmt.Fprintf(w, "  Left side: %d fixations (%.1f%%)\n", g.Left, g.Share(g.Left))
		fmt.Fprintf(w, "  Right side: %d fixations (%.1f%%)\n", g.Right, g.Share(g.Right))
		fmt.Fprintf(w, "  Upper half: %d fixations (%.1f%%)\n", g.Upper, g.Share(g.Upper))
		fmt.Fprintf(w, "  Lower half: %d fixations (%.1f%%)\n", g.Lower, g.Share(g.Lower))
		fmt.Fprintf(w, "\nTop %d Longest Fixations:\n", len(g.Longest))
		for i, f := range g.Longest {
			fmt.Fprintf(w, "  %d. Duration: %.3fs, Position: (%.3f, %.3f), Time: %.2fs\n", i+1, f.Duration, f.X, f.Y, f.Elapsed)
		}
	}

	heading(w, 9, "AUDIO TRANSCRIPT INFORMATION")
	if !r.HasTranscripts {
		fmt.Fprintln(w, "No audio transcript directory found for this case.")
	} else {
		fmt.Fprintf(w, "Audio directory exists: %s\n", r.TranscriptDir)
		fmt.Fprintf(w, "Available files (%d):\n", len(r.TranscriptFiles))
		for _, f := range r.TranscriptFiles {
			if f.Kind != "" {
				fmt.Fprintf(w, "  * %s: %s\n", f.Kind, f.Name)
			} else {
				fmt.Fprintf(w, "  * %s\n", f.Name)
			}
		}
		if len(r.TranscriptKeys) > 0 {
			fmt.Fprintf(w, "\nTranscript structure: %v\n", r.TranscriptKeys)
		}
	}

	heading(w, 10, "SUMMARY")
	kind := "abnormal"
	if c.Has(domain.Normal) {
		kind = "normal"
	}
	fmt.Fprintf(w, "This case represents a %s chest X-ray\n", kind)
	if len(positive) > 0 {
		fmt.Fprintf(w, "Key findings: %s\n", strings.Join(positive, ", "))
	}
	fmt.Fprintf(w, "Radiologist spent %.1f seconds analyzing the image\n", g.SessionDuration)
	fmt.Fprintf(w, "Focus areas: %d anatomical regions identified\n", len(r.Boxes))
	audio := "Not available"
	if r.HasTranscripts {
		audio = "Available"
	}
	fmt.Fprintf(w, "Audio recording: %s\n", audio)
}

// chexpertName turns "pleural_effusion__chx" into "Pleural Effusion".
func chexpertName(col string) string {
	words := strings.Fields(strings.ReplaceAll(strings.TrimSuffix(col, "__chx"), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
