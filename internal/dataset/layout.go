// Package dataset reads the EGD-CXR release: the master sheet, the fixation and eye
// gaze tables, the bounding boxes, and the per-case transcript directories.
package dataset

import (
	"os"
	"path/filepath"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// File names of the EGD-CXR release
const (
	MasterSheetFile   = "master_sheet.csv"
	FixationsFile     = "fixations.csv"
	EyeGazeFile       = "eye_gaze.csv"
	BoundingBoxesFile = "bounding_boxes.csv"
	TranscriptsDir    = "audio_segmentation_transcripts"
	TranscriptFile    = "transcript.json"
)

// Layout resolves paths inside a dataset root.
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) MasterSheet() string   { return filepath.Join(l.Root, MasterSheetFile) }
func (l Layout) Fixations() string     { return filepath.Join(l.Root, FixationsFile) }
func (l Layout) EyeGaze() string       { return filepath.Join(l.Root, EyeGazeFile) }
func (l Layout) BoundingBoxes() string { return filepath.Join(l.Root, BoundingBoxesFile) }
func (l Layout) Transcripts() string   { return filepath.Join(l.Root, TranscriptsDir) }

// TranscriptDir is the per-case auxiliary directory (audio, transcript, region masks).
func (l Layout) TranscriptDir(dicomID string) string {
	return filepath.Join(l.Root, TranscriptsDir, dicomID)
}

// MaskPath is the PNG mask of an anatomical region for a case.
func (l Layout) MaskPath(dicomID, region string) string {
	return filepath.Join(l.TranscriptDir(dicomID), region+".png")
}

// RequireFile returns a MISSING_FILE error when path is not a regular file.
func RequireFile(what, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return domain.NewMissingFileError(what, path)
	}
	return nil
}

// DirExists reports whether path is an existing directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
