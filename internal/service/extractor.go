package service

import (
	"context"
	"fmt"
	"path/filepath"

	cp "github.com/otiai10/copy"
	"github.com/sirupsen/logrus"

	"github.com/egd-cxr-toolkit/internal/dataset"
	"github.com/egd-cxr-toolkit/internal/domain"
)

// Output file names of a sample directory
const (
	MasterSampleFile   = "master_sheet_sample.csv"
	EyeGazeSampleFile  = "eye_gaze_sample.csv"
	FixationSampleFile = "fixations_sample.csv"
	BoxSampleFile      = "bounding_boxes_sample.csv"
)

// ExtractionResult counts what was written for a sample.
type ExtractionResult struct {
	TranscriptsCopied  int
	TranscriptsMissing []string
	GazeRecords        int
	FixationRecords    int
	BoundingBoxRecords int
}

// SubsetExtractor writes the auxiliary data of a sample into an output directory.
// Source files are only read.
type SubsetExtractor struct {
	logger    *logrus.Logger
	source    dataset.Layout
	outputDir string
	chunkSize int
}

// NewSubsetExtractor creates an extractor reading from source and writing to outputDir.
func NewSubsetExtractor(logger *logrus.Logger, source dataset.Layout, outputDir string, chunkSize int) *SubsetExtractor {
	if chunkSize <= 0 {
		chunkSize = dataset.DefaultChunkSize
	}
	return &SubsetExtractor{
		logger:    logger,
		source:    source,
		outputDir: outputDir,
		chunkSize: chunkSize,
	}
}

// OutputPath joins name onto the output directory.
func (e *SubsetExtractor) OutputPath(name string) string {
	return filepath.Join(e.outputDir, name)
}

// Extract writes the master sheet rows, transcripts, gaze, fixation and bounding box
// subsets of the sample.
func (e *SubsetExtractor) Extract(ctx context.Context, header dataset.Header, sample *domain.SampleSet) (*ExtractionResult, error) {
	result := &ExtractionResult{}
	ids := sample.IDSet()

	// Step 1: master sheet rows in selection order
	rows := make([][]string, 0, len(sample.Cases))
	for _, c := range sample.Cases {
		rows = append(rows, c.Row)
	}
	if err := dataset.WriteTable(e.OutputPath(MasterSampleFile), header.Columns(), rows); err != nil {
		return nil, err
	}

	// Step 2: transcript directories
	for _, c := range sample.Cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		copied, err := e.copyTranscripts(c.DicomID)
		if err != nil {
			return nil, err
		}
		if copied {
			result.TranscriptsCopied++
		} else {
			result.TranscriptsMissing = append(result.TranscriptsMissing, c.DicomID)
		}
	}
	e.logger.WithField("count", result.TranscriptsCopied).Info("Copied transcript directories")

	// Step 3: streamed table filters
	var err error
	if result.GazeRecords, err = e.filter(ctx, "eye gaze table", e.source.EyeGaze(), EyeGazeSampleFile, ids); err != nil {
		return nil, err
	}
	if result.FixationRecords, err = e.filter(ctx, "fixation table", e.source.Fixations(), FixationSampleFile, ids); err != nil {
		return nil, err
	}
	if result.BoundingBoxRecords, err = e.filter(ctx, "bounding box table", e.source.BoundingBoxes(), BoxSampleFile, ids); err != nil {
		return nil, err
	}

	return result, nil
}

func (e *SubsetExtractor) copyTranscripts(dicomID string) (bool, error) {
	src := e.source.TranscriptDir(dicomID)
	if !dataset.DirExists(src) {
		e.logger.WithField("dicom_id", dicomID).Warn("No transcript directory, skipping")
		return false, nil
	}
	dst := filepath.Join(e.outputDir, dataset.TranscriptsDir, dicomID)
	if err := cp.Copy(src, dst); err != nil {
		return false, fmt.Errorf("failed to copy transcripts for %s: %w", dicomID, err)
	}
	return true, nil
}

func (e *SubsetExtractor) filter(ctx context.Context, what, src, name string, ids map[string]struct{}) (int, error) {
	n, err := dataset.FilterTable(ctx, what, src, e.OutputPath(name), ids, e.chunkSize)
	if err != nil {
		return 0, fmt.Errorf("failed to extract %s: %w", what, err)
	}
	e.logger.WithFields(logrus.Fields{
		"table":   what,
		"records": n,
	}).Info("Extracted records")
	return n, nil
}
