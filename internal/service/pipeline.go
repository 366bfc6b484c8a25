package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/egd-cxr-toolkit/internal/dataset"
	"github.com/egd-cxr-toolkit/internal/domain"
)

// RunRecorder persists a summary of each completed sampling run.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *domain.SamplingRun) error
}

// PipelineResult is everything a sampling run produced.
type PipelineResult struct {
	Run          *domain.SamplingRun
	Sample       *domain.SampleSet
	Extraction   *ExtractionResult
	Metadata     *SampleMetadata
	MetadataPath string
	ReportPath   string
}

// SamplingPipeline loads the case index, selects a stratified sample of complete
// cases, extracts its auxiliary data, and writes metadata and the summary report.
type SamplingPipeline struct {
	logger    *logrus.Logger
	source    dataset.Layout
	outputDir string
	config    domain.SamplingConfig
	recorder  RunRecorder
	now       func() time.Time
}

// NewSamplingPipeline creates a pipeline. recorder may be nil.
func NewSamplingPipeline(logger *logrus.Logger, paths domain.PathConfig, config domain.SamplingConfig, recorder RunRecorder) *SamplingPipeline {
	return &SamplingPipeline{
		logger:    logger,
		source:    dataset.NewLayout(paths.Raw),
		outputDir: paths.SamplingData,
		config:    config,
		recorder:  recorder,
		now:       time.Now,
	}
}

// Run executes the pipeline end to end.
func (p *SamplingPipeline) Run(ctx context.Context) (*PipelineResult, error) {
	runID := uuid.New().String()
	log := p.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"source": p.source.Root,
		"output": p.outputDir,
	})
	log.Info("Starting EGD-CXR dataset sampling")

	// Step 1: every source table must exist before anything is written
	required := []struct{ what, path string }{
		{"master sheet", p.source.MasterSheet()},
		{"eye gaze table", p.source.EyeGaze()},
		{"fixation table", p.source.Fixations()},
		{"bounding box table", p.source.BoundingBoxes()},
	}
	for _, r := range required {
		if err := dataset.RequireFile(r.what, r.path); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return nil, domain.NewDatasetError(domain.ErrStorage, "failed to create output directory", p.outputDir, err)
	}

	// Step 2: case index, with flags parsed for every configured condition
	samplerCfg := SamplerConfigFrom(p.config)
	index, err := dataset.LoadCaseIndex(ctx, p.source.MasterSheet(), samplerCfg.Conditions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to load master sheet: %w", err)
	}
	log.WithField("cases", len(index.Cases)).Info("Loaded master sheet")

	// Step 3: completeness filter
	validator, err := NewCompletenessValidator(ctx, p.logger, p.source, ValidatorOptions{
		ProbeRows: p.config.ProbeRows,
		ChunkSize: p.config.ChunkSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to index auxiliary data: %w", err)
	}
	complete := validator.FilterComplete(index.Cases)

	// Step 4: stratified selection over the conditions the sheet actually carries
	configured := samplerCfg.Conditions()
	samplerCfg.Primary = index.AvailableConditions(samplerCfg.Primary)
	samplerCfg.Secondary = index.AvailableConditions(samplerCfg.Secondary)
	for _, cond := range configured {
		if !index.HasCondition(cond) {
			log.WithField("condition", string(cond)).Warn("Condition column not in master sheet, skipping")
		}
	}
	sample := NewStratifiedSampler(p.logger, samplerCfg).Sample(complete)

	// Step 5: subsets
	extractor := NewSubsetExtractor(p.logger, p.source, p.outputDir, p.config.ChunkSize)
	extraction, err := extractor.Extract(ctx, index.Header, sample)
	if err != nil {
		return nil, err
	}

	// Step 6: metadata and report
	md := BuildMetadata(sample, samplerCfg.Conditions(), extraction, runID, p.now())
	mdPath, err := WriteMetadata(p.outputDir, md)
	if err != nil {
		return nil, err
	}
	reportPath, err := WriteReport(p.outputDir, md)
	if err != nil {
		return nil, err
	}

	run := &domain.SamplingRun{
		ID:                 runID,
		CreatedAt:          md.SampleInfo.SampleDate.UTC(),
		Seed:               sample.Seed,
		TargetSize:         sample.TargetSize,
		Strategy:           SamplingStrategy,
		SourceDir:          p.source.Root,
		OutputDir:          p.outputDir,
		CaseIDs:            sample.IDs(),
		GazeRecords:        extraction.GazeRecords,
		FixationRecords:    extraction.FixationRecords,
		BoundingBoxRecords: extraction.BoundingBoxRecords,
		TranscriptsCopied:  extraction.TranscriptsCopied,
	}

	// Step 7: registry
	if p.recorder != nil {
		if err := p.recorder.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record sampling run: %w", err)
		}
	}

	log.WithFields(logrus.Fields{
		"studies":     len(sample.Cases),
		"transcripts": extraction.TranscriptsCopied,
		"gaze":        extraction.GazeRecords,
		"fixations":   extraction.FixationRecords,
		"boxes":       extraction.BoundingBoxRecords,
	}).Info("Sampling completed")

	return &PipelineResult{
		Run:          run,
		Sample:       sample,
		Extraction:   extraction,
		Metadata:     md,
		MetadataPath: mdPath,
		ReportPath:   reportPath,
	}, nil
}
