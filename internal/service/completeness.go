package service

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/egd-cxr-toolkit/internal/dataset"
	"github.com/egd-cxr-toolkit/internal/domain"
)

// CompletenessValidator decides whether a case has the auxiliary data needed for
// visualization: a transcript directory plus rows in both the fixation and the eye
// gaze tables.
//
// Table membership is probed over the first ProbeRows rows of each table, so a case
// whose rows all appear later is reported incomplete. ProbeRows <= 0 scans the whole
// table.
type CompletenessValidator struct {
	logger      *logrus.Logger
	transcripts map[string]struct{}
	fixationIDs map[string]struct{}
	gazeIDs     map[string]struct{}
}

// ValidatorOptions configures table probing.
type ValidatorOptions struct {
	ProbeRows int
	ChunkSize int
}

// NewCompletenessValidator indexes the transcript directories and probes the gaze
// tables once. Missing sources are logged and treated as empty.
func NewCompletenessValidator(ctx context.Context, logger *logrus.Logger, layout dataset.Layout, opts ValidatorOptions) (*CompletenessValidator, error) {
	v := &CompletenessValidator{
		logger:      logger,
		transcripts: make(map[string]struct{}),
	}

	entries, err := os.ReadDir(layout.Transcripts())
	if err != nil {
		logger.WithField("path", layout.Transcripts()).Warn("Transcript directory index unavailable")
	}
	for _, e := range entries {
		if e.IsDir() {
			v.transcripts[e.Name()] = struct{}{}
		}
	}

	if v.fixationIDs, err = v.probe(ctx, "fixation table", layout.Fixations(), opts); err != nil {
		return nil, err
	}
	if v.gazeIDs, err = v.probe(ctx, "eye gaze table", layout.EyeGaze(), opts); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"transcripts":  len(v.transcripts),
		"fixation_ids": len(v.fixationIDs),
		"gaze_ids":     len(v.gazeIDs),
		"probe_rows":   opts.ProbeRows,
	}).Debug("Completeness index built")
	return v, nil
}

func (v *CompletenessValidator) probe(ctx context.Context, what, path string, opts ValidatorOptions) (map[string]struct{}, error) {
	ids, err := dataset.ProbeIDs(ctx, what, path, opts.ProbeRows, opts.ChunkSize)
	if domain.IsMissingFile(err) {
		v.logger.WithField("path", path).Warnf("%s not found, no case can be complete", what)
		return map[string]struct{}{}, nil
	}
	return ids, err
}

// IsComplete reports whether all auxiliary data exists for the case.
func (v *CompletenessValidator) IsComplete(dicomID string) bool {
	if _, ok := v.transcripts[dicomID]; !ok {
		return false
	}
	if _, ok := v.fixationIDs[dicomID]; !ok {
		return false
	}
	_, ok := v.gazeIDs[dicomID]
	return ok
}

// FilterComplete keeps the complete cases, preserving order.
func (v *CompletenessValidator) FilterComplete(cases []*domain.Case) []*domain.Case {
	var out []*domain.Case
	for _, c := range cases {
		if v.IsComplete(c.DicomID) {
			out = append(out, c)
		}
	}
	v.logger.WithFields(logrus.Fields{
		"candidates": len(cases),
		"complete":   len(out),
	}).Info("Validated data completeness")
	return out
}
