package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egd-cxr-toolkit/internal/dataset"
	"github.com/egd-cxr-toolkit/internal/dataset/datasettest"
	"github.com/egd-cxr-toolkit/internal/domain"
	"github.com/egd-cxr-toolkit/internal/logging"
)

func TestCompletenessValidator_IsComplete(t *testing.T) {
	root := t.TempDir()
	datasettest.Dataset(t, root, []datasettest.Case{
		{ID: "complete", Fixations: 3, Transcript: true},
		{ID: "no-transcript", Fixations: 3},
		{ID: "no-gaze", Transcript: true},
	})

	v, err := NewCompletenessValidator(context.Background(), logging.Discard(), dataset.NewLayout(root), ValidatorOptions{ProbeRows: 0})
	require.NoError(t, err)

	tests := []struct {
		id   string
		want bool
	}{
		{"complete", true},
		{"no-transcript", false},
		{"no-gaze", false},
		{"not-in-index", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, v.IsComplete(tt.id))
		})
	}
}

func TestCompletenessValidator_FixationRowsRequired(t *testing.T) {
	root := t.TempDir()
	datasettest.Dataset(t, root, []datasettest.Case{{ID: "a", Fixations: 2, Transcript: true}})
	// Drop the case from the fixation table only
	datasettest.WriteCSV(t, filepath.Join(root, dataset.FixationsFile), datasettest.GazeColumns, nil)

	v, err := NewCompletenessValidator(context.Background(), logging.Discard(), dataset.NewLayout(root), ValidatorOptions{})
	require.NoError(t, err)
	assert.False(t, v.IsComplete("a"))
}

func TestCompletenessValidator_ProbePrefixFalseNegative(t *testing.T) {
	root := t.TempDir()
	// Rows are interleaved round-robin: "early" owns rows 1,3,5... and "late" only
	// appears from row 2 on. A one-row probe sees "early" alone.
	datasettest.Dataset(t, root, []datasettest.Case{
		{ID: "early", Fixations: 4, Transcript: true},
		{ID: "late", Fixations: 4, Transcript: true},
	})
	layout := dataset.NewLayout(root)

	prefix, err := NewCompletenessValidator(context.Background(), logging.Discard(), layout, ValidatorOptions{ProbeRows: 1})
	require.NoError(t, err)
	assert.True(t, prefix.IsComplete("early"))
	assert.False(t, prefix.IsComplete("late"), "rows beyond the probe prefix are not seen")

	full, err := NewCompletenessValidator(context.Background(), logging.Discard(), layout, ValidatorOptions{ProbeRows: 0})
	require.NoError(t, err)
	assert.True(t, full.IsComplete("late"))
}

func TestCompletenessValidator_MissingSources(t *testing.T) {
	root := t.TempDir()
	datasettest.Dataset(t, root, []datasettest.Case{{ID: "a", Fixations: 2, Transcript: true}})
	require.NoError(t, os.Remove(filepath.Join(root, dataset.EyeGazeFile)))

	v, err := NewCompletenessValidator(context.Background(), logging.Discard(), dataset.NewLayout(root), ValidatorOptions{})
	require.NoError(t, err)
	assert.False(t, v.IsComplete("a"))
}

func TestCompletenessValidator_FilterComplete(t *testing.T) {
	root := t.TempDir()
	datasettest.Dataset(t, root, []datasettest.Case{
		{ID: "a", Fixations: 1, Transcript: true},
		{ID: "b", Fixations: 1},
		{ID: "c", Fixations: 1, Transcript: true},
	})
	v, err := NewCompletenessValidator(context.Background(), logging.Discard(), dataset.NewLayout(root), ValidatorOptions{})
	require.NoError(t, err)

	got := v.FilterComplete([]*domain.Case{newCase("c"), newCase("b"), newCase("a")})
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].DicomID)
	assert.Equal(t, "a", got[1].DicomID)
}
