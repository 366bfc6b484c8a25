package analysis

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egd-cxr-toolkit/internal/dataset"
	"github.com/egd-cxr-toolkit/internal/dataset/datasettest"
	"github.com/egd-cxr-toolkit/internal/domain"
	"github.com/egd-cxr-toolkit/internal/logging"
)

func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	datasettest.Dataset(t, root, []datasettest.Case{
		{ID: "a", Gender: "F", Conditions: []domain.Condition{domain.CHF, domain.PulmonaryEdemaHazyOpacity}, Fixations: 6, Transcript: true, Boxes: []string{"left_lung", "right_lung"}},
		{ID: "b", Gender: "M", Conditions: []domain.Condition{domain.Normal}, Fixations: 2},
		{ID: "c", Gender: "M", Conditions: []domain.Condition{domain.CHF}},
	})
	return root
}

func TestComputeGazeStats(t *testing.T) {
	fx := []domain.Fixation{
		{X: 0.2, Y: 0.3, Duration: 0.2, Elapsed: 0.5},
		{X: 0.7, Y: 0.8, Duration: 0.6, Elapsed: 1.5},
		{X: 0.5, Y: 0.1, Duration: 0.1, Elapsed: 4.0},
		{X: 0.9, Y: 0.6, Duration: 0.6, Elapsed: 3.0},
	}

	s := ComputeGazeStats(fx, 3)

	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 4.0, s.SessionDuration, 1e-9)
	assert.InDelta(t, 0.375, s.AvgDuration, 1e-9)
	assert.InDelta(t, 0.6, s.MaxDuration, 1e-9)
	assert.InDelta(t, 0.1, s.MinDuration, 1e-9)
	assert.Equal(t, 1, s.Left)
	assert.Equal(t, 3, s.Right)
	assert.Equal(t, 2, s.Upper)
	assert.Equal(t, 2, s.Lower)
	require.Len(t, s.Longest, 3)
	// ties stay in chronological order
	assert.InDelta(t, 1.5, s.Longest[0].Elapsed, 1e-9)
	assert.InDelta(t, 3.0, s.Longest[1].Elapsed, 1e-9)
	assert.InDelta(t, 0.5, s.Longest[2].Elapsed, 1e-9)
	assert.InDelta(t, 25.0, s.Share(s.Left), 1e-9)
}

func TestComputeGazeStats_Empty(t *testing.T) {
	s := ComputeGazeStats(nil, 5)
	assert.Zero(t, s.Count)
	assert.Empty(t, s.Longest)
	assert.Zero(t, s.Share(3))
}

func TestComputeGazeStats_TopBounds(t *testing.T) {
	fx := []domain.Fixation{
		{Duration: 0.2, Elapsed: 0.5},
		{Duration: 0.4, Elapsed: 1.0},
	}

	tests := []struct {
		name string
		top  int
		want int
	}{
		{"Negative", -1, 0},
		{"Zero", 0, 0},
		{"Within", 1, 1},
		{"Beyond", 10, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ComputeGazeStats(fx, tt.top)
			assert.Len(t, s.Longest, tt.want)
			assert.Equal(t, 2, s.Count)
		})
	}
}

func TestSummarizeTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	datasettest.WriteCSV(t, path, []string{"id", "value", "note"}, [][]string{
		{"x", "1", "a"},
		{"y", "2", ""},
		{"z", "", "b"},
		{"w", "3", "c"},
	})

	tests := []struct {
		name      string
		probe     int
		rows      int
		mean, std float64
		count     int
	}{
		{"all rows", 0, 4, 2, 1, 3},
		{"prefix", 2, 2, 1.5, 0.7071067811865476, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := SummarizeTable(context.Background(), "table", path, tt.probe)
			require.NoError(t, err)
			assert.Equal(t, tt.rows, s.Rows)
			require.Len(t, s.Columns, 3)

			id, value, note := s.Columns[0], s.Columns[1], s.Columns[2]
			assert.False(t, id.Numeric)
			assert.True(t, value.Numeric)
			assert.Equal(t, tt.count, value.Count)
			assert.InDelta(t, tt.mean, value.Mean, 1e-9)
			assert.InDelta(t, tt.std, value.Std, 1e-9)
			assert.InDelta(t, 1, value.Min, 1e-9)
			assert.False(t, note.Numeric)
		})
	}
}

func TestSummarizeTable_Missing(t *testing.T) {
	_, err := SummarizeTable(context.Background(), "table", filepath.Join(t.TempDir(), "nope.csv"), 0)
	assert.True(t, domain.IsMissingFile(err))
}

func TestConditionPrevalence(t *testing.T) {
	root := fixture(t)
	index, err := dataset.LoadCaseIndex(context.Background(), filepath.Join(root, dataset.MasterSheetFile))
	require.NoError(t, err)

	got := ConditionPrevalence(index.Cases, []domain.Condition{domain.CHF, domain.Normal, domain.Hyperaeration})

	require.Len(t, got, 2, "conditions without a column are skipped")
	assert.Equal(t, domain.CHF, got[0].Condition)
	assert.Equal(t, 2, got[0].Count)
	assert.InDelta(t, 66.666, got[0].Percent, 0.01)
	assert.Equal(t, 1, got[1].Count)
}

func TestPrintTree(t *testing.T) {
	root := fixture(t)
	var buf bytes.Buffer

	require.NoError(t, PrintTree(&buf, root, 1))
	out := buf.String()

	assert.Contains(t, out, "├── audio_segmentation_transcripts/")
	assert.Contains(t, out, "└── master_sheet.csv (")
	assert.NotContains(t, out, "transcript.json", "depth limit")

	buf.Reset()
	require.NoError(t, PrintTree(&buf, root, 3))
	assert.Contains(t, buf.String(), "transcript.json")

	assert.Error(t, PrintTree(&buf, filepath.Join(root, "missing"), 1))
}

func TestExplorer_Explore(t *testing.T) {
	root := fixture(t)
	require.NoError(t, os.Remove(filepath.Join(root, dataset.EyeGazeFile)))

	var buf bytes.Buffer
	e := NewExplorer(logging.Discard(), dataset.NewLayout(root), DefaultProbeRows, 2)
	require.NoError(t, e.Explore(context.Background(), &buf))

	out := buf.String()
	assert.Contains(t, out, "master_sheet.csv\n")
	assert.Contains(t, out, "Rows probed: 3")
	assert.Contains(t, out, "eye_gaze.csv: not found")
	assert.Contains(t, out, "Finding prevalence (3 cases)")
	assert.Contains(t, out, "CHF (Congestive Heart Failure)")
}

func TestCaseAnalyzer_Analyze(t *testing.T) {
	root := fixture(t)
	layout := dataset.NewLayout(root)
	index, err := dataset.LoadCaseIndex(context.Background(), layout.MasterSheet())
	require.NoError(t, err)
	cache, err := dataset.NewFixationCache(layout.Fixations(), 4, 0)
	require.NoError(t, err)
	a := NewCaseAnalyzer(logging.Discard(), layout, index, cache)

	r, err := a.Analyze(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, r.Boxes, 2)
	assert.Equal(t, 6, r.Gaze.Count)
	assert.Len(t, r.Gaze.Longest, 5)
	assert.True(t, r.HasTranscripts)
	assert.Equal(t, []string{"full_text", "time_stamped_text"}, r.TranscriptKeys)
	require.Len(t, r.TranscriptFiles, 1)
	assert.Equal(t, "Transcript", r.TranscriptFiles[0].Kind)

	var buf bytes.Buffer
	r.Render(&buf)
	out := buf.String()
	for _, want := range []string{
		"Detailed Analysis for Case: a",
		"Diagnosis 1: Heart failure (ICD-10: I50.9)",
		"  + CHF (Congestive Heart Failure)",
		"  + Pulmonary Edema",
		"  - Normal",
		"  Edema: Positive",
		"Clinical Indication: dyspnea",
		"Total anatomical regions: 2",
		"Total fixations: 6",
		"Session duration: 2.50 seconds",
		"  * Transcript: transcript.json",
		"This case represents a abnormal chest X-ray",
		"Audio recording: Available",
	} {
		assert.Contains(t, out, want)
	}

	r, err = a.Analyze(context.Background(), "c")
	require.NoError(t, err)
	buf.Reset()
	r.Render(&buf)
	assert.Contains(t, buf.String(), "No gaze data available for this case.")
	assert.Contains(t, buf.String(), "No audio transcript directory found for this case.")
	assert.True(t, strings.HasPrefix(buf.String(), "Detailed Analysis for Case: c"))
}

func TestCaseAnalyzer_UnknownCase(t *testing.T) {
	root := fixture(t)
	layout := dataset.NewLayout(root)
	index, err := dataset.LoadCaseIndex(context.Background(), layout.MasterSheet())
	require.NoError(t, err)
	cache, err := dataset.NewFixationCache(layout.Fixations(), 1, 0)
	require.NoError(t, err)

	_, err = NewCaseAnalyzer(logging.Discard(), layout, index, cache).Analyze(context.Background(), "zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChexpertName(t *testing.T) {
	assert.Equal(t, "Pleural Effusion", chexpertName("pleural_effusion__chx"))
	assert.Equal(t, "Edema", chexpertName("edema__chx"))
}
