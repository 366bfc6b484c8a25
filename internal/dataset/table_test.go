package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/egd-cxr-toolkit/internal/dataset/datasettest"
	"github.com/egd-cxr-toolkit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader(t *testing.T) {
	h := NewHeader([]string{"\ufeffDICOM_ID", "FPOGX", "Time (in secs)"})

	assert.Equal(t, "DICOM_ID", h.Columns()[0])
	col, err := h.IDColumn()
	require.NoError(t, err)
	assert.Equal(t, 0, col)
	assert.True(t, h.Has("Time (in secs)"))
	assert.Equal(t, "0.5", h.Get([]string{"a", " 0.5 "}, "FPOGX"))
	assert.Equal(t, "", h.Get([]string{"a"}, "Time (in secs)"))

	_, err = NewHeader([]string{"x", "y"}).IDColumn()
	assert.Error(t, err)
}

func TestOpenTable_MissingFile(t *testing.T) {
	_, err := OpenTable("fixation table", filepath.Join(t.TempDir(), "fixations.csv"))
	require.Error(t, err)
	assert.True(t, domain.IsMissingFile(err))
}

func TestForEachChunk_PreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixations.csv")
	var rows [][]string
	for i := 0; i < 25; i++ {
		rows = append(rows, datasettest.GazeRow("case-a", i))
	}
	datasettest.WriteCSV(t, path, datasettest.GazeColumns, rows)

	var chunks []int
	var counts []string
	err := ForEachChunk(context.Background(), "fixation table", path, 10, func(h Header, chunk [][]string) error {
		chunks = append(chunks, len(chunk))
		for _, r := range chunk {
			counts = append(counts, h.Get(r, "CNT"))
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{10, 10, 5}, chunks)
	require.Len(t, counts, 25)
	assert.Equal(t, "1", counts[0])
	assert.Equal(t, "25", counts[24])
}

func TestForEachChunk_Cancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixations.csv")
	datasettest.WriteCSV(t, path, datasettest.GazeColumns, [][]string{datasettest.GazeRow("a", 0)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ForEachChunk(ctx, "fixation table", path, 10, func(Header, [][]string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProbeIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixations.csv")
	rows := [][]string{
		datasettest.GazeRow("a", 0),
		datasettest.GazeRow("b", 0),
		datasettest.GazeRow("a", 1),
		datasettest.GazeRow("c", 0),
	}
	datasettest.WriteCSV(t, path, datasettest.GazeColumns, rows)

	tests := []struct {
		name     string
		limit    int
		expected []string
		absent   []string
	}{
		{"prefix of two rows", 2, []string{"a", "b"}, []string{"c"}},
		{"full scan", 0, []string{"a", "b", "c"}, nil},
		{"limit beyond table", 100, []string{"a", "b", "c"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := ProbeIDs(context.Background(), "fixation table", path, tt.limit, 1)
			require.NoError(t, err)
			for _, id := range tt.expected {
				assert.Contains(t, ids, id)
			}
			for _, id := range tt.absent {
				assert.NotContains(t, ids, id)
			}
		})
	}
}

func TestFilterTable(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "eye_gaze.csv")
	var rows [][]string
	for i := 0; i < 30; i++ {
		rows = append(rows, datasettest.GazeRow([]string{"a", "b", "c"}[i%3], i))
	}
	datasettest.WriteCSV(t, src, datasettest.GazeColumns, rows)
	before, err := os.ReadFile(src)
	require.NoError(t, err)

	dst := filepath.Join(dir, "out", "eye_gaze_sample.csv")
	n, err := FilterTable(context.Background(), "eye gaze table", src, dst, map[string]struct{}{"a": {}, "c": {}}, 7)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	out := datasettest.ReadCSV(t, dst)
	assert.Equal(t, datasettest.GazeColumns, out[0])
	require.Len(t, out, 21)
	for _, r := range out[1:] {
		assert.NotEqual(t, "b", r[0])
	}
	// Source order survives chunking
	assert.Equal(t, "1", out[1][1])
	assert.Equal(t, "3", out[2][1])

	after, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, before, after, "source must not be modified")
}

func TestFilterTable_NoMatchesWritesHeader(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bounding_boxes.csv")
	datasettest.WriteCSV(t, src, datasettest.BoxColumns, nil)

	dst := filepath.Join(dir, "bounding_boxes_sample.csv")
	n, err := FilterTable(context.Background(), "bounding box table", src, dst, map[string]struct{}{"a": {}}, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, [][]string{datasettest.BoxColumns}, datasettest.ReadCSV(t, dst))
}

func TestWriteTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "master_sheet_sample.csv")
	require.NoError(t, WriteTable(path, []string{"dicom_id", "CHF"}, [][]string{{"a", "1"}}))
	assert.Equal(t, [][]string{{"dicom_id", "CHF"}, {"a", "1"}}, datasettest.ReadCSV(t, path))
}

func TestWriteTable_DeviceFull(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	err := WriteTable("/dev/full", []string{"dicom_id", "CHF"}, [][]string{{"a", "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/full")
}
