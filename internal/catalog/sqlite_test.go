package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egd-cxr-toolkit/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "catalog", "runs.db"))
	require.NoError(t, err)
	return store
}

func testRun(id string, created time.Time) *domain.SamplingRun {
	return &domain.SamplingRun{
		ID:                 id,
		CreatedAt:          created,
		Seed:               42,
		TargetSize:         50,
		Strategy:           "diverse_stratified",
		SourceDir:          "data/raw",
		OutputDir:          "data/sampling_data",
		CaseIDs:            []string{"a", "b", "c"},
		GazeRecords:        1200,
		FixationRecords:    300,
		BoundingBoxRecords: 51,
		TranscriptsCopied:  3,
	}
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "runs.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	created := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, store.SaveRun(ctx, testRun("run-1", created)))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"a", "b", "c"}, got.CaseIDs)
	assert.Equal(t, int64(42), got.Seed)
	assert.Equal(t, 1200, got.GazeRecords)
	assert.True(t, created.Equal(got.CreatedAt), "created_at %v", got.CreatedAt)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	got, err := store.GetRun(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_SaveReplaces(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	run := testRun("run-1", time.Now().UTC())
	require.NoError(t, store.SaveRun(ctx, run))
	run.CaseIDs = []string{"z"}
	require.NoError(t, store.SaveRun(ctx, run))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, got.CaseIDs)
}

func TestSQLiteStore_SaveValidation(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	err := store.SaveRun(context.Background(), &domain.SamplingRun{})
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveRun(ctx, testRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	page, err := store.ListRuns(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "run-4", page[0].ID)
	assert.Equal(t, "run-3", page[1].ID)

	rest, err := store.ListRuns(ctx, 10, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, testRun("run-1", time.Now().UTC())))
	require.NoError(t, store.DeleteRun(ctx, "run-1"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	err = store.DeleteRun(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	src := createTestStore(t)
	defer src.Close()
	ctx := context.Background()

	require.NoError(t, src.SaveRun(ctx, testRun("run-1", time.Now().UTC())))
	require.NoError(t, src.SaveRun(ctx, testRun("run-2", time.Now().UTC())))

	var buf bytes.Buffer
	require.NoError(t, src.ExportJSON(ctx, &buf))

	var export RunExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 2, export.Count)

	dst := createTestStore(t)
	defer dst.Close()
	require.NoError(t, dst.SaveRun(ctx, testRun("run-1", time.Now().UTC())))

	imported, skipped, err := dst.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)
}

func TestSQLiteStore_ExportEmpty(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(context.Background(), &buf))
	assert.Contains(t, buf.String(), `"runs": []`)
}

func TestSQLiteStore_ImportMalformed(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	_, _, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte("{not json")))
	assert.Error(t, err)
}
