package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens or creates the catalog database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, domain.NewDatasetError(domain.ErrStorage, "failed to create catalog directory", dbPath, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, domain.NewDatasetError(domain.ErrStorage, "failed to open catalog", dbPath, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, domain.NewDatasetError(domain.ErrStorage, "failed to set WAL mode", dbPath, err)
	}

	store, err := NewStoreFromDB(db)
	if err != nil {
		db.Close()
		return nil, domain.NewDatasetError(domain.ErrStorage, "failed to create schema", dbPath, err)
	}
	store.dbPath = dbPath
	return store, nil
}

// NewStoreFromDB wraps an open database and ensures the schema exists.
func NewStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	if err := createSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS sampling_runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		seed INTEGER NOT NULL,
		target_size INTEGER NOT NULL,
		strategy TEXT NOT NULL,
		source_dir TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		case_ids TEXT NOT NULL,
		gaze_records INTEGER NOT NULL DEFAULT 0,
		fixation_records INTEGER NOT NULL DEFAULT 0,
		bounding_box_records INTEGER NOT NULL DEFAULT 0,
		transcripts_copied INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON sampling_runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_seed ON sampling_runs(seed);
	`

func createSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

const selectColumns = `
	SELECT id, created_at, seed, target_size, strategy, source_dir, output_dir,
		case_ids, gaze_records, fixation_records, bounding_box_records, transcripts_copied
	FROM sampling_runs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*domain.SamplingRun, error) {
	run := &domain.SamplingRun{}
	var caseIDs string

	err := s.Scan(
		&run.ID, &run.CreatedAt, &run.Seed, &run.TargetSize, &run.Strategy,
		&run.SourceDir, &run.OutputDir, &caseIDs,
		&run.GazeRecords, &run.FixationRecords, &run.BoundingBoxRecords, &run.TranscriptsCopied,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(caseIDs), &run.CaseIDs); err != nil {
		return nil, fmt.Errorf("failed to decode case ids of run %s: %w", run.ID, err)
	}
	return run, nil
}

// SaveRun inserts or replaces a run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.SamplingRun) error {
	if run.ID == "" {
		return domain.NewValidationError("id", "must not be empty", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	ids := run.CaseIDs
	if ids == nil {
		ids = []string{}
	}
	caseIDs, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode case ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sampling_runs (
			id, created_at, seed, target_size, strategy, source_dir, output_dir,
			case_ids, gaze_records, fixation_records, bounding_box_records, transcripts_copied
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.CreatedAt,
		run.Seed,
		run.TargetSize,
		run.Strategy,
		run.SourceDir,
		run.OutputDir,
		string(caseIDs),
		run.GazeRecords,
		run.FixationRecords,
		run.BoundingBoxRecords,
		run.TranscriptsCopied,
	)
	if err != nil {
		return domain.NewDatasetError(domain.ErrStorage, "failed to save run "+run.ID, s.dbPath, err)
	}
	return nil
}

// GetRun returns the run with the given id, or nil when absent.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.SamplingRun, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first with pagination.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*domain.SamplingRun, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, domain.NewDatasetError(domain.ErrStorage, "failed to query runs", s.dbPath, err)
	}
	defer rows.Close()

	var result []*domain.SamplingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// Count returns the number of recorded runs.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sampling_runs").Scan(&count)
	return count, err
}

// DeleteRun removes a run by id. Deleting an unknown id returns domain.ErrNotFound.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sampling_runs WHERE id = ?", id)
	if err != nil {
		return domain.NewDatasetError(domain.ErrStorage, "failed to delete run "+id, s.dbPath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewDatasetError(domain.ErrStorage, "failed to delete run "+id, s.dbPath, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

const maxExportLimit = 1000000

// ExportJSON writes all runs as indented JSON.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.ListRuns(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if all == nil {
		all = []*domain.SamplingRun{}
	}

	export := &RunExport{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Runs:       all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON loads an export, skipping ids already present.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export RunExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, run := range export.Runs {
		existing, err := s.GetRun(ctx, run.ID)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil {
			skipped++
			continue
		}
		if err := s.SaveRun(ctx, run); err != nil {
			return imported, skipped, err
		}
		imported++
	}
	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
