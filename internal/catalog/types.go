// Package catalog keeps a registry of sampling runs so a sample directory can be traced
// back to the seed, size and source it was drawn with.
package catalog

import (
	"context"
	"io"
	"time"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// Store defines the interface for sampling run storage operations.
type Store interface {
	// SaveRun stores a run. Saving an existing id replaces it.
	SaveRun(ctx context.Context, run *domain.SamplingRun) error

	// GetRun returns the run with the given id, or nil when absent.
	GetRun(ctx context.Context, id string) (*domain.SamplingRun, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]*domain.SamplingRun, error)

	Count(ctx context.Context) (int64, error)

	// DeleteRun removes a run; an unknown id yields domain.ErrNotFound.
	DeleteRun(ctx context.Context, id string) error

	// ExportJSON writes every run to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON loads runs written by ExportJSON. Known ids are skipped.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Close() error
}

// RunExport is the JSON export format.
type RunExport struct {
	Version    string                `json:"version"`
	ExportedAt time.Time             `json:"exported_at"`
	Count      int                   `json:"count"`
	Runs       []*domain.SamplingRun `json:"runs"`
}
