package dataset

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// Gaze table column names
const (
	ColGazeX    = "FPOGX"
	ColGazeY    = "FPOGY"
	ColDuration = "FPOGD"
	ColElapsed  = "Time (in secs)"
)

// ParseFixation converts a fixations.csv / eye_gaze.csv row.
func ParseFixation(h Header, row []string) (domain.Fixation, error) {
	col, err := h.IDColumn()
	if err != nil {
		return domain.Fixation{}, err
	}
	f := domain.Fixation{}
	if col < len(row) {
		f.DicomID = strings.TrimSpace(row[col])
	}
	fields := []struct {
		name string
		dst  *float64
	}{
		{ColGazeX, &f.X},
		{ColGazeY, &f.Y},
		{ColDuration, &f.Duration},
		{ColElapsed, &f.Elapsed},
	}
	for _, fd := range fields {
		raw := h.Get(row, fd.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Fixation{}, fmt.Errorf("column %s: %w", fd.name, err)
		}
		*fd.dst = v
	}
	return f, nil
}

// LoadCaseFixations streams the table and returns the rows of one case in file order,
// which is the chronological order of the session.
func LoadCaseFixations(ctx context.Context, path, dicomID string, chunkSize int) ([]domain.Fixation, error) {
	var out []domain.Fixation
	err := ForEachChunk(ctx, "fixation table", path, chunkSize, func(h Header, rows [][]string) error {
		col, err := h.IDColumn()
		if err != nil {
			return domain.NewDatasetError(domain.ErrInvalidRecord, err.Error(), path, nil)
		}
		for _, row := range rows {
			if col >= len(row) || strings.TrimSpace(row[col]) != dicomID {
				continue
			}
			f, err := ParseFixation(h, row)
			if err != nil {
				return domain.NewDatasetError(domain.ErrInvalidRecord, "bad fixation row", path, err)
			}
			out = append(out, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FixationCache serves per-case fixations from a table, keeping recently used cases
// in an LRU so plotting several views of a case reads the table once.
type FixationCache struct {
	path      string
	chunkSize int
	cache     *lru.Cache[string, []domain.Fixation]
}

// NewFixationCache creates a cache over the table at path holding up to size cases.
func NewFixationCache(path string, size, chunkSize int) (*FixationCache, error) {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[string, []domain.Fixation](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create fixation cache: %w", err)
	}
	return &FixationCache{path: path, chunkSize: chunkSize, cache: c}, nil
}

// CaseFixations implements domain.FixationSource.
func (fc *FixationCache) CaseFixations(ctx context.Context, dicomID string) ([]domain.Fixation, error) {
	if fx, ok := fc.cache.Get(dicomID); ok {
		return fx, nil
	}
	fx, err := LoadCaseFixations(ctx, fc.path, dicomID, fc.chunkSize)
	if err != nil {
		return nil, err
	}
	fc.cache.Add(dicomID, fx)
	return fx, nil
}

// Preload reads the fixations of every id not yet cached in a single pass over the
// table. Ids without rows are cached as empty so later lookups do not rescan.
// The cache must hold len(ids) cases for all of them to stay resident.
func (fc *FixationCache) Preload(ctx context.Context, ids []string) error {
	wanted := make(map[string][]domain.Fixation, len(ids))
	for _, id := range ids {
		if !fc.cache.Contains(id) {
			wanted[id] = nil
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	err := ForEachChunk(ctx, "fixation table", fc.path, fc.chunkSize, func(h Header, rows [][]string) error {
		col, err := h.IDColumn()
		if err != nil {
			return domain.NewDatasetError(domain.ErrInvalidRecord, err.Error(), fc.path, nil)
		}
		for _, row := range rows {
			if col >= len(row) {
				continue
			}
			id := strings.TrimSpace(row[col])
			fx, ok := wanted[id]
			if !ok {
				continue
			}
			f, err := ParseFixation(h, row)
			if err != nil {
				return domain.NewDatasetError(domain.ErrInvalidRecord, "bad fixation row", fc.path, err)
			}
			wanted[id] = append(fx, f)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		fx, ok := wanted[id]
		if !ok {
			continue
		}
		if fx == nil {
			fx = []domain.Fixation{}
		}
		fc.cache.Add(id, fx)
	}
	return nil
}

// Len returns the number of cached cases.
func (fc *FixationCache) Len() int {
	return fc.cache.Len()
}
