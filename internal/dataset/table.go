package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// DefaultChunkSize bounds the rows held in memory while streaming a table.
const DefaultChunkSize = 10000

// Header maps column names to positions.
type Header struct {
	names []string
	index map[string]int
}

// NewHeader indexes the given column names. A UTF-8 BOM on the first column is dropped.
func NewHeader(cols []string) Header {
	names := make([]string, len(cols))
	copy(names, cols)
	if len(names) > 0 {
		names[0] = strings.TrimPrefix(names[0], "\ufeff")
	}
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	return Header{names: names, index: idx}
}

// Columns returns the column names in file order.
func (h Header) Columns() []string {
	return h.names
}

// Index returns the position of a column.
func (h Header) Index(name string) (int, bool) {
	i, ok := h.index[name]
	return i, ok
}

// Has reports whether the column exists.
func (h Header) Has(name string) bool {
	_, ok := h.index[name]
	return ok
}

// Get returns the named field of row, or "" when the column is absent or the row is short.
func (h Header) Get(row []string, name string) string {
	i, ok := h.index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// IDColumn finds the case identifier column. The master sheet and bounding boxes use
// dicom_id, the gaze tables DICOM_ID.
func (h Header) IDColumn() (int, error) {
	for i, n := range h.names {
		if strings.EqualFold(n, "dicom_id") {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no dicom_id column in header %v", h.names)
}

// TableReader streams a CSV table in bounded chunks.
type TableReader struct {
	path   string
	f      *os.File
	r      *csv.Reader
	header Header
}

// OpenTable opens a CSV file and reads its header. A missing file is a MISSING_FILE error.
func OpenTable(what, path string) (*TableReader, error) {
	if err := RequireFile(what, path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	cols, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, domain.NewDatasetError(domain.ErrInvalidRecord, what+" is empty", path, err)
		}
		return nil, domain.NewDatasetError(domain.ErrInvalidRecord, "failed to read header", path, err)
	}

	return &TableReader{path: path, f: f, r: r, header: NewHeader(cols)}, nil
}

// Header returns the table header.
func (t *TableReader) Header() Header {
	return t.header
}

// ReadChunk returns up to n rows. It returns io.EOF once no rows remain.
func (t *TableReader) ReadChunk(n int) ([][]string, error) {
	if n <= 0 {
		n = DefaultChunkSize
	}
	rows := make([][]string, 0, n)
	for len(rows) < n {
		row, err := t.r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.NewDatasetError(domain.ErrInvalidRecord, "malformed row", t.path, err)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, io.EOF
	}
	return rows, nil
}

// Close releases the file.
func (t *TableReader) Close() error {
	return t.f.Close()
}

// ForEachChunk streams the table chunk by chunk, strictly in file order.
func ForEachChunk(ctx context.Context, what, path string, chunkSize int, fn func(h Header, rows [][]string) error) error {
	t, err := OpenTable(what, path)
	if err != nil {
		return err
	}
	defer t.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := t.ReadChunk(chunkSize)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(t.header, rows); err != nil {
			return err
		}
	}
}

// ProbeIDs collects the case ids found in the first limit rows of a table. limit <= 0
// scans the whole table.
func ProbeIDs(ctx context.Context, what, path string, limit, chunkSize int) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	seen := 0
	errStop := errors.New("stop")

	err := ForEachChunk(ctx, what, path, chunkSize, func(h Header, rows [][]string) error {
		col, err := h.IDColumn()
		if err != nil {
			return domain.NewDatasetError(domain.ErrInvalidRecord, err.Error(), path, nil)
		}
		for _, row := range rows {
			if limit > 0 && seen >= limit {
				return errStop
			}
			seen++
			if col < len(row) {
				ids[strings.TrimSpace(row[col])] = struct{}{}
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return ids, nil
}

// FilterTable copies the header and every row whose case id is in ids from src to dst,
// streaming in chunks. It returns the number of rows written.
func FilterTable(ctx context.Context, what, src, dst string, ids map[string]struct{}, chunkSize int) (int, error) {
	if err := RequireFile(what, src); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	written := 0
	headerDone := false

	err = ForEachChunk(ctx, what, src, chunkSize, func(h Header, rows [][]string) error {
		if !headerDone {
			if err := w.Write(h.Columns()); err != nil {
				return err
			}
			headerDone = true
		}
		col, err := h.IDColumn()
		if err != nil {
			return domain.NewDatasetError(domain.ErrInvalidRecord, err.Error(), src, nil)
		}
		for _, row := range rows {
			if col >= len(row) {
				continue
			}
			if _, ok := ids[strings.TrimSpace(row[col])]; ok {
				if err := w.Write(row); err != nil {
					return err
				}
				written++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// A table with a header but no rows still yields a header-only output
	if !headerDone {
		t, err := OpenTable(what, src)
		if err != nil {
			return 0, err
		}
		cols := t.Header().Columns()
		t.Close()
		if err := w.Write(cols); err != nil {
			return 0, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return written, nil
}

// WriteTable writes a header and rows to path.
func WriteTable(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
