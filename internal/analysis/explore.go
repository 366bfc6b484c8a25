package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/egd-cxr-toolkit/internal/dataset"
	"github.com/egd-cxr-toolkit/internal/domain"
)

// DefaultProbeRows bounds how many rows of a table are summarized.
const DefaultProbeRows = 1000

// ColumnStats describes one column over the probed rows.
type ColumnStats struct {
	Name    string
	Numeric bool
	Count   int
	Missing int
	Mean    float64
	Std     float64
	Min     float64
	Max     float64
}

// TableSummary describes one CSV file.
type TableSummary struct {
	Name    string
	Path    string
	Size    int64
	Rows    int
	Columns []ColumnStats
}

// Prevalence is the number of positive cases for one condition.
type Prevalence struct {
	Condition domain.Condition
	Count     int
	Percent   float64
}

// SummarizeTable reads up to probeRows rows (all rows when probeRows <= 0) and computes
// per-column stats. A column is numeric when every non-empty cell parses as a float.
func SummarizeTable(ctx context.Context, what, path string, probeRows int) (*TableSummary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.NewMissingFileError(what, path)
	}

	summary := &TableSummary{Name: filepath.Base(path), Path: path, Size: info.Size()}
	var cols []*columnAcc
	errStop := errors.New("stop")

	err = dataset.ForEachChunk(ctx, what, path, dataset.DefaultChunkSize, func(h dataset.Header, rows [][]string) error {
		if cols == nil {
			for _, name := range h.Columns() {
				cols = append(cols, &columnAcc{name: name, numeric: true})
			}
		}
		for _, row := range rows {
			if probeRows > 0 && summary.Rows >= probeRows {
				return errStop
			}
			summary.Rows++
			for i, c := range cols {
				cell := ""
				if i < len(row) {
					cell = strings.TrimSpace(row[i])
				}
				c.add(cell)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}

	for _, c := range cols {
		summary.Columns = append(summary.Columns, c.stats())
	}
	return summary, nil
}

type columnAcc struct {
	name     string
	numeric  bool
	count    int
	missing  int
	sum      float64
	sumSq    float64
	min, max float64
}

func (c *columnAcc) add(cell string) {
	if cell == "" {
		c.missing++
		return
	}
	c.count++
	if !c.numeric {
		return
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		c.numeric = false
		return
	}
	if c.count == 1 || v < c.min {
		c.min = v
	}
	if c.count == 1 || v > c.max {
		c.max = v
	}
	c.sum += v
	c.sumSq += v * v
}

// stats uses the sample standard deviation (n-1).
func (c *columnAcc) stats() ColumnStats {
	s := ColumnStats{Name: c.name, Numeric: c.numeric && c.count > 0, Count: c.count, Missing: c.missing}
	if !s.Numeric {
		return s
	}
	n := float64(c.count)
	s.Mean = c.sum / n
	s.Min, s.Max = c.min, c.max
	if c.count > 1 {
		variance := (c.sumSq - n*s.Mean*s.Mean) / (n - 1)
		s.Std = math.Sqrt(math.Max(variance, 0))
	}
	return s
}

// Render writes the summary as aligned text.
func (t *TableSummary) Render(w io.Writer) {
	fmt.Fprintf(w, "\n%s\n%s\n", t.Name, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Size: %s\n", humanize.Bytes(uint64(t.Size)))
	fmt.Fprintf(w, "Rows probed: %d\n", t.Rows)
	fmt.Fprintf(w, "Columns (%d):\n", len(t.Columns))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  column\tcount\tmissing\tmean\tstd\tmin\tmax")
	for _, c := range t.Columns {
		if c.Numeric {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%.3f\t%.3f\t%.3f\t%.3f\n", c.Name, c.Count, c.Missing, c.Mean, c.Std, c.Min, c.Max)
		} else {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t-\t-\t-\t-\n", c.Name, c.Count, c.Missing)
		}
	}
	tw.Flush()
}

// ConditionPrevalence counts positive cases per condition, in the given order.
// Conditions that no case carries a flag for are skipped.
func ConditionPrevalence(cases []*domain.Case, conds []domain.Condition) []Prevalence {
	var out []Prevalence
	for _, cond := range conds {
		seen, n := false, 0
		for _, c := range cases {
			if _, ok := c.Findings[cond]; ok {
				seen = true
			}
			if c.Has(cond) {
				n++
			}
		}
		if !seen {
			continue
		}
		p := Prevalence{Condition: cond, Count: n}
		if len(cases) > 0 {
			p.Percent = float64(n) / float64(len(cases)) * 100
		}
		out = append(out, p)
	}
	return out
}

// PrintTree writes a directory tree down to maxDepth levels below dir. Entries are
// sorted by name; directories carry a trailing slash and files their size.
func PrintTree(w io.Writer, dir string, maxDepth int) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return domain.NewMissingFileError("dataset directory", dir)
	}
	fmt.Fprintf(w, "%s/\n", filepath.Base(dir))
	return printLevel(w, dir, "", 1, maxDepth)
}

func printLevel(w io.Writer, dir, prefix string, depth, maxDepth int) error {
	if depth > maxDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for i, e := range entries {
		last := i == len(entries)-1
		connector, indent := "├── ", "│   "
		if last {
			connector, indent = "└── ", "    "
		}
		if e.IsDir() {
			fmt.Fprintf(w, "%s%s%s/\n", prefix, connector, e.Name())
			if err := printLevel(w, filepath.Join(dir, e.Name()), prefix+indent, depth+1, maxDepth); err != nil {
				return err
			}
			continue
		}
		size := ""
		if fi, err := e.Info(); err == nil {
			size = " (" + humanize.Bytes(uint64(fi.Size())) + ")"
		}
		fmt.Fprintf(w, "%s%s%s%s\n", prefix, connector, e.Name(), size)
	}
	return nil
}

// Explorer prints an overview of a dataset release.
type Explorer struct {
	logger    *logrus.Logger
	layout    dataset.Layout
	probeRows int
	treeDepth int
}

// NewExplorer creates an explorer for the release at layout.
func NewExplorer(logger *logrus.Logger, layout dataset.Layout, probeRows, treeDepth int) *Explorer {
	if treeDepth <= 0 {
		treeDepth = 2
	}
	return &Explorer{logger: logger, layout: layout, probeRows: probeRows, treeDepth: treeDepth}
}

// Explore writes the tree, the table summaries and the finding prevalence. Missing
// tables are reported and skipped; a missing master sheet skips the prevalence.
func (e *Explorer) Explore(ctx context.Context, w io.Writer) error {
	fmt.Fprintf(w, "EGD-CXR Dataset Overview\n%s\n\nDirectory structure:\n", strings.Repeat("=", 60))
	if err := PrintTree(w, e.layout.Root, e.treeDepth); err != nil {
		return err
	}

	tables := []struct{ what, path string }{
		{"master sheet", e.layout.MasterSheet()},
		{"fixation table", e.layout.Fixations()},
		{"eye gaze table", e.layout.EyeGaze()},
		{"bounding box table", e.layout.BoundingBoxes()},
	}
	for _, t := range tables {
		s, err := SummarizeTable(ctx, t.what, t.path, e.probeRows)
		if err != nil {
			if domain.IsMissingFile(err) {
				e.logger.WithField("path", t.path).Warn("Table not found, skipping")
				fmt.Fprintf(w, "\n%s: not found\n", filepath.Base(t.path))
				continue
			}
			return fmt.Errorf("failed to summarize %s: %w", t.what, err)
		}
		s.Render(w)
	}

	index, err := dataset.LoadCaseIndex(ctx, e.layout.MasterSheet())
	if err != nil {
		if domain.IsMissingFile(err) {
			return nil
		}
		return fmt.Errorf("failed to load case index: %w", err)
	}

	fmt.Fprintf(w, "\nFinding prevalence (%d cases)\n%s\n", len(index.Cases), strings.Repeat("-", 60))
	for _, p := range ConditionPrevalence(index.Cases, domain.KnownConditions) {
		fmt.Fprintf(w, "  %-35s %5d (%.1f%%)\n", p.Condition.Label(), p.Count, p.Percent)
	}

	e.logger.WithFields(logrus.Fields{
		"root":  e.layout.Root,
		"cases": len(index.Cases),
	}).Info("Dataset explored")
	return nil
}
