package dataset

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/egd-cxr-toolkit/internal/domain"
)

const chexpertSuffix = "__chx"

// CaseIndex is the loaded master sheet.
type CaseIndex struct {
	Header Header
	Cases  []*domain.Case
	byID   map[string]*domain.Case
}

// Get returns the case with the given id.
func (ci *CaseIndex) Get(dicomID string) (*domain.Case, bool) {
	c, ok := ci.byID[dicomID]
	return c, ok
}

// HasCondition reports whether the master sheet carries the condition column.
func (ci *CaseIndex) HasCondition(cond domain.Condition) bool {
	return ci.Header.Has(string(cond))
}

// AvailableConditions filters conds to the columns present in the master sheet.
func (ci *CaseIndex) AvailableConditions(conds []domain.Condition) []domain.Condition {
	var out []domain.Condition
	for _, c := range conds {
		if ci.HasCondition(c) {
			out = append(out, c)
		}
	}
	return out
}

// LoadCaseIndex reads the master sheet. Finding flags are parsed for the known
// vocabulary plus any extra condition columns, e.g. configured sampling conditions.
// Duplicate dicom ids and non-binary finding flags are rejected.
func LoadCaseIndex(ctx context.Context, path string, extra ...domain.Condition) (*CaseIndex, error) {
	ci := &CaseIndex{byID: make(map[string]*domain.Case)}
	conds := conditionColumns(extra)

	err := ForEachChunk(ctx, "master sheet", path, DefaultChunkSize, func(h Header, rows [][]string) error {
		ci.Header = h
		if !h.Has("dicom_id") {
			return domain.NewDatasetError(domain.ErrInvalidRecord, "master sheet has no dicom_id column", path, nil)
		}
		for i, row := range rows {
			c, err := ParseCase(h, row, conds)
			if err != nil {
				return domain.NewDatasetError(domain.ErrInvalidRecord, fmt.Sprintf("row %d", len(ci.Cases)+i+2), path, err)
			}
			if _, dup := ci.byID[c.DicomID]; dup {
				return domain.NewDatasetError(domain.ErrInvalidRecord, c.DicomID, path, domain.ErrDuplicateCase)
			}
			ci.byID[c.DicomID] = c
			ci.Cases = append(ci.Cases, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ci, nil
}

// conditionColumns is the known vocabulary followed by extra names not already in it.
func conditionColumns(extra []domain.Condition) []domain.Condition {
	out := append([]domain.Condition(nil), domain.KnownConditions...)
	seen := make(map[domain.Condition]struct{}, len(out)+len(extra))
	for _, c := range out {
		seen[c] = struct{}{}
	}
	for _, c := range extra {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// MasterSheet implements domain.CaseSource over a master sheet path.
type MasterSheet struct {
	Path       string
	Conditions []domain.Condition
}

func (m MasterSheet) LoadCases(ctx context.Context) ([]*domain.Case, error) {
	ci, err := LoadCaseIndex(ctx, m.Path, m.Conditions...)
	if err != nil {
		return nil, err
	}
	return ci.Cases, nil
}

// ParseCase converts a master sheet row into a Case. Flags are read for each of conds
// that the header carries.
func ParseCase(h Header, row []string, conds []domain.Condition) (*domain.Case, error) {
	c := &domain.Case{
		DicomID:        h.Get(row, "dicom_id"),
		PatientID:      h.Get(row, "patient_id"),
		StudyID:        h.Get(row, "study_id"),
		StayID:         h.Get(row, "stay_id"),
		Gender:         h.Get(row, "gender"),
		AgeBracket:     h.Get(row, "anchor_age"),
		ImagePath:      h.Get(row, "path"),
		ExamIndication: h.Get(row, "cxr_exam_indication"),
		Padding: domain.Padding{
			Top:    atoiOrZero(h.Get(row, "image_top_pad")),
			Bottom: atoiOrZero(h.Get(row, "image_bottom_pad")),
			Left:   atoiOrZero(h.Get(row, "image_left_pad")),
			Right:  atoiOrZero(h.Get(row, "image_right_pad")),
		},
		Findings: make(map[domain.Condition]int),
		Row:      row,
	}

	for _, cond := range conds {
		if !h.Has(string(cond)) {
			continue
		}
		v, err := parseFlag(h.Get(row, string(cond)))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", cond, err)
		}
		c.Findings[cond] = v
	}

	for i := 1; i <= 9; i++ {
		name := h.Get(row, fmt.Sprintf("dx%d", i))
		if name == "" {
			continue
		}
		c.Diagnoses = append(c.Diagnoses, domain.Diagnosis{
			Name:    name,
			ICDCode: h.Get(row, fmt.Sprintf("dx%d_icd", i)),
		})
	}

	for _, col := range h.Columns() {
		if !strings.HasSuffix(col, chexpertSuffix) {
			continue
		}
		raw := h.Get(row, col)
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if c.Chexpert == nil {
			c.Chexpert = make(map[string]domain.ChexpertLabel)
		}
		c.Chexpert[col] = domain.ChexpertLabel(int(f))
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// parseFlag accepts "0", "1", "0.0", "1.0"; empty cells count as negative.
func parseFlag(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidFlag, raw)
	}
	if f != 0 && f != 1 {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidFlag, raw)
	}
	return int(f), nil
}

func atoiOrZero(raw string) int {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int(f)
}
