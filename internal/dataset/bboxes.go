package dataset

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// ParseBoundingBox converts a bounding_boxes.csv row.
func ParseBoundingBox(h Header, row []string) (domain.BoundingBox, error) {
	b := domain.BoundingBox{
		DicomID: h.Get(row, "dicom_id"),
		Region:  h.Get(row, "bbox_name"),
	}
	coords := []struct {
		name string
		dst  *float64
	}{
		{"x1", &b.X1}, {"y1", &b.Y1}, {"x2", &b.X2}, {"y2", &b.Y2},
	}
	for _, c := range coords {
		v, err := strconv.ParseFloat(h.Get(row, c.name), 64)
		if err != nil {
			return domain.BoundingBox{}, fmt.Errorf("column %s: %w", c.name, err)
		}
		*c.dst = v
	}
	return b, nil
}

// LoadBoundingBoxes returns the boxes of one case. A case without boxes yields an
// empty slice, not an error.
func LoadBoundingBoxes(ctx context.Context, path, dicomID string) ([]domain.BoundingBox, error) {
	out := []domain.BoundingBox{}
	err := ForEachChunk(ctx, "bounding box table", path, DefaultChunkSize, func(h Header, rows [][]string) error {
		col, err := h.IDColumn()
		if err != nil {
			return domain.NewDatasetError(domain.ErrInvalidRecord, err.Error(), path, nil)
		}
		for _, row := range rows {
			if col >= len(row) || strings.TrimSpace(row[col]) != dicomID {
				continue
			}
			b, err := ParseBoundingBox(h, row)
			if err != nil {
				return domain.NewDatasetError(domain.ErrInvalidRecord, "bad bounding box row", path, err)
			}
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
