package domain

import (
	"context"
)

// CaseSource yields the case index
type CaseSource interface {
	LoadCases(ctx context.Context) ([]*Case, error)
}

// FixationSource yields fixations for a single case in chronological order
type FixationSource interface {
	CaseFixations(ctx context.Context, dicomID string) ([]Fixation, error)
}
