// Package analysis summarizes the dataset for exploration and produces the detailed
// single-case report.
package analysis

import (
	"sort"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// GazeStats summarizes one case's fixations.
type GazeStats struct {
	Count           int
	SessionDuration float64
	AvgDuration     float64
	MaxDuration     float64
	MinDuration     float64

	// Counts by screen half; positions below 0.5 are left / upper.
	Left, Right, Upper, Lower int

	Longest []domain.Fixation
}

// ComputeGazeStats summarizes fixations and keeps the top longest ones, longest first.
// Ties keep chronological order.
func ComputeGazeStats(fixations []domain.Fixation, top int) GazeStats {
	s := GazeStats{Count: len(fixations)}
	if len(fixations) == 0 {
		return s
	}

	s.MinDuration = fixations[0].Duration
	total := 0.0
	for _, f := range fixations {
		total += f.Duration
		if f.Duration > s.MaxDuration {
			s.MaxDuration = f.Duration
		}
		if f.Duration < s.MinDuration {
			s.MinDuration = f.Duration
		}
		if f.Elapsed > s.SessionDuration {
			s.SessionDuration = f.Elapsed
		}
		if f.X < 0.5 {
			s.Left++
		} else {
			s.Right++
		}
		if f.Y < 0.5 {
			s.Upper++
		} else {
			s.Lower++
		}
	}
	s.AvgDuration = total / float64(len(fixations))

	sorted := make([]domain.Fixation, len(fixations))
	copy(sorted, fixations)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Duration > sorted[j].Duration })
	if top < 0 {
		top = 0
	}
	if top > len(sorted) {
		top = len(sorted)
	}
	s.Longest = sorted[:top]
	return s
}

// Share is n as a percentage of the fixation count.
func (s GazeStats) Share(n int) float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(n) / float64(s.Count) * 100
}
