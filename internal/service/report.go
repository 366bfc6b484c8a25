package service

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/egd-cxr-toolkit/internal/domain"
)

const ReportFile = "detailed_sampling_summary.txt"

const (
	ruleHeavy = 60
	ruleLight = 30
)

// WriteReport renders the human-readable sampling summary into dir.
func WriteReport(dir string, md *SampleMetadata) (string, error) {
	path := filepath.Join(dir, ReportFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	RenderReport(w, md)
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// RenderReport writes the summary text. Distribution sections list keys in ascending order.
func RenderReport(w io.Writer, md *SampleMetadata) {
	total := md.SampleInfo.TotalStudies

	fmt.Fprintln(w, "EGD-CXR Enhanced Dataset Sampling Summary")
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("=", ruleHeavy))

	fmt.Fprintf(w, "Sample Size: %d studies\n", total)
	fmt.Fprintf(w, "Sampling Date: %s\n", md.SampleInfo.SampleDate.Format("2006-01-02T15:04:05.000000"))
	fmt.Fprintf(w, "Sampling Strategy: %s\n", md.SampleInfo.SamplingStrategy)
	fmt.Fprintf(w, "Random Seed: %d\n\n", md.SampleInfo.Seed)

	section(w, "Demographics:")
	writeShares(w, md.Demographics.GenderDistribution, total)

	fmt.Fprintln(w)
	section(w, "Age Distribution:")
	writeShares(w, md.Demographics.AgeDistribution, total)

	fmt.Fprintln(w)
	section(w, "Clinical Conditions:")
	writeShares(w, md.ClinicalConditions, total)

	cc := md.ConditionComplexity
	fmt.Fprintln(w)
	section(w, "Condition Complexity:")
	fmt.Fprintf(w, "  Single condition: %d\n", cc.SingleCondition)
	fmt.Fprintf(w, "  Multiple conditions: %d\n", cc.MultipleConditions)
	fmt.Fprintln(w, "  Complexity distribution:")
	for _, k := range numericKeys(cc.ComplexityDistribution) {
		fmt.Fprintf(w, "    %s conditions: %d studies\n", k, cc.ComplexityDistribution[k])
	}

	dc := md.DataCompleteness
	fmt.Fprintln(w)
	section(w, "Data Completeness:")
	fmt.Fprintf(w, "  Audio transcripts: %d\n", dc.AudioTranscripts)
	fmt.Fprintf(w, "  Gaze records: %s\n", humanize.Comma(int64(dc.GazeRecords)))
	fmt.Fprintf(w, "  Fixation records: %s\n", humanize.Comma(int64(dc.FixationRecords)))
	fmt.Fprintf(w, "  Bounding box records: %s\n", humanize.Comma(int64(dc.BoundingBoxRecords)))
	fmt.Fprintf(w, "  Completeness rate: %s\n", dc.CompletenessRate)

	fmt.Fprintln(w)
	section(w, "Sampled Study Details:")
	for i, s := range md.StudyDetails {
		conds := "None"
		if len(s.Conditions) > 0 {
			conds = strings.Join(s.Conditions, ", ")
		}
		fmt.Fprintf(w, "  %2d. %s\n", i+1, s.DicomID)
		fmt.Fprintf(w, "      Gender: %s, Age: %s\n", s.Gender, s.Age)
		fmt.Fprintf(w, "      Conditions: %s\n", conds)
		fmt.Fprintf(w, "      Complexity: %d conditions\n\n", s.ConditionCount)
	}
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", ruleLight))
}

func writeShares(w io.Writer, counts map[string]int, total int) {
	for _, k := range domain.SortedKeys(counts) {
		fmt.Fprintf(w, "  %s: %d (%s)\n", k, counts[k], formatPercent(counts[k], total))
	}
}

func numericKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	return keys
}
