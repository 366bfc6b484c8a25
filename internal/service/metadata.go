package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/egd-cxr-toolkit/internal/domain"
)

const (
	MetadataFile = "comprehensive_sample_metadata.json"

	SourceDataset    = "EGD-CXR v1.0.0"
	SamplingStrategy = "diverse_stratified"
)

// SampleMetadata is the machine-readable description of a sample directory.
type SampleMetadata struct {
	SampleInfo          SampleInfo          `json:"sample_info"`
	Demographics        Demographics        `json:"demographics"`
	ClinicalConditions  map[string]int      `json:"clinical_conditions"`
	ConditionComplexity ConditionComplexity `json:"condition_complexity"`
	DataCompleteness    DataCompleteness    `json:"data_completeness"`
	SampledStudies      []string            `json:"sampled_studies"`
	StudyDetails        []StudyDetail       `json:"study_details"`
}

type SampleInfo struct {
	TotalStudies     int       `json:"total_studies"`
	SampleDate       time.Time `json:"sample_date"`
	SourceDataset    string    `json:"source_dataset"`
	SamplingStrategy string    `json:"sampling_strategy"`
	Seed             int64     `json:"seed"`
	RunID            string    `json:"run_id,omitempty"`
}

type Demographics struct {
	GenderDistribution map[string]int `json:"gender_distribution"`
	AgeDistribution    map[string]int `json:"age_distribution"`
}

type ConditionComplexity struct {
	SingleCondition        int            `json:"studies_with_single_condition"`
	MultipleConditions     int            `json:"studies_with_multiple_conditions"`
	ComplexityDistribution map[string]int `json:"complexity_distribution"`
}

type DataCompleteness struct {
	AudioTranscripts   int    `json:"audio_transcripts"`
	GazeRecords        int    `json:"gaze_records"`
	FixationRecords    int    `json:"fixation_records"`
	BoundingBoxRecords int    `json:"bounding_box_records"`
	CompletenessRate   string `json:"completeness_rate"`
}

type StudyDetail struct {
	DicomID        string   `json:"dicom_id"`
	Gender         string   `json:"gender"`
	Age            string   `json:"age"`
	Conditions     []string `json:"conditions"`
	ConditionCount int      `json:"condition_count"`
	Stratum        string   `json:"stratum,omitempty"`
}

// BuildMetadata summarizes a sample. conditions are the conditions counted for
// prevalence and complexity, usually primary followed by secondary.
func BuildMetadata(sample *domain.SampleSet, conditions []domain.Condition, extraction *ExtractionResult, runID string, now time.Time) *SampleMetadata {
	total := len(sample.Cases)
	md := &SampleMetadata{
		SampleInfo: SampleInfo{
			TotalStudies:     total,
			SampleDate:       now,
			SourceDataset:    SourceDataset,
			SamplingStrategy: SamplingStrategy,
			Seed:             sample.Seed,
			RunID:            runID,
		},
		Demographics: Demographics{
			GenderDistribution: make(map[string]int),
			AgeDistribution:    make(map[string]int),
		},
		ClinicalConditions: make(map[string]int, len(conditions)),
		ConditionComplexity: ConditionComplexity{
			ComplexityDistribution: make(map[string]int),
		},
		SampledStudies: sample.IDs(),
		StudyDetails:   make([]StudyDetail, 0, total),
	}

	for _, cond := range conditions {
		md.ClinicalConditions[string(cond)] = 0
	}

	for _, c := range sample.Cases {
		md.Demographics.GenderDistribution[c.Gender]++
		md.Demographics.AgeDistribution[c.AgeBracket]++

		positive := c.PositiveConditions(conditions)
		names := make([]string, 0, len(positive))
		for _, cond := range positive {
			md.ClinicalConditions[string(cond)]++
			names = append(names, string(cond))
		}

		n := len(positive)
		md.ConditionComplexity.ComplexityDistribution[strconv.Itoa(n)]++
		switch {
		case n == 1:
			md.ConditionComplexity.SingleCondition++
		case n > 1:
			md.ConditionComplexity.MultipleConditions++
		}

		md.StudyDetails = append(md.StudyDetails, StudyDetail{
			DicomID:        c.DicomID,
			Gender:         c.Gender,
			Age:            c.AgeBracket,
			Conditions:     names,
			ConditionCount: n,
			Stratum:        sample.Strata[c.DicomID],
		})
	}

	if extraction != nil {
		md.DataCompleteness = DataCompleteness{
			AudioTranscripts:   extraction.TranscriptsCopied,
			GazeRecords:        extraction.GazeRecords,
			FixationRecords:    extraction.FixationRecords,
			BoundingBoxRecords: extraction.BoundingBoxRecords,
		}
	}
	md.DataCompleteness.CompletenessRate = formatPercent(md.DataCompleteness.AudioTranscripts, total)

	return md
}

func formatPercent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}

// WriteMetadata writes the metadata as indented JSON into dir.
func WriteMetadata(dir string, md *SampleMetadata) (string, error) {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	path := filepath.Join(dir, MetadataFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}
	return path, nil
}

// ReadMetadata loads a metadata file written by WriteMetadata.
func ReadMetadata(path string) (*SampleMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewMissingFileError("sample metadata", path)
		}
		return nil, err
	}
	var md SampleMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, domain.NewDatasetError(domain.ErrInvalidRecord, "malformed sample metadata", path, err)
	}
	return &md, nil
}
