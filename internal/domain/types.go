// Package domain contains the core records of the EGD-CXR eye-gaze chest X-ray dataset:
// cases from the master sheet, fixation and gaze samples, and anatomical bounding boxes.
//
// Reference: Karargyris et al. (2021) Creation and validation of a chest X-ray dataset
// with eye-tracking and report dictation for AI development. Sci Data 8, 92.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Condition is the column name of a binary clinical-finding flag in the master sheet.
type Condition string

const (
	Normal                      Condition = "Normal"
	CHF                         Condition = "CHF"
	Pneumonia                   Condition = "pneumonia"
	Consolidation               Condition = "consolidation"
	EnlargedCardiacSilhouette   Condition = "enlarged_cardiac_silhouette"
	LinearPatchyAtelectasis     Condition = "linear__patchy_atelectasis"
	LobarSegmentalCollapse      Condition = "lobar__segmental_collapse"
	PleuralEffusionOrThickening Condition = "pleural_effusion_or_thickening"
	PulmonaryEdemaHazyOpacity   Condition = "pulmonary_edema__hazy_opacity"
	NormalAnatomically          Condition = "normal_anatomically"
	ElevatedHemidiaphragm       Condition = "elevated_hemidiaphragm"
	Hyperaeration               Condition = "hyperaeration"
	VascularRedistribution      Condition = "vascular_redistribution"
)

// KnownConditions lists every finding flag of the master sheet in column order.
var KnownConditions = []Condition{
	Normal, CHF, Pneumonia, Consolidation, EnlargedCardiacSilhouette,
	LinearPatchyAtelectasis, LobarSegmentalCollapse, PleuralEffusionOrThickening,
	PulmonaryEdemaHazyOpacity, NormalAnatomically, ElevatedHemidiaphragm,
	Hyperaeration, VascularRedistribution,
}

// DefaultPrimaryConditions are sampled first, one quota each.
var DefaultPrimaryConditions = []Condition{Normal, CHF, Pneumonia}

// DefaultSecondaryConditions are sampled after the complex cases.
var DefaultSecondaryConditions = []Condition{
	Consolidation, EnlargedCardiacSilhouette,
	PleuralEffusionOrThickening, PulmonaryEdemaHazyOpacity,
}

var conditionLabels = map[Condition]string{
	Normal:                      "Normal",
	CHF:                         "CHF (Congestive Heart Failure)",
	Pneumonia:                   "Pneumonia",
	Consolidation:               "Consolidation",
	EnlargedCardiacSilhouette:   "Enlarged Cardiac Silhouette",
	LinearPatchyAtelectasis:     "Linear/Patchy Atelectasis",
	LobarSegmentalCollapse:      "Lobar/Segmental Collapse",
	PleuralEffusionOrThickening: "Pleural Effusion/Thickening",
	PulmonaryEdemaHazyOpacity:   "Pulmonary Edema",
	NormalAnatomically:          "Normal Anatomically",
	ElevatedHemidiaphragm:       "Elevated Hemidiaphragm",
	Hyperaeration:               "Hyperaeration",
	VascularRedistribution:      "Vascular Redistribution",
}

// Label returns a human-readable name for the condition.
func (c Condition) Label() string {
	if l, ok := conditionLabels[c]; ok {
		return l
	}
	return string(c)
}

// ChexpertLabel is a CheXpert labeler output: -1 uncertain, 0 negative, 1 positive.
type ChexpertLabel int

const (
	ChexpertUncertain ChexpertLabel = -1
	ChexpertNegative  ChexpertLabel = 0
	ChexpertPositive  ChexpertLabel = 1
)

func (l ChexpertLabel) String() string {
	switch l {
	case ChexpertUncertain:
		return "Uncertain"
	case ChexpertNegative:
		return "Negative"
	case ChexpertPositive:
		return "Positive"
	default:
		return "Unknown"
	}
}

// Diagnosis is one of the dxN / dxN_icd column pairs.
type Diagnosis struct {
	Name    string `json:"name"`
	ICDCode string `json:"icd_code,omitempty"`
}

// Padding holds the pixel padding applied when the image was displayed to the radiologist.
type Padding struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
	Right  int `json:"right"`
}

// Case is one chest X-ray study from the master sheet.
type Case struct {
	DicomID        string                   `json:"dicom_id"`
	PatientID      string                   `json:"patient_id"`
	StudyID        string                   `json:"study_id"`
	StayID         string                   `json:"stay_id,omitempty"`
	Gender         string                   `json:"gender"`
	AgeBracket     string                   `json:"anchor_age"`
	ImagePath      string                   `json:"path,omitempty"`
	ExamIndication string                   `json:"cxr_exam_indication,omitempty"`
	Padding        Padding                  `json:"padding"`
	Findings       map[Condition]int        `json:"findings"`
	Diagnoses      []Diagnosis              `json:"diagnoses,omitempty"`
	Chexpert       map[string]ChexpertLabel `json:"chexpert,omitempty"`

	// Row keeps the source CSV row so derived sheets reproduce every column.
	Row []string `json:"-"`
}

// Has reports whether the case is flagged positive for the condition.
func (c *Case) Has(cond Condition) bool {
	return c.Findings[cond] == 1
}

// PositiveConditions returns the conditions of the given list that are flagged positive.
func (c *Case) PositiveConditions(conds []Condition) []Condition {
	var out []Condition
	for _, cond := range conds {
		if c.Has(cond) {
			out = append(out, cond)
		}
	}
	return out
}

// Complexity counts positive flags across the given conditions.
func (c *Case) Complexity(conds []Condition) int {
	return len(c.PositiveConditions(conds))
}

// Fixation is a single eye-gaze dwell event. Positions are normalized to [0,1].
type Fixation struct {
	DicomID  string  `json:"dicom_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Duration float64 `json:"duration"`
	Elapsed  float64 `json:"elapsed"`
}

// BoundingBoxMaxExtent is the largest coordinate found in bounding_boxes.csv and is
// used to scale boxes onto rendered images.
const BoundingBoxMaxExtent = 2363.0

// BoundingBox is an anatomical region rectangle.
type BoundingBox struct {
	DicomID string  `json:"dicom_id"`
	Region  string  `json:"bbox_name"`
	X1      float64 `json:"x1"`
	Y1      float64 `json:"y1"`
	X2      float64 `json:"x2"`
	Y2      float64 `json:"y2"`
}

// Width of the box in dataset coordinates.
func (b BoundingBox) Width() float64 { return b.X2 - b.X1 }

// Height of the box in dataset coordinates.
func (b BoundingBox) Height() float64 { return b.Y2 - b.Y1 }

// AnatomicalMasks are the region mask images found in a case's transcript directory.
var AnatomicalMasks = []string{"aortic_knob", "left_lung", "right_lung", "mediastanum"}

// Validation errors for dataset records
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidFlag        = errors.New("finding flag must be 0 or 1")
	ErrInvalidFixation    = errors.New("invalid fixation")
	ErrInvalidBoundingBox = errors.New("invalid bounding box")
	ErrDuplicateCase      = errors.New("duplicate dicom_id")
)

// Validate checks the case invariants: non-empty id and 0/1 finding flags.
func (c *Case) Validate() error {
	if c.DicomID == "" {
		return NewValidationError("dicom_id", "must not be empty", c.DicomID)
	}
	for cond, v := range c.Findings {
		if v != 0 && v != 1 {
			return fmt.Errorf("%w: %s=%d", ErrInvalidFlag, cond, v)
		}
	}
	return nil
}

// Validate checks that the position is normalized and times are non-negative.
func (f Fixation) Validate() error {
	if f.X < 0 || f.X > 1 || f.Y < 0 || f.Y > 1 {
		return fmt.Errorf("%w: position (%.3f, %.3f) outside [0,1]", ErrInvalidFixation, f.X, f.Y)
	}
	if f.Duration < 0 || f.Elapsed < 0 {
		return fmt.Errorf("%w: negative duration or elapsed time", ErrInvalidFixation)
	}
	return nil
}

// Validate checks the rectangle ordering and extent.
func (b BoundingBox) Validate() error {
	if b.X1 >= b.X2 || b.Y1 >= b.Y2 {
		return fmt.Errorf("%w: %s has inverted corners", ErrInvalidBoundingBox, b.Region)
	}
	if b.X1 < 0 || b.Y1 < 0 || b.X2 > BoundingBoxMaxExtent || b.Y2 > BoundingBoxMaxExtent {
		return fmt.Errorf("%w: %s exceeds extent %.0f", ErrInvalidBoundingBox, b.Region, BoundingBoxMaxExtent)
	}
	return nil
}

// Stratum names the sampler step that selected a case.
type Stratum string

const (
	StratumPrimary   Stratum = "primary"
	StratumComplex   Stratum = "complex"
	StratumSecondary Stratum = "secondary"
	StratumFill      Stratum = "fill"
)

// SampleSet is the immutable result of one sampler run.
type SampleSet struct {
	Cases      []*Case
	TargetSize int
	Seed       int64
	// Strata records, per dicom id, the step and condition that selected the case,
	// e.g. "primary:CHF" or "fill".
	Strata map[string]string
}

// SamplingRun is the persisted summary of one sampling pipeline execution.
type SamplingRun struct {
	ID                 string    `json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	Seed               int64     `json:"seed"`
	TargetSize         int       `json:"target_size"`
	Strategy           string    `json:"strategy"`
	SourceDir          string    `json:"source_dir"`
	OutputDir          string    `json:"output_dir"`
	CaseIDs            []string  `json:"case_ids"`
	GazeRecords        int       `json:"gaze_records"`
	FixationRecords    int       `json:"fixation_records"`
	BoundingBoxRecords int       `json:"bounding_box_records"`
	TranscriptsCopied  int       `json:"transcripts_copied"`
}

// IDs returns the selected dicom ids in selection order.
func (s *SampleSet) IDs() []string {
	ids := make([]string, len(s.Cases))
	for i, c := range s.Cases {
		ids[i] = c.DicomID
	}
	return ids
}

// IDSet returns the selected ids as a set.
func (s *SampleSet) IDSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.Cases))
	for _, c := range s.Cases {
		set[c.DicomID] = struct{}{}
	}
	return set
}

// SortedKeys returns map keys in ascending order; used for stable report output.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
