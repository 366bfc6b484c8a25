// Package datasettest writes small synthetic EGD-CXR releases for tests.
package datasettest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// MasterColumns is the master sheet header used by fixtures.
var MasterColumns = []string{
	"dicom_id", "path", "study_id", "patient_id", "stay_id", "gender", "anchor_age",
	"image_top_pad", "image_bottom_pad", "image_left_pad", "image_right_pad",
	"Normal", "CHF", "pneumonia", "consolidation", "enlarged_cardiac_silhouette",
	"pleural_effusion_or_thickening", "pulmonary_edema__hazy_opacity",
	"dx1", "dx1_icd", "cxr_exam_indication", "edema__chx", "pneumonia__chx",
}

// GazeColumns is the fixations / eye gaze header used by fixtures.
var GazeColumns = []string{"DICOM_ID", "CNT", "Time (in secs)", "FPOGX", "FPOGY", "FPOGD"}

// BoxColumns is the bounding box header used by fixtures.
var BoxColumns = []string{"dicom_id", "bbox_name", "x1", "x2", "y1", "y2"}

// Case describes one fixture case.
type Case struct {
	ID         string
	Gender     string
	Age        string
	Conditions []domain.Condition
	Fixations  int // rows written to both gaze tables
	Boxes      []string
	Transcript bool
}

// Dataset writes a release under root. Gaze rows are interleaved across cases in
// round-robin order, so a case's rows are spread through the table.
func Dataset(t *testing.T, root string, cases []Case) {
	t.Helper()

	var master [][]string
	for i, c := range cases {
		master = append(master, MasterRow(c, i))
		if c.Transcript {
			dir := filepath.Join(root, "audio_segmentation_transcripts", c.ID)
			mustMkdir(t, dir)
			mustWrite(t, filepath.Join(dir, "transcript.json"), `{"full_text": "no acute findings", "time_stamped_text": []}`)
		}
	}
	WriteCSV(t, filepath.Join(root, "master_sheet.csv"), MasterColumns, master)

	var gaze [][]string
	for round := 0; ; round++ {
		added := false
		for _, c := range cases {
			if round < c.Fixations {
				gaze = append(gaze, GazeRow(c.ID, round))
				added = true
			}
		}
		if !added {
			break
		}
	}
	WriteCSV(t, filepath.Join(root, "fixations.csv"), GazeColumns, gaze)
	WriteCSV(t, filepath.Join(root, "eye_gaze.csv"), GazeColumns, gaze)

	var boxes [][]string
	for _, c := range cases {
		for j, name := range c.Boxes {
			x1 := 100 + 10*j
			boxes = append(boxes, []string{c.ID, name, strconv.Itoa(x1), strconv.Itoa(x1 + 400), "200", "1400"})
		}
	}
	WriteCSV(t, filepath.Join(root, "bounding_boxes.csv"), BoxColumns, boxes)
}

// MasterRow renders a fixture case as a master sheet row.
func MasterRow(c Case, i int) []string {
	flags := map[domain.Condition]string{}
	for _, cond := range c.Conditions {
		flags[cond] = "1"
	}
	flag := func(cond domain.Condition) string {
		if v, ok := flags[cond]; ok {
			return v
		}
		return "0"
	}
	gender := c.Gender
	if gender == "" {
		gender = "F"
	}
	age := c.Age
	if age == "" {
		age = "60 - 70"
	}
	return []string{
		c.ID, fmt.Sprintf("files/p1%d/p%d/s%d/%s.dcm", i%10, 1000+i, 5000+i, c.ID),
		strconv.Itoa(5000 + i), strconv.Itoa(1000 + i), "", gender, age,
		"0", "0", "16", "16",
		flag(domain.Normal), flag(domain.CHF), flag(domain.Pneumonia), flag(domain.Consolidation),
		flag(domain.EnlargedCardiacSilhouette), flag(domain.PleuralEffusionOrThickening),
		flag(domain.PulmonaryEdemaHazyOpacity),
		"Heart failure", "I50.9", "dyspnea", "1.0", "",
	}
}

// GazeRow is the n-th fixation row of a case.
func GazeRow(id string, n int) []string {
	x := 0.1 + float64(n%8)*0.1
	y := 0.2 + float64(n%6)*0.1
	return []string{
		id, strconv.Itoa(n + 1),
		strconv.FormatFloat(float64(n)*0.5, 'f', 3, 64),
		strconv.FormatFloat(x, 'f', 3, 64),
		strconv.FormatFloat(y, 'f', 3, 64),
		strconv.FormatFloat(0.1+float64(n%4)*0.05, 'f', 3, 64),
	}
}

// WriteCSV writes a header and rows to path.
func WriteCSV(t *testing.T, path string, header []string, rows [][]string) {
	t.Helper()
	mustMkdir(t, filepath.Dir(path))
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}
}

// ReadCSV returns all records of a CSV file, header included.
func ReadCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return records
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
