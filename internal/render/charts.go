package render

import (
	"bytes"
	"fmt"
	"math"
	"os"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// ConditionCount is one bar of the condition distribution chart.
type ConditionCount struct {
	Condition domain.Condition
	Count     int
}

// ConditionDistribution renders condition prevalence as a PNG bar chart.
func ConditionDistribution(title string, counts []ConditionCount) ([]byte, error) {
	if len(counts) == 0 {
		return nil, domain.NewDatasetError(domain.ErrRender, "no conditions to chart", "", nil)
	}

	bars := make([]chart.Value, 0, len(counts))
	top := 1.0
	for i, c := range counts {
		col := palette[i%len(palette)]
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("%s (%d)", c.Condition, c.Count),
			Value: float64(c.Count),
			Style: chart.Style{
				FillColor:   drawing.Color{R: col.R, G: col.G, B: col.B, A: 255},
				StrokeColor: drawing.ColorFromHex("555555"),
				StrokeWidth: 1,
			},
		})
		top = math.Max(top, float64(c.Count))
	}

	bc := chart.BarChart{
		Title:      title,
		Width:      140 * len(bars),
		Height:     480,
		BarWidth:   90,
		BarSpacing: 40,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.Style{FontSize: 7},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: math.Ceil(top * 1.1)},
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v) },
		},
		Bars: bars,
	}
	if bc.Width < 640 {
		bc.Width = 640
	}

	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, domain.NewDatasetError(domain.ErrRender, "failed to render bar chart", "", err)
	}
	return buf.Bytes(), nil
}

// FixationTimeline renders fixation duration against elapsed session time.
func FixationTimeline(title string, fixations []domain.Fixation) ([]byte, error) {
	if len(fixations) == 0 {
		return nil, domain.NewDatasetError(domain.ErrRender, "no fixations to chart", "", nil)
	}

	xs := make([]float64, len(fixations))
	ys := make([]float64, len(fixations))
	maxX, maxY := 1.0, 0.1
	for i, f := range fixations {
		xs[i] = f.Elapsed
		ys[i] = f.Duration
		maxX = math.Max(maxX, f.Elapsed)
		maxY = math.Max(maxY, f.Duration)
	}
	// A single point still needs two x values to draw
	if len(xs) == 1 {
		xs = append(xs, xs[0])
		ys = append(ys, ys[0])
	}

	ch := chart.Chart{
		Title:      title,
		Width:      1000,
		Height:     400,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "Time (s)",
			Range:          &chart.ContinuousRange{Min: 0, Max: maxX},
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v) },
		},
		YAxis: chart.YAxis{
			Name:           "Duration (s)",
			Range:          &chart.ContinuousRange{Min: 0, Max: maxY * 1.1},
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.2f", v) },
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Fixation duration",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("2c7fb8"),
					StrokeWidth: 1,
					DotColor:    drawing.ColorFromHex("d95f0e"),
					DotWidth:    3,
				},
			},
		},
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, domain.NewDatasetError(domain.ErrRender, "failed to render timeline", "", err)
	}
	return buf.Bytes(), nil
}

// WriteChart stores rendered chart bytes.
func WriteChart(path string, png []byte) error {
	return os.WriteFile(path, png, 0644)
}
