package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/egd-cxr-toolkit/internal/analysis"
	"github.com/egd-cxr-toolkit/internal/dataset"
	"github.com/egd-cxr-toolkit/internal/render"
	"github.com/egd-cxr-toolkit/internal/service"
)

func (a *App) runExplore(ctx context.Context, args []string) error {
	rows := analysis.DefaultProbeRows
	depth := 2
	for i := 0; i < len(args); i++ {
		var err error
		switch args[i] {
		case "--rows":
			rows, err = intFlag(args, &i)
		case "--depth":
			depth, err = intFlag(args, &i)
		default:
			err = usageError("unknown option for explore: %s", args[i])
		}
		if err != nil {
			return err
		}
	}

	explorer := analysis.NewExplorer(a.logger, dataset.NewLayout(a.config.Path.Raw), rows, depth)
	return explorer.Explore(ctx, a.out)
}

// caseTools loads the case index and a fixation cache over the raw release, sized to
// hold at least cases entries.
func (a *App) caseTools(ctx context.Context, cases int) (dataset.Layout, *dataset.CaseIndex, *dataset.FixationCache, error) {
	layout := dataset.NewLayout(a.config.Path.Raw)
	index, err := dataset.LoadCaseIndex(ctx, layout.MasterSheet())
	if err != nil {
		return layout, nil, nil, fmt.Errorf("failed to load master sheet: %w", err)
	}
	size := a.config.Cache.FixationCases
	if cases > size {
		size = cases
	}
	cache, err := dataset.NewFixationCache(layout.Fixations(), size, a.config.Sampling.ChunkSize)
	if err != nil {
		return layout, nil, nil, err
	}
	return layout, index, cache, nil
}

func (a *App) runAnalyze(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("analyze expects exactly one dicom_id")
	}

	layout, index, cache, err := a.caseTools(ctx, 1)
	if err != nil {
		return err
	}
	report, err := analysis.NewCaseAnalyzer(a.logger, layout, index, cache).Analyze(ctx, args[0])
	if err != nil {
		return err
	}
	report.Render(a.out)
	return nil
}

func (a *App) runPlot(ctx context.Context, args []string) error {
	var ids []string
	distribution := false
	for _, arg := range args {
		switch arg {
		case "--distribution":
			distribution = true
		default:
			ids = append(ids, arg)
		}
	}
	if len(ids) == 0 && !distribution {
		return usageError("plot expects at least one dicom_id or --distribution")
	}

	layout := dataset.NewLayout(a.config.Path.Raw)
	plotter := render.NewCasePlotter(a.logger, layout, a.config.Path.DicomDir, a.config.Path.PlotsDir)

	if distribution {
		md, err := service.ReadMetadata(filepath.Join(a.config.Path.SamplingData, service.MetadataFile))
		if err != nil {
			return fmt.Errorf("failed to read sample metadata: %w", err)
		}
		path, err := plotter.PlotDistribution(fmt.Sprintf("Condition distribution (%d cases)", md.SampleInfo.TotalStudies), distributionCounts(md))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Wrote %s\n", path)
	}
	if len(ids) == 0 {
		return nil
	}

	_, index, cache, err := a.caseTools(ctx, len(ids))
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := index.Get(id); !ok {
			return usageError("unknown dicom_id: %s", id)
		}
	}
	if err := cache.Preload(ctx, ids); err != nil {
		return fmt.Errorf("failed to load fixations: %w", err)
	}
	for _, id := range ids {
		c, _ := index.Get(id)
		fixations, err := cache.CaseFixations(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load fixations: %w", err)
		}
		boxes, err := dataset.LoadBoundingBoxes(ctx, layout.BoundingBoxes(), id)
		if err != nil {
			return fmt.Errorf("failed to load bounding boxes: %w", err)
		}

		written, err := plotter.PlotCase(render.CaseFigures{Case: c, Fixations: fixations, Boxes: boxes})
		if err != nil {
			return err
		}
		a.logger.WithFields(logrus.Fields{"dicom_id": id, "figures": len(written)}).Info("Plotted case")
		for _, p := range written {
			fmt.Fprintf(a.out, "Wrote %s\n", p)
		}
	}
	return nil
}
