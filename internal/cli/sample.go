package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/egd-cxr-toolkit/internal/catalog"
	"github.com/egd-cxr-toolkit/internal/domain"
	"github.com/egd-cxr-toolkit/internal/render"
	"github.com/egd-cxr-toolkit/internal/service"
)

func (a *App) runSample(ctx context.Context, args []string) error {
	cfg := a.config.Sampling
	chart := true
	record := true

	for i := 0; i < len(args); i++ {
		var err error
		switch args[i] {
		case "--size", "-n":
			cfg.Size, err = intFlag(args, &i)
		case "--seed", "-s":
			var raw string
			if raw, err = flagValue(args, &i); err == nil {
				if cfg.Seed, err = strconv.ParseInt(raw, 10, 64); err != nil {
					err = usageError("--seed expects an integer, got %q", raw)
				}
			}
		case "--no-chart":
			chart = false
		case "--no-record":
			record = false
		default:
			err = usageError("unknown option for sample: %s", args[i])
		}
		if err != nil {
			return err
		}
	}
	if cfg.Size <= 0 {
		return usageError("--size must be positive")
	}

	var recorder service.RunRecorder
	if record && a.config.Path.CatalogDB != "" {
		store, err := catalog.NewSQLiteStore(a.config.Path.CatalogDB)
		if err != nil {
			return fmt.Errorf("failed to open run catalog: %w", err)
		}
		defer store.Close()
		recorder = store
	}

	pipeline := service.NewSamplingPipeline(a.logger, a.config.Path, cfg, recorder)
	result, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	md := result.Metadata
	fmt.Fprintln(a.out, "Sampling complete")
	fmt.Fprintf(a.out, "  Run ID: %s\n", result.Run.ID)
	fmt.Fprintf(a.out, "  Cases: %d of %d requested (seed %d)\n", md.SampleInfo.TotalStudies, cfg.Size, cfg.Seed)
	fmt.Fprintf(a.out, "  Transcripts: %d\n", md.DataCompleteness.AudioTranscripts)
	fmt.Fprintf(a.out, "  Metadata: %s\n", result.MetadataPath)
	fmt.Fprintf(a.out, "  Report: %s\n", result.ReportPath)

	if chart {
		counts := distributionCounts(md)
		if len(counts) == 0 {
			a.logger.Info("No conditions in sample, skipping distribution chart")
			return nil
		}
		png, err := render.ConditionDistribution("Condition distribution", counts)
		if err != nil {
			return err
		}
		path := filepath.Join(a.config.Path.SamplingData, render.DistributionFile)
		if err := render.WriteChart(path, png); err != nil {
			return domain.NewDatasetError(domain.ErrRender, "failed to write figure", path, err)
		}
		fmt.Fprintf(a.out, "  Chart: %s\n", path)
	}
	return nil
}

// distributionCounts orders the sample's condition counts by the master sheet columns.
func distributionCounts(md *service.SampleMetadata) []render.ConditionCount {
	var counts []render.ConditionCount
	for _, cond := range domain.KnownConditions {
		if n, ok := md.ClinicalConditions[string(cond)]; ok {
			counts = append(counts, render.ConditionCount{Condition: cond, Count: n})
		}
	}
	return counts
}
