package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/egd-cxr-toolkit/internal/catalog"
)

func (a *App) runRuns(ctx context.Context, args []string) error {
	if a.config.Path.CatalogDB == "" {
		return usageError("path.catalog_db is not configured")
	}
	store, err := catalog.NewSQLiteStore(a.config.Path.CatalogDB)
	if err != nil {
		return fmt.Errorf("failed to open run catalog: %w", err)
	}
	defer store.Close()

	action := "list"
	if len(args) > 0 {
		action, args = args[0], args[1:]
	}

	switch action {
	case "list":
		return a.listRuns(ctx, store, args)
	case "show":
		if len(args) != 1 {
			return usageError("runs show expects a run id")
		}
		return a.showRun(ctx, store, args[0])
	case "export":
		if len(args) == 0 {
			return store.ExportJSON(ctx, a.out)
		}
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", args[0], err)
		}
		defer f.Close()
		if err := store.ExportJSON(ctx, f); err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", args[0], err)
		}
		fmt.Fprintf(a.out, "Exported runs to %s\n", args[0])
		return nil
	case "delete":
		if len(args) != 1 {
			return usageError("runs delete expects a run id")
		}
		if err := store.DeleteRun(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted run %s\n", args[0])
		return nil
	case "import":
		if len(args) != 1 {
			return usageError("runs import expects a file")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		imported, skipped, err := store.ImportJSON(ctx, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Imported %d runs, skipped %d existing\n", imported, skipped)
		return nil
	default:
		return usageError("unknown runs action: %s", action)
	}
}

func (a *App) listRuns(ctx context.Context, store catalog.Store, args []string) error {
	limit := 20
	for i := 0; i < len(args); i++ {
		var err error
		switch args[i] {
		case "--limit":
			limit, err = intFlag(args, &i)
		default:
			err = usageError("unknown option for runs list: %s", args[i])
		}
		if err != nil {
			return err
		}
	}

	runs, err := store.ListRuns(ctx, limit, 0)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.out, "No sampling runs recorded.")
		return nil
	}
	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Showing %d of %d sampling runs\n\n", len(runs), total)

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSEED\tCASES\tGAZE ROWS\tOUTPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d/%d\t%s\t%s\n",
			r.ID, humanize.Time(r.CreatedAt), r.Seed, len(r.CaseIDs), r.TargetSize,
			humanize.Comma(int64(r.GazeRecords)), r.OutputDir)
	}
	return tw.Flush()
}

func (a *App) showRun(ctx context.Context, store catalog.Store, id string) error {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return usageError("no sampling run with id %s", id)
	}

	fmt.Fprintf(a.out, "Run %s\n", run.ID)
	fmt.Fprintf(a.out, "  Created: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(a.out, "  Strategy: %s (seed %d)\n", run.Strategy, run.Seed)
	fmt.Fprintf(a.out, "  Source: %s\n", run.SourceDir)
	fmt.Fprintf(a.out, "  Output: %s\n", run.OutputDir)
	fmt.Fprintf(a.out, "  Cases: %d of %d requested\n", len(run.CaseIDs), run.TargetSize)
	fmt.Fprintf(a.out, "  Records: %s gaze, %s fixation, %s bounding box\n",
		humanize.Comma(int64(run.GazeRecords)), humanize.Comma(int64(run.FixationRecords)), humanize.Comma(int64(run.BoundingBoxRecords)))
	fmt.Fprintf(a.out, "  Transcripts copied: %d\n", run.TranscriptsCopied)
	fmt.Fprintf(a.out, "  Case IDs: %s\n", strings.Join(run.CaseIDs, ", "))
	return nil
}
