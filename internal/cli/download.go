package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/egd-cxr-toolkit/internal/dataset"
	"github.com/egd-cxr-toolkit/internal/domain"
	"github.com/egd-cxr-toolkit/internal/service"
	"github.com/egd-cxr-toolkit/pkg/physionet"
)

func (a *App) runDownload(ctx context.Context, args []string) error {
	fromSample := false
	limit := 0
	for i := 0; i < len(args); i++ {
		var err error
		switch args[i] {
		case "--sample":
			fromSample = true
		case "--limit":
			limit, err = intFlag(args, &i)
		default:
			err = usageError("unknown option for download: %s", args[i])
		}
		if err != nil {
			return err
		}
	}

	sheet := dataset.NewLayout(a.config.Path.Raw).MasterSheet()
	if fromSample {
		sheet = filepath.Join(a.config.Path.SamplingData, service.MasterSampleFile)
	}
	var src domain.CaseSource = dataset.MasterSheet{Path: sheet}
	cases, err := src.LoadCases(ctx)
	if err != nil {
		return fmt.Errorf("failed to load case list: %w", err)
	}

	var items []physionet.Item
	for _, c := range cases {
		if c.ImagePath == "" {
			a.logger.WithField("dicom_id", c.DicomID).Warn("Case has no image path, skipping")
			continue
		}
		items = append(items, physionet.Item{DicomID: c.DicomID, Path: c.ImagePath})
		if limit > 0 && len(items) == limit {
			break
		}
	}

	dl := a.config.Download
	client := physionet.NewClient(physionet.Config{
		BaseURL:     dl.BaseURL,
		Username:    dl.Username,
		Password:    dl.Password,
		Timeout:     dl.Timeout,
		Delay:       dl.Delay,
		MaxAttempts: dl.MaxAttempts,
	}, a.logger)

	summary, err := client.DownloadAll(ctx, items, a.config.Path.DicomDir)
	if summary != nil {
		fmt.Fprintln(a.out, "Download summary")
		fmt.Fprintf(a.out, "  Total: %d\n", summary.Total)
		fmt.Fprintf(a.out, "  Downloaded: %d\n", summary.Downloaded)
		fmt.Fprintf(a.out, "  Already present: %d\n", summary.Existing)
		fmt.Fprintf(a.out, "  Failed: %d\n", summary.Failed)
		for _, f := range summary.Failures {
			fmt.Fprintf(a.out, "    %s: %v\n", f.DicomID, f.Err)
		}
		fmt.Fprintf(a.out, "  Output: %s\n", summary.OutputDir)
	}
	return err
}
