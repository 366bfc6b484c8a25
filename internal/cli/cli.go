// Package cli dispatches the egd-cxr subcommands.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// App runs subcommands against one loaded configuration.
type App struct {
	logger *logrus.Logger
	config *domain.Config
	out    io.Writer
}

// NewApp creates an App writing command output to out.
func NewApp(logger *logrus.Logger, config *domain.Config, out io.Writer) *App {
	return &App{
		logger: logger,
		config: config,
		out:    out,
	}
}

// GlobalOptions are the flags accepted before the subcommand.
type GlobalOptions struct {
	ConfigFile string
	LogLevel   string
}

// ParseGlobal splits the leading global flags from the subcommand and its arguments.
func ParseGlobal(args []string) (GlobalOptions, []string, error) {
	var opts GlobalOptions
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config", "-c":
			if i+1 >= len(args) {
				return opts, nil, usageError("%s requires a value", args[i])
			}
			opts.ConfigFile = args[i+1]
			i++
		case "--log-level":
			if i+1 >= len(args) {
				return opts, nil, usageError("%s requires a value", args[i])
			}
			opts.LogLevel = args[i+1]
			i++
		default:
			return opts, args[i:], nil
		}
	}
	return opts, nil, nil
}

// Run executes the subcommand named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.showHelp()
	}

	switch args[0] {
	case "sample":
		return a.runSample(ctx, args[1:])
	case "explore":
		return a.runExplore(ctx, args[1:])
	case "analyze":
		return a.runAnalyze(ctx, args[1:])
	case "plot":
		return a.runPlot(ctx, args[1:])
	case "download":
		return a.runDownload(ctx, args[1:])
	case "runs":
		return a.runRuns(ctx, args[1:])
	case "help", "--help", "-h":
		return a.showHelp()
	default:
		fmt.Fprintf(a.out, "Unknown command: %s\n\n", args[0])
		a.showHelp()
		return usageError("unknown command %q", args[0])
	}
}

func (a *App) showHelp() error {
	help := `
EGD-CXR dataset toolkit

Usage:
  egd-cxr [--config file] [--log-level level] <command> [options]

Commands:
  sample     Select a stratified sample of complete cases and extract its data
  explore    Print an overview of the raw dataset
  analyze    Print a detailed report for one case
  plot       Render gaze, region and bounding box figures for cases
  download   Fetch DICOM images from PhysioNet
  runs       List, show, delete, export or import recorded sampling runs

Examples:
  egd-cxr sample --size 50 --seed 42
  egd-cxr analyze 1a2b3c4d-...
  egd-cxr plot --distribution 1a2b3c4d-...
  egd-cxr download --sample --limit 10
  egd-cxr runs export runs.json
`
	fmt.Fprintln(a.out, help)
	return nil
}

// UsageError reports bad command-line input.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func usageError(format string, args ...interface{}) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// flagValue returns the value following args[i], advancing i.
func flagValue(args []string, i *int) (string, error) {
	if *i+1 >= len(args) {
		return "", usageError("%s requires a value", args[*i])
	}
	*i++
	return args[*i], nil
}

func intFlag(args []string, i *int) (int, error) {
	name := args[*i]
	raw, err := flagValue(args, i)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, usageError("%s expects an integer, got %q", name, raw)
	}
	return n, nil
}
