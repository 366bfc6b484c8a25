// Package main is the entry point of the egd-cxr toolkit.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/egd-cxr-toolkit/internal/cli"
	"github.com/egd-cxr-toolkit/internal/config"
	"github.com/egd-cxr-toolkit/internal/domain"
	"github.com/egd-cxr-toolkit/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, rest, err := cli.ParseGlobal(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	// Load configuration
	manager, err := config.NewManager(opts.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	cfg := manager.GetConfig()
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := manager.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}
	if err := manager.EnsureOutputDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directories: %v\n", err)
		return 1
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		return 1
	}
	defer closer.Close()

	logger.WithFields(logrus.Fields{
		"config_file": manager.ConfigFileUsed(),
		"raw":         cfg.Path.Raw,
	}).Debug("Configuration loaded")

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp(logger, cfg, os.Stdout)
	if err := app.Run(ctx, rest); err != nil {
		fields := logrus.Fields{"error": err.Error()}
		if len(rest) > 0 {
			fields["command"] = rest[0]
		}
		var de *domain.DatasetError
		if errors.As(err, &de) {
			fields["code"] = de.Code
			if de.Path != "" {
				fields["path"] = de.Path
			}
		}
		var ue *cli.UsageError
		if errors.As(err, &ue) {
			logger.WithFields(fields).Error("Invalid usage")
			return 2
		}
		if errors.Is(err, context.Canceled) {
			logger.WithFields(fields).Warn("Interrupted")
			return 130
		}
		logger.WithFields(fields).Error("Command failed")
		return 1
	}
	return 0
}
