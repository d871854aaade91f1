package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"ProcGraph/pkg/config"
	"ProcGraph/pkg/exporting"
	"ProcGraph/pkg/probing"
	"ProcGraph/pkg/watching"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// watchTarget is what runWatcher needs beyond the config.
type watchTarget struct {
	source  probing.Source
	root    int32
	exclude []int32
	// started runs once the root is open, before the first cycle.
	started func()
}

// runWatcher opens both logs and watches until the tree exits. Cancellation
// is a clean stop: every record written so far is already on disk.
func runWatcher(ctx context.Context, log *zap.Logger, cfg *config.WatchConfig, t watchTarget) (err error) {
	events, err := exporting.OpenEventLog(cfg.LifetimeLog, cfg.UsageLog)
	if err != nil {
		return fmt.Errorf("failed to open event logs: %w", err)
	}
	defer func() { err = multierr.Append(err, events.Close()) }()

	w, err := watching.New(ctx, t.source, events, t.root, watching.Options{
		Interval: cfg.Interval,
		Exclude:  t.exclude,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	if t.started != nil {
		t.started()
	}

	lifetimePath, usagePath := events.Paths()
	log.Info("watching process tree",
		zap.Int32("pid", t.root),
		zap.String("run_id", w.RunID()),
		zap.String("lifetime_log", lifetimePath),
		zap.String("usage_log", usagePath),
		zap.Duration("interval", cfg.Interval),
		zap.String("source", cfg.Source))

	if err := w.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("watcher interrupted", zap.Int("members", len(w.Members())))
			return nil
		}
		return err
	}
	return nil
}

// renderGraphs draws the branching image and the utilization chart from a
// finished run into dir. Each artifact is independent, so one failing does
// not stop the other.
func renderGraphs(log *zap.Logger, dir, lifetimeLog, usageLog string) error {
	start := time.Now()

	graph := config.NewGraphConfig()
	graph.LifetimeLog = lifetimeLog
	graph.Output = filepath.Join(dir, config.DefaultBranchingImage)
	graph.Strict = false

	usage := config.NewUsageConfig()
	usage.UsageLog = usageLog
	usage.Output = filepath.Join(dir, config.DefaultUsageChart)

	var g errgroup.Group
	g.Go(func() error {
		if _, err := buildTree(log, graph); err != nil {
			log.Warn("failed to render branching image", zap.Error(err))
			return fmt.Errorf("branching image: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := chartUsage(log, usage); err != nil {
			log.Warn("failed to render utilization chart", zap.Error(err))
			return fmt.Errorf("utilization chart: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("generated graphs", zap.String("dir", dir), zap.Duration("elapsed", time.Since(start)))
	return nil
}
