package cmd

import (
	"fmt"

	"ProcGraph/pkg/config"
	"ProcGraph/pkg/exporting"
	"ProcGraph/pkg/graphing"
	"ProcGraph/pkg/utilization"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newUsageCmd(a *app) *cobra.Command {
	cfg := config.NewUsageConfig()

	cmd := &cobra.Command{
		Use:   "usage [flags]",
		Short: "Derive and chart CPU utilization from a usage log",
		Long: `Turn the cumulative CPU times of a usage log into per-process utilization
and chart it against seconds since the first sample.

Example:
  procgraph usage --usage-log usage.jsonl -o usage.html --png usage.png
  procgraph usage --export series.parquet -o ""`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return chartUsage(a.log, cfg)
		},
	}

	cfg.AddUsageFlags(cmd)
	return cmd
}

// chartUsage derives the series and writes every requested artifact.
func chartUsage(log *zap.Logger, cfg *config.UsageConfig) error {
	recs, err := exporting.ReadUsage(cfg.UsageLog)
	if err != nil {
		return fmt.Errorf("failed to load usage log: %w", err)
	}
	res, err := utilization.Derive(recs)
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.UsageLog, err)
	}
	log.Info("derived utilization",
		zap.Int("samples", len(recs)),
		zap.Int("processes", len(res.Series)),
		zap.Float64("start", res.Start))

	if cfg.Export != "" {
		if err := exporting.SaveRows(cfg.Export, res.Rows()); err != nil {
			return fmt.Errorf("failed to export series: %w", err)
		}
		log.Info("exported series", zap.String("path", cfg.Export))
	}
	if cfg.Output != "" {
		if err := graphing.SaveUtilizationHTML(cfg.Output, cfg.Title, res); err != nil {
			return fmt.Errorf("failed to save chart: %w", err)
		}
		log.Info("saved chart", zap.String("path", cfg.Output))
	}
	if cfg.PNG != "" {
		if err := graphing.SaveUtilizationPNG(cfg.PNG, cfg.Title, res); err != nil {
			return fmt.Errorf("failed to save image: %w", err)
		}
		log.Info("saved image", zap.String("path", cfg.PNG))
	}
	return nil
}
