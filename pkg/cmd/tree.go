package cmd

import (
	"fmt"

	"ProcGraph/pkg/branching"
	"ProcGraph/pkg/config"
	"ProcGraph/pkg/exporting"
	"ProcGraph/pkg/graphing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTreeCmd(a *app) *cobra.Command {
	cfg := config.NewGraphConfig()

	cmd := &cobra.Command{
		Aliases: []string{"graph"},
		Use:     "tree [flags]",
		Short:   "Rebuild the process tree from a lifetime log",
		Long: `Rebuild the fork tree recorded in a lifetime log, print its draw order and
draw the branching image: one horizontal line per process from creation to
exit, each connected to its parent's line.

Example:
  procgraph tree --lifetime-log lifetime.jsonl -o branching.png -r 0.05
  procgraph tree --strict=false --rows rows.parquet -o ""`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			tree, err := buildTree(a.log, cfg)
			if err != nil {
				return err
			}
			if cfg.Quiet {
				return nil
			}
			return graphing.PrintTree(cmd.OutOrStdout(), tree)
		},
	}

	cfg.AddGraphFlags(cmd)
	return cmd
}

// buildTree reconstructs the tree and writes whichever artifacts cfg asks
// for. Nothing is written unless reconstruction succeeds.
func buildTree(log *zap.Logger, cfg *config.GraphConfig) (*branching.Tree, error) {
	recs, err := exporting.ReadLifetimes(cfg.LifetimeLog)
	if err != nil {
		return nil, fmt.Errorf("failed to load lifetime log: %w", err)
	}

	tree, err := branching.Build(recs, branching.Options{
		Resolution: cfg.Resolution,
		Strict:     cfg.Strict,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.LifetimeLog, err)
	}
	log.Info("rebuilt process tree",
		zap.Int("processes", tree.Len()),
		zap.Int32("root", tree.Root),
		zap.Float64("creation_time", tree.Start),
		zap.Float64("completion_time", tree.End),
		zap.Int("dropped", len(tree.Dropped)))

	if cfg.Rows != "" {
		if err := exporting.SaveRows(cfg.Rows, tree.Rows()); err != nil {
			return nil, fmt.Errorf("failed to write rows: %w", err)
		}
		log.Info("wrote render rows", zap.String("path", cfg.Rows))
	}

	if cfg.Output != "" {
		layout, err := tree.Layout(cfg.LineWidth, cfg.Separation)
		if err != nil {
			return nil, err
		}
		if err := graphing.SaveBranching(cfg.Output, layout); err != nil {
			return nil, fmt.Errorf("failed to save branching image: %w", err)
		}
		log.Info("saved branching image",
			zap.String("path", cfg.Output),
			zap.Int("width", layout.Width),
			zap.Int("height", layout.Height))
	}
	return tree, nil
}
