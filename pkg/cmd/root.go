// Package cmd provides the procgraph command tree.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ProcGraph/pkg/config"
	"ProcGraph/pkg/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what every subcommand shares once flags are parsed.
type app struct {
	log        *zap.Logger
	logOpts    logging.Options
	configFile string
}

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	a := &app{
		log:     zap.NewNop(),
		logOpts: logging.Options{Level: config.DefaultLogLevel, Format: config.DefaultLogFormat},
	}

	root := &cobra.Command{
		Use:   "procgraph",
		Short: "Watch a process tree and graph its genealogy and CPU use",
		Long: `procgraph follows a process and every child it forks by polling, logging
one lifetime record per process and periodic usage samples. The logs are
later rebuilt into a branching diagram and utilization charts.

Commands:
  watch   Watch an existing process, optionally in the background
  run     Run a command and watch it until its whole tree exits
  tree    Rebuild the process tree and draw the branching image
  usage   Derive CPU utilization and chart it`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Load(cmd.Flags(), a.configFile); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger, err := logging.New(a.logOpts)
			if err != nil {
				return err
			}
			a.log = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.log.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (yaml, json or toml)")
	flags.StringVar(&a.logOpts.Level, "log-level", a.logOpts.Level, "Log level (debug, info, warn, error)")
	flags.StringVar(&a.logOpts.Format, "log-format", a.logOpts.Format, "Log format (console, json)")

	root.AddCommand(
		newWatchCmd(a),
		newRunCmd(a),
		newTreeCmd(a),
		newUsageCmd(a),
	)
	return root
}

// Execute runs the root command. SIGINT and SIGTERM cancel the context so a
// foreground watcher stops between cycles.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
