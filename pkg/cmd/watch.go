package cmd

import (
	"fmt"
	"os"
	"strconv"

	"ProcGraph/pkg/config"
	"ProcGraph/pkg/daemon"
	"ProcGraph/pkg/probing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(a *app) *cobra.Command {
	cfg := config.NewWatchConfig()

	cmd := &cobra.Command{
		Use:   "watch --pid <pid> [flags]",
		Short: "Watch an existing process and its descendants",
		Long: `Watch a running process and every descendant it forks until all of them
have exited. With --detach the watcher moves into its own session in the
background, writing its standard streams to --stdout and --stderr.

Example:
  procgraph watch --pid 4242 --interval 50ms
  procgraph watch --pid 4242 --detach --lifetime-log run/lifetime.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.PID <= 0 {
				return fmt.Errorf("--pid is required")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			source, err := probing.NewSource(cfg.Source)
			if err != nil {
				return err
			}

			if cfg.Detach && !daemon.IsDetached() {
				return detachWatcher(cmd, a, cfg, source)
			}

			var exclude []int32
			if daemon.IsDetached() {
				daemon.Settle()
				if launcher := daemon.LauncherPID(); launcher > 0 {
					exclude = append(exclude, launcher)
				}
			}
			return runWatcher(cmd.Context(), a.log, cfg, watchTarget{
				source:  source,
				root:    cfg.PID,
				exclude: exclude,
			})
		},
	}

	cfg.AddWatchFlags(cmd)
	cfg.AddDetachFlags(cmd)
	return cmd
}

// detachWatcher checks the root in the foreground so a bad pid fails
// loudly, then re-execs the watch command in the background with every path
// made absolute.
func detachWatcher(cmd *cobra.Command, a *app, cfg *config.WatchConfig, source probing.Source) error {
	if q := source.Open(cmd.Context(), cfg.PID); !q.Alive() {
		return fmt.Errorf("process %d: %s", cfg.PID, q.Outcome)
	}
	if err := daemon.Absolute(&cfg.LifetimeLog, &cfg.UsageLog, &cfg.Stdout, &cfg.Stderr); err != nil {
		return err
	}

	args := []string{"watch",
		"--pid", strconv.Itoa(int(cfg.PID)),
		"--interval", cfg.Interval.String(),
		"--lifetime-log", cfg.LifetimeLog,
		"--usage-log", cfg.UsageLog,
		"--source", cfg.Source,
		"--log-level", a.logOpts.Level,
		"--log-format", a.logOpts.Format,
	}
	pid, err := daemon.Detach(daemon.Options{
		Args:   args,
		Stdout: cfg.Stdout,
		Stderr: cfg.Stderr,
	})
	if err != nil {
		return err
	}

	a.log.Info("watcher detached",
		zap.Int("watcher_pid", pid),
		zap.Int32("pid", cfg.PID),
		zap.String("stdout", cfg.Stdout),
		zap.String("stderr", cfg.Stderr))
	fmt.Fprintf(cmd.OutOrStdout(), "watcher running with pid %d\n", pid)
	_ = os.Stdout.Sync()
	return nil
}
