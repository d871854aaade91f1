package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"ProcGraph/pkg/config"
	"ProcGraph/pkg/probing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd(a *app) *cobra.Command {
	cfg := config.NewWatchConfig()

	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run a command and watch its process tree",
		Long: `Run a command and watch it and every process it forks until the whole
tree has exited. Specify the command after '--'.

Example:
  procgraph run -- make -j8
  procgraph run -g --graph-dir out -- python train.py`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("no command specified\nUsage: procgraph run [flags] -- <command> [args...]")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			source, err := probing.NewSource(cfg.Source)
			if err != nil {
				return err
			}
			return runCommand(cmd, a.log, cfg, source, args)
		},
	}

	cfg.AddWatchFlags(cmd)
	cfg.AddRunGraphFlags(cmd)
	return cmd
}

func runCommand(cmd *cobra.Command, log *zap.Logger, cfg *config.WatchConfig, source probing.Source, args []string) error {
	target := exec.Command(args[0], args[1:]...)
	target.Stdin = os.Stdin
	target.Stdout = cmd.OutOrStdout()
	target.Stderr = cmd.ErrOrStderr()

	if err := target.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}
	log.Info("running command", zap.Strings("args", args), zap.Int("pid", target.Process.Pid))

	// The command is our child: until it is reaped it lingers as a zombie
	// and never looks exited. Reaping starts once the watcher holds it.
	start := time.Now()
	waited := make(chan error, 1)
	reap := func() { go func() { waited <- target.Wait() }() }
	reaping := false
	watchErr := runWatcher(cmd.Context(), log, cfg, watchTarget{
		source: source,
		root:   int32(target.Process.Pid),
		started: func() {
			reaping = true
			reap()
		},
	})
	if !reaping {
		reap()
	}

	if watchErr != nil || cmd.Context().Err() != nil {
		_ = target.Process.Kill()
		<-waited
		return watchErr
	}
	cmdErr := <-waited
	log.Info("command completed", zap.Duration("elapsed", time.Since(start)))

	// the logs are the primary result; graphs are best effort
	if cfg.Graphs {
		if err := renderGraphs(log, cfg.GraphDir, cfg.LifetimeLog, cfg.UsageLog); err != nil {
			log.Warn("graphs incomplete", zap.Error(err))
		}
	}

	var exitErr *exec.ExitError
	if errors.As(cmdErr, &exitErr) {
		return fmt.Errorf("%s exited with code %d", filepath.Base(args[0]), exitErr.ExitCode())
	}
	return cmdErr
}
